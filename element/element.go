// Package element binds pipeline elements to Tasks and exposes their
// parameters through the method dispatcher.
//
// An element owns a method list and, once bound, a Task on which it registers
// an open job (once) and a process job (infinite). Frame processing itself is
// out of scope: the process job moves frames from a Source to a Sink and the
// element only holds parameters that control methods change at run time.
package element

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

// Source produces the next frame. It returns io.EOF when the stream ends.
type Source func(ctx context.Context) ([]byte, error)

// Sink consumes a frame.
type Sink func(ctx context.Context, frame []byte) error

// Config holds the options shared by all elements.
type Config struct {
	Name   string
	Source Source
	Sink   Sink
	Logger core.Logger
}

// Element is implemented by every element in this package.
type Element interface {
	Name() string
	Methods() *method.List
	Task() *core.Task
	Bind(task *core.Task) error
	Unbind() error
	Frames() uint64
	Call(name string, fill func(*method.ExecContext) error) error
}

// Base carries what every element shares. Concrete elements embed it and pass
// themselves as the method handle.
type Base struct {
	name    string
	self    any
	methods *method.List
	source  Source
	sink    Sink
	logger  core.Logger

	mu     sync.Mutex
	task   *core.Task
	jobIDs []core.JobID

	frames atomic.Uint64
	opened atomic.Bool
}

func newBase(cfg Config, self any, own ...*method.Method) (*Base, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("element name is empty: %w", core.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}

	all := append(slices.Clone(own), taskMethodSlice()...)
	list, err := method.NewList(all...)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", cfg.Name, err)
	}
	return &Base{
		name:    cfg.Name,
		self:    self,
		methods: list,
		source:  cfg.Source,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
	}, nil
}

func taskMethodSlice() []*method.Method {
	names := taskMethods.Names()
	out := make([]*method.Method, 0, len(names))
	for _, n := range names {
		m, _ := taskMethods.Find(n)
		out = append(out, m)
	}
	return out
}

// Name returns the element name.
func (b *Base) Name() string { return b.name }

// Methods returns the element's own methods followed by the task control methods.
func (b *Base) Methods() *method.List { return b.methods }

// Task returns the bound Task, or nil.
func (b *Base) Task() *core.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.task
}

// Opened reports whether the open job has run since Bind. A task reset does
// not clear it; the open job runs again on the next run and leaves it set.
func (b *Base) Opened() bool { return b.opened.Load() }

// Frames returns the number of frames moved by the process job.
func (b *Base) Frames() uint64 { return b.frames.Load() }

// Call invokes a method of this element by name.
func (b *Base) Call(name string, fill func(*method.ExecContext) error) error {
	return method.Invoke(b.methods, name, b.self, fill)
}

// Bind registers the element's jobs on task. An element binds to one Task.
func (b *Base) Bind(task *core.Task) error {
	if task == nil {
		return fmt.Errorf("element %q: nil task: %w", b.name, core.ErrInvalidArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil {
		return fmt.Errorf("element %q already bound to %q: %w", b.name, b.task.Name(), core.ErrInvalidState)
	}

	openID, err := task.RegisterReadyJob(b.name+".open", b.openJob, core.JobTimesOnce, nil, false)
	if err != nil {
		return err
	}
	procID, err := task.RegisterReadyJob(b.name+".process", b.processJob, core.JobTimesInfinite, nil, false)
	if err != nil {
		_ = task.UnregisterJob(openID)
		return err
	}
	b.task = task
	b.jobIDs = []core.JobID{openID, procID}
	return nil
}

// Unbind removes the element's jobs from its Task.
func (b *Base) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task == nil {
		return nil
	}
	var err error
	for _, id := range b.jobIDs {
		// already removed, or the task was deinitialized
		e := b.task.UnregisterJob(id)
		if e != nil && !errors.Is(e, core.ErrNotFound) && !errors.Is(e, core.ErrInvalidArgument) {
			err = multierr.Append(err, e)
		}
	}
	b.task, b.jobIDs = nil, nil
	b.opened.Store(false)
	return err
}

func (b *Base) openJob(context.Context, any) (core.JobResult, error) {
	b.opened.Store(true)
	b.logger.Debug("element opened", core.F("element", b.name))
	return core.JobDone, nil
}

func (b *Base) processJob(ctx context.Context, _ any) (core.JobResult, error) {
	if b.source == nil {
		return core.JobDone, nil
	}
	frame, err := b.source(ctx)
	if errors.Is(err, io.EOF) {
		b.logger.Info("element reached end of stream",
			core.F("element", b.name),
			core.F("frames", b.frames.Load()),
		)
		return core.JobDone, nil
	}
	if err != nil {
		return core.JobFail, fmt.Errorf("element %q read: %w", b.name, err)
	}
	if b.sink != nil {
		if err := b.sink(ctx, frame); err != nil {
			return core.JobFail, fmt.Errorf("element %q write: %w", b.name, err)
		}
	}
	b.frames.Add(1)
	return core.JobContinue, nil
}
