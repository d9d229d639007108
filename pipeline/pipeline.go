// Package pipeline owns the Tasks of one media pipeline.
//
// A Pipeline creates its Tasks, binds elements to them, fans every Task event
// out to an ordered list of listeners, restarts failed Tasks according to a
// core.RetryPolicy and applies control operations on cron schedules.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/element"
)

// Config holds configuration options for a Pipeline.
// Logger, Metrics and PanicHandler are handed to every Task that does not set
// its own.
type Config struct {
	Name         string
	Retry        core.RetryPolicy
	Logger       core.Logger
	Metrics      core.Metrics
	PanicHandler core.PanicHandler
}

// DefaultConfig returns a config with DefaultRetryPolicy and no-op handlers.
func DefaultConfig() Config {
	return Config{
		Name:   "pipeline",
		Retry:  core.DefaultRetryPolicy(),
		Logger: core.NewNoOpLogger(),
	}
}

type stage struct {
	task     *core.Task
	elements []element.Element
	retry    *retryState
	// ctl serializes control calls with retry restarts of this Task.
	ctl sync.Mutex
}

// Pipeline is a named set of Tasks controlled together.
type Pipeline struct {
	name         string
	logger       core.Logger
	metrics      core.Metrics
	panicHandler core.PanicHandler
	retry        core.RetryPolicy

	mu     sync.RWMutex
	stages map[string]*stage
	order  []string
	closed bool

	listeners *listeners
	schedules *scheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Name == "" {
		cfg.Name = "pipeline"
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		name:         cfg.Name,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		retry:        cfg.Retry,
		stages:       make(map[string]*stage),
		listeners:    &listeners{},
		ctx:          ctx,
		cancel:       cancel,
	}
	p.schedules = newScheduler(p)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// AddTask creates a Task called name. The pipeline owns the Task's event
// listener; use AddListener to observe its events.
func (p *Pipeline) AddTask(name string, cfg core.TaskConfig) (*core.Task, error) {
	if name == "" {
		return nil, fmt.Errorf("task name is empty: %w", core.ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("pipeline %q closed: %w", p.name, core.ErrInvalidState)
	}
	if _, ok := p.stages[name]; ok {
		return nil, fmt.Errorf("task %q already in pipeline %q: %w", name, p.name, core.ErrInvalidArgument)
	}

	cfg.Name = name
	cfg.EventFunc = p.dispatch
	cfg.UserCtx = p
	inheritHandlers(&cfg, p)

	task, err := core.NewTask(cfg)
	if err != nil {
		return nil, err
	}
	p.stages[name] = &stage{task: task, retry: &retryState{}}
	p.order = append(p.order, name)

	p.logger.Info("task added",
		core.F("pipeline", p.name),
		core.F("task", name),
		core.F("id", task.ID()),
	)
	return task, nil
}

// inheritHandlers hands the pipeline's handlers to a Task config that leaves
// them unset or at the core defaults.
func inheritHandlers(cfg *core.TaskConfig, p *Pipeline) {
	switch cfg.Logger.(type) {
	case nil, *core.NoOpLogger:
		cfg.Logger = p.logger
	}
	if p.metrics != nil {
		switch cfg.Metrics.(type) {
		case nil, *core.NilMetrics:
			cfg.Metrics = p.metrics
		}
	}
	if p.panicHandler != nil {
		switch cfg.PanicHandler.(type) {
		case nil, *core.DefaultPanicHandler:
			cfg.PanicHandler = p.panicHandler
		}
	}
}

// RemoveTask deinitializes the named Task and drops it from the pipeline.
func (p *Pipeline) RemoveTask(name string) error {
	p.mu.Lock()
	st, ok := p.stages[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("task %q: %w", name, core.ErrNotFound)
	}
	delete(p.stages, name)
	p.order = slices.DeleteFunc(p.order, func(n string) bool { return n == name })
	p.mu.Unlock()

	st.retry.cancel()
	return st.task.Deinit()
}

// AddElement binds el to the named Task.
func (p *Pipeline) AddElement(taskName string, el element.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stages[taskName]
	if !ok {
		return fmt.Errorf("task %q: %w", taskName, core.ErrNotFound)
	}
	if err := el.Bind(st.task); err != nil {
		return err
	}
	st.elements = append(st.elements, el)
	return nil
}

// Element returns the element called name from any Task.
func (p *Pipeline) Element(name string) (element.Element, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, n := range p.order {
		for _, el := range p.stages[n].elements {
			if el.Name() == name {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("element %q: %w", name, core.ErrNotFound)
}

// Task returns the named Task.
func (p *Pipeline) Task(name string) (*core.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.stages[name]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", name, core.ErrNotFound)
	}
	return st.task, nil
}

// Tasks returns the Task names in creation order.
func (p *Pipeline) Tasks() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// Stats returns a snapshot of every Task in creation order.
func (p *Pipeline) Stats() []core.TaskStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.TaskStats, 0, len(p.order))
	for _, n := range p.order {
		out = append(out, p.stages[n].task.Stats())
	}
	return out
}

// =============================================================================
// Control Operations
// =============================================================================

// Run starts every Task in creation order and re-arms retries.
func (p *Pipeline) Run(ctx context.Context) error { return p.controlAll(ctx, core.OpRun) }

// Stop stops every Task in reverse creation order.
func (p *Pipeline) Stop(ctx context.Context) error { return p.controlAll(ctx, core.OpStop) }

// Pause pauses every Task in reverse creation order.
func (p *Pipeline) Pause(ctx context.Context) error { return p.controlAll(ctx, core.OpPause) }

// Resume resumes every Task in creation order.
func (p *Pipeline) Resume(ctx context.Context) error { return p.controlAll(ctx, core.OpResume) }

// Reset resets every Task and re-arms retries.
func (p *Pipeline) Reset(ctx context.Context) error { return p.controlAll(ctx, core.OpReset) }

// Control applies op to the named Task, or to every Task when name is empty.
func (p *Pipeline) Control(ctx context.Context, name string, op core.Op) error {
	if name == "" {
		return p.controlAll(ctx, op)
	}
	p.mu.RLock()
	st, ok := p.stages[name]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %q: %w", name, core.ErrNotFound)
	}
	return st.control(ctx, op)
}

// control applies an explicit operation after cancelling any pending restart.
func (st *stage) control(ctx context.Context, op core.Op) error {
	st.ctl.Lock()
	defer st.ctl.Unlock()
	st.retry.cancel()
	if op == core.OpRun || op == core.OpReset {
		st.retry.rearm()
	}
	return st.task.Do(ctx, op)
}

func (p *Pipeline) controlAll(ctx context.Context, op core.Op) error {
	p.mu.RLock()
	stages := make([]*stage, 0, len(p.order))
	names := make([]string, 0, len(p.order))
	for _, n := range p.order {
		stages = append(stages, p.stages[n])
		names = append(names, n)
	}
	p.mu.RUnlock()

	// downstream first when halting, so producers never outrun a stopped consumer
	if op == core.OpStop || op == core.OpPause {
		slices.Reverse(stages)
		slices.Reverse(names)
	}

	var err error
	for i, st := range stages {
		if e := st.control(ctx, op); e != nil {
			err = multierr.Append(err, fmt.Errorf("task %q: %w", names[i], e))
		}
	}
	return err
}

// Close cancels schedules and pending retries and deinitializes every Task.
// The combined teardown errors are returned.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stages := make([]*stage, 0, len(p.order))
	for _, n := range p.order {
		stages = append(stages, p.stages[n])
	}
	p.mu.Unlock()

	p.cancel()
	p.schedules.stop()
	for _, st := range stages {
		st.retry.cancel()
	}
	p.wg.Wait()

	var err error
	for i := len(stages) - 1; i >= 0; i-- {
		err = multierr.Append(err, stages[i].task.Close())
	}
	p.logger.Info("pipeline closed", core.F("pipeline", p.name), core.F("tasks", len(stages)))
	return err
}

// dispatch receives every Task event on the Task's execution goroutine.
func (p *Pipeline) dispatch(ev core.Event) {
	p.listeners.notify(ev)
	if ev.State == core.StateError {
		p.scheduleRetry(ev)
	}
}
