package mediatask

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/Swind/go-media-task/core"
)

// Handle is an opaque reference to a Task in a Table.
//
// The low 32 bits index a slot, the high 32 bits carry the slot generation.
// Deinit bumps the generation, so a stale Handle is detected instead of
// reaching a Task that has been torn down or replaced. The zero Handle is
// never valid.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h >> 32) }

func (h Handle) String() string {
	return fmt.Sprintf("task#%d.%d", h.index(), h.gen())
}

// WaitForever passed to SetTimeout makes control operations wait without bound.
const WaitForever = math.MaxUint32

type slot struct {
	gen  uint32
	task *core.Task
}

// Table is an arena of Tasks addressed by generation-checked Handles.
type Table struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
	live  int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Init creates a Task from cfg and returns its handle.
func (tb *Table) Init(cfg core.TaskConfig) (Handle, error) {
	task, err := core.NewTask(cfg)
	if err != nil {
		return 0, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	var idx uint32
	if n := len(tb.free); n > 0 {
		idx = tb.free[n-1]
		tb.free = tb.free[:n-1]
	} else {
		if uint64(len(tb.slots)) >= math.MaxUint32 {
			_ = task.Close()
			return 0, fmt.Errorf("handle table full: %w", core.ErrOutOfMemory)
		}
		idx = uint32(len(tb.slots))
		// generation 0 is reserved so the zero Handle stays invalid
		tb.slots = append(tb.slots, slot{gen: 1})
	}
	tb.slots[idx].task = task
	tb.live++
	return makeHandle(idx, tb.slots[idx].gen), nil
}

// Lookup resolves h to its Task.
func (tb *Table) Lookup(h Handle) (*core.Task, error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.lookupLocked(h)
}

func (tb *Table) lookupLocked(h Handle) (*core.Task, error) {
	idx := h.index()
	if h == 0 || int(idx) >= len(tb.slots) {
		return nil, fmt.Errorf("handle %s: %w", h, core.ErrInvalidArgument)
	}
	s := tb.slots[idx]
	if s.task == nil || s.gen != h.gen() {
		return nil, fmt.Errorf("stale handle %s: %w", h, core.ErrInvalidArgument)
	}
	return s.task, nil
}

// Deinit tears the Task down and invalidates h.
func (tb *Table) Deinit(h Handle) error {
	tb.mu.Lock()
	task, err := tb.lookupLocked(h)
	if err != nil {
		tb.mu.Unlock()
		return err
	}
	tb.release(h.index())
	tb.mu.Unlock()

	// The slot is already retired: a concurrent Deinit of the same handle
	// fails the lookup instead of racing the teardown.
	return task.Deinit()
}

// release retires a slot. Caller holds mu.
func (tb *Table) release(idx uint32) {
	s := &tb.slots[idx]
	s.task = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	tb.free = append(tb.free, idx)
	tb.live--
}

// Len returns the number of live Tasks.
func (tb *Table) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.live
}

// Handles returns the live handles in slot order.
func (tb *Table) Handles() []Handle {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make([]Handle, 0, tb.live)
	for i, s := range tb.slots {
		if s.task != nil {
			out = append(out, makeHandle(uint32(i), s.gen))
		}
	}
	return out
}

// Close deinitializes every live Task and returns the combined errors.
func (tb *Table) Close() error {
	tb.mu.Lock()
	var tasks []*core.Task
	for i := range tb.slots {
		if tb.slots[i].task != nil {
			tasks = append(tasks, tb.slots[i].task)
			tb.release(uint32(i))
		}
	}
	tb.mu.Unlock()

	var err error
	for _, task := range tasks {
		err = multierr.Append(err, task.Close())
	}
	return err
}

// =============================================================================
// Handle Operations
// =============================================================================

func (tb *Table) control(h Handle, op core.Op) error {
	task, err := tb.Lookup(h)
	if err != nil {
		return err
	}
	return task.Do(context.Background(), op)
}

func (tb *Table) Run(h Handle) error    { return tb.control(h, core.OpRun) }
func (tb *Table) Stop(h Handle) error   { return tb.control(h, core.OpStop) }
func (tb *Table) Pause(h Handle) error  { return tb.control(h, core.OpPause) }
func (tb *Table) Resume(h Handle) error { return tb.control(h, core.OpResume) }
func (tb *Table) Reset(h Handle) error  { return tb.control(h, core.OpReset) }

// RegisterReadyJob registers a job on the Task behind h.
func (tb *Table) RegisterReadyJob(h Handle, label string, fn core.JobFunc, times core.JobTimes, arg any, done bool) (core.JobID, error) {
	task, err := tb.Lookup(h)
	if err != nil {
		return 0, err
	}
	return task.RegisterReadyJob(label, fn, times, arg, done)
}

// SetEventFunc replaces the event listener of the Task behind h.
func (tb *Table) SetEventFunc(h Handle, fn core.EventFunc, userCtx any) error {
	task, err := tb.Lookup(h)
	if err != nil {
		return err
	}
	return task.SetEventFunc(fn, userCtx)
}

// SetTimeout sets the control timeout in milliseconds. WaitForever waits
// without bound.
func (tb *Table) SetTimeout(h Handle, ms uint32) error {
	task, err := tb.Lookup(h)
	if err != nil {
		return err
	}
	d := core.MaxDelay
	if ms != WaitForever {
		d = time.Duration(ms) * time.Millisecond
	}
	return task.SetTimeout(d)
}

// GetState returns the state of the Task behind h. It only fails on an
// invalid handle.
func (tb *Table) GetState(h Handle) (core.State, error) {
	task, err := tb.Lookup(h)
	if err != nil {
		return core.StateUninitialized, err
	}
	return task.State(), nil
}
