package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Task owns one execution goroutine that runs registered jobs in passes and
// applies control requests between passes.
//
// Control operations (Run, Stop, Pause, Resume, Reset) are validated against
// the state table in State, posted to the execution goroutine and awaited up to
// the configured timeout. On ErrTimeout the request stays posted and may still
// complete; poll State afterwards.
//
// The job registry and the state are written only by the execution goroutine,
// except for job (un)registration, which goes through the same lock control
// requests are posted under. Jobs registered while a pass is in progress run
// from the next pass on.
type Task struct {
	id     string
	name   string
	thread ThreadConfig

	sync   *ControlSynchronizer
	jobs   *JobRegistry
	events *EventChannel

	// state is written under sync.mu by the execution goroutine and read lock-free.
	state atomic.Int32

	// guarded by sync.mu
	quitting   bool
	closed     bool
	lastErr    error
	lastChange time.Time

	idleWait     time.Duration
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	history  *executionHistory
	passes   atomic.Uint64
	jobRuns  atomic.Uint64
	timeouts atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	deinitOnce sync.Once
}

var errTaskClosed = fmt.Errorf("task already deinitialized: %w", ErrInvalidArgument)

// NewTask validates cfg and starts the execution goroutine. The Task starts in
// StateIdle.
func NewTask(cfg TaskConfig) (*Task, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout %s: %w", cfg.Timeout, ErrInvalidArgument)
	}
	if cfg.MaxJobs < 0 {
		return nil, fmt.Errorf("max jobs %d: %w", cfg.MaxJobs, ErrInvalidArgument)
	}
	cfg.applyDefaults()
	if err := cfg.Thread.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		id:           uuid.NewString(),
		name:         cfg.Name,
		thread:       cfg.Thread,
		sync:         newControlSynchronizer(cfg.Timeout),
		jobs:         NewJobRegistry(cfg.MaxJobs),
		events:       NewEventChannel(cfg.Name, cfg.EventFunc, cfg.UserCtx),
		idleWait:     cfg.IdleWait,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		history:      newExecutionHistory(cfg.HistorySize),
		cancel:       cancel,
		exited:       make(chan struct{}),
		lastChange:   time.Now(),
	}
	t.ctx = context.WithValue(ctx, taskKey, t)
	t.state.Store(int32(StateIdle))

	go t.runLoop()

	t.logger.Debug("task created",
		F("task", t.name),
		F("id", t.id),
		F("stack", t.thread.StackSize),
		F("prio", t.thread.Priority),
		F("core", t.thread.Core),
		F("stack_in_ext", t.thread.StackInExt),
	)
	return t, nil
}

// =============================================================================
// Context Helper
// =============================================================================

type taskKeyType struct{}

var taskKey taskKeyType

// CurrentTask returns the Task whose job is running with ctx, or nil.
func CurrentTask(ctx context.Context) *Task {
	if v := ctx.Value(taskKey); v != nil {
		return v.(*Task)
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// ID returns the instance identifier of the task.
func (t *Task) ID() string { return t.id }

// Name returns the diagnostic name of the task.
func (t *Task) Name() string { return t.name }

// Thread returns the thread configuration the task was created with.
func (t *Task) Thread() ThreadConfig { return t.thread }

// State returns the current state. It never blocks.
func (t *Task) State() State {
	if t == nil {
		return StateUninitialized
	}
	return State(t.state.Load())
}

// LastError returns the error that moved the task into StateError, if any.
func (t *Task) LastError() error {
	if t == nil || t.sync == nil {
		return nil
	}
	t.sync.mu.Lock()
	defer t.sync.mu.Unlock()
	return t.lastErr
}

// Timeout returns the bound applied to control operations.
func (t *Task) Timeout() time.Duration {
	if t == nil || t.sync == nil {
		return 0
	}
	return t.sync.Timeout()
}

// SetTimeout changes the bound applied to subsequent control operations.
// Zero makes them return ErrTimeout unless already complete; MaxDelay waits forever.
func (t *Task) SetTimeout(d time.Duration) error {
	if err := t.checkHandle(); err != nil {
		return err
	}
	return t.sync.SetTimeout(d)
}

// SetEventFunc replaces the single event listener. The last writer wins.
func (t *Task) SetEventFunc(fn EventFunc, userCtx any) error {
	if err := t.checkHandle(); err != nil {
		return err
	}
	t.events.SetFunc(fn, userCtx)
	return nil
}

// checkHandle rejects nil, zero-value and deinitialized tasks.
func (t *Task) checkHandle() error {
	if t == nil || t.sync == nil {
		return fmt.Errorf("task handle: %w", ErrInvalidArgument)
	}
	t.sync.mu.Lock()
	closed := t.closed
	t.sync.mu.Unlock()
	if closed {
		return fmt.Errorf("task %q deinitialized: %w", t.name, ErrInvalidArgument)
	}
	return nil
}

// =============================================================================
// Job Registration
// =============================================================================

// RegisterReadyJob appends a job to the registry.
//
// A job registered with done=true is never executed, and reset restores it as
// done: it only marks a stage that is already complete. Registration is allowed
// in every state; while RUNNING the job joins from the next pass.
func (t *Task) RegisterReadyJob(label string, fn JobFunc, times JobTimes, arg any, done bool) (JobID, error) {
	if t == nil || t.sync == nil {
		return 0, fmt.Errorf("task handle: %w", ErrInvalidArgument)
	}

	t.sync.mu.Lock()
	if t.closed {
		t.sync.mu.Unlock()
		return 0, fmt.Errorf("task %q deinitialized: %w", t.name, ErrInvalidArgument)
	}
	id, err := t.jobs.Register(label, fn, times, arg, done)
	t.sync.mu.Unlock()
	if err != nil {
		return 0, err
	}

	t.sync.signal()
	t.logger.Debug("job registered",
		F("task", t.name),
		F("job", label),
		F("id", id),
		F("times", times),
		F("done", done),
	)
	return id, nil
}

// UnregisterJob removes a job. A pass already in progress skips it.
func (t *Task) UnregisterJob(id JobID) error {
	if err := t.checkHandle(); err != nil {
		return err
	}
	t.sync.mu.Lock()
	defer t.sync.mu.Unlock()
	return t.jobs.Unregister(id)
}

// Job returns a snapshot of one registered job.
func (t *Task) Job(id JobID) (JobInfo, error) {
	if err := t.checkHandle(); err != nil {
		return JobInfo{}, err
	}
	t.sync.mu.Lock()
	defer t.sync.mu.Unlock()
	return t.jobs.Get(id)
}

// Jobs returns a snapshot of all registered jobs in execution order.
func (t *Task) Jobs() []JobInfo {
	if t == nil || t.sync == nil {
		return nil
	}
	t.sync.mu.Lock()
	defer t.sync.mu.Unlock()
	return t.jobs.Jobs()
}

// =============================================================================
// Control Operations
// =============================================================================

// Run starts the task from IDLE or restarts it from STOPPED.
func (t *Task) Run() error { return t.control(context.Background(), OpRun) }

// Stop stops a running, paused or failed task.
func (t *Task) Stop() error { return t.control(context.Background(), OpStop) }

// Pause suspends a running task after its current pass.
func (t *Task) Pause() error { return t.control(context.Background(), OpPause) }

// Resume continues a paused task.
func (t *Task) Resume() error { return t.control(context.Background(), OpResume) }

// Reset returns an idle, stopped or failed task to IDLE and restores every job
// to its registration state.
func (t *Task) Reset() error { return t.control(context.Background(), OpReset) }

// RunContext is Run with an additional caller context.
func (t *Task) RunContext(ctx context.Context) error { return t.control(ctx, OpRun) }

// StopContext is Stop with an additional caller context.
func (t *Task) StopContext(ctx context.Context) error { return t.control(ctx, OpStop) }

// PauseContext is Pause with an additional caller context.
func (t *Task) PauseContext(ctx context.Context) error { return t.control(ctx, OpPause) }

// ResumeContext is Resume with an additional caller context.
func (t *Task) ResumeContext(ctx context.Context) error { return t.control(ctx, OpResume) }

// ResetContext is Reset with an additional caller context.
func (t *Task) ResetContext(ctx context.Context) error { return t.control(ctx, OpReset) }

// Do applies op; it is the dispatch form of the named control operations.
func (t *Task) Do(ctx context.Context, op Op) error { return t.control(ctx, op) }

func (t *Task) control(ctx context.Context, op Op) error {
	if t == nil {
		return fmt.Errorf("%s: task handle: %w", op, ErrInvalidArgument)
	}
	if t.sync == nil {
		return fmt.Errorf("%s while %s: %w", op, StateUninitialized, ErrNotSupported)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	expire, stopTimer := t.sync.deadline()
	defer stopTimer()

	// Wait for an earlier request to be applied before validating.
	var req *request
	for {
		t.sync.mu.Lock()
		if t.closed || t.quitting {
			t.sync.mu.Unlock()
			return fmt.Errorf("%s: task %q deinitialized: %w", op, t.name, ErrInvalidArgument)
		}
		prev := t.sync.pending
		if prev == nil {
			break
		}
		t.sync.mu.Unlock()
		if err := await(ctx, prev.done, expire, t.exited); err != nil {
			return t.controlFailed(op, err)
		}
	}

	st := t.State()
	tr := lookupTransition(st, op)
	switch {
	case !tr.ok:
		t.sync.mu.Unlock()
		return fmt.Errorf("%s while %s: %w", op, st, ErrNotSupported)
	case tr.noop:
		t.sync.mu.Unlock()
		return nil
	}
	req = t.sync.postLocked(op)
	t.sync.mu.Unlock()

	if err := await(ctx, req.done, expire, t.exited); err != nil {
		return t.controlFailed(op, err)
	}
	return req.err
}

func (t *Task) controlFailed(op Op, err error) error {
	if errors.Is(err, ErrTimeout) {
		t.timeouts.Add(1)
		t.metrics.RecordControlTimeout(t.name, op)
		t.logger.Warn("control operation timed out",
			F("task", t.name),
			F("op", op),
			F("timeout", t.sync.Timeout()),
			F("state", t.State()),
		)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WaitState polls until the task reaches want or ctx is done. It is meant for
// callers that got ErrTimeout and need to observe the eventual transition.
func (t *Task) WaitState(ctx context.Context, want State) error {
	if t == nil || t.sync == nil {
		return fmt.Errorf("task handle: %w", ErrInvalidArgument)
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if t.State() == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s (now %s): %w", want, t.State(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Teardown
// =============================================================================

// Deinit forces the task to STOPPED, waits for the execution goroutine to exit
// and releases the job registry and the event listener. A job still running is
// allowed to finish; its context is cancelled. After Deinit every operation on
// the task returns ErrInvalidArgument.
//
// Deinit must not be called from a job or an event callback: it would wait for
// the goroutine it is running on.
func (t *Task) Deinit() error {
	if t == nil || t.sync == nil {
		return fmt.Errorf("task handle: %w", ErrInvalidArgument)
	}

	first := false
	t.deinitOnce.Do(func() {
		first = true
		t.sync.mu.Lock()
		t.quitting = true
		t.sync.mu.Unlock()
		t.sync.signal()
		t.cancel()

		<-t.exited

		t.sync.mu.Lock()
		t.closed = true
		t.jobs.Clear()
		t.sync.mu.Unlock()
		t.events.release()

		t.logger.Debug("task deinitialized", F("task", t.name), F("id", t.id))
	})
	if !first {
		return fmt.Errorf("task %q: %w", t.name, errTaskClosed)
	}
	return nil
}

// =============================================================================
// Execution Loop
// =============================================================================

// runLoop is the core of this task, it occupies a dedicated goroutine.
func (t *Task) runLoop() {
	defer close(t.exited)

	for {
		t.sync.mu.Lock()
		if t.quitting {
			t.sync.mu.Unlock()
			t.shutdown()
			return
		}
		if req := t.sync.pending; req != nil {
			t.sync.mu.Unlock()
			t.service(req)
			continue
		}

		st := t.State()
		var pass []*jobEntry
		if st == StateRunning {
			pass = t.jobs.snapshot()
		}
		t.sync.mu.Unlock()

		if len(pass) > 0 {
			t.runPass(pass)
			continue
		}

		if st == StateRunning {
			// Nothing ready: sleep until a request or a registration arrives,
			// re-checking at least every idleWait.
			t.sync.idle(t.idleWait, t.ctx.Done())
		} else {
			t.sync.idle(0, t.ctx.Done())
		}
	}
}

// service applies one control request on the execution goroutine.
func (t *Task) service(req *request) {
	t.sync.mu.Lock()
	from := t.State()
	tr := lookupTransition(from, req.op)
	var err error
	switch {
	case !tr.ok:
		// The state moved since the request was validated (a job failed).
		err = fmt.Errorf("%s while %s: %w", req.op, from, ErrInvalidState)
	case !tr.noop:
		if req.op == OpReset {
			t.jobs.Reset()
			t.lastErr = nil
		}
		t.setStateLocked(tr.to)
	}
	t.sync.mu.Unlock()

	if err == nil && !tr.noop {
		t.emit(from, tr.to, nil)
		t.logger.Info("task state changed",
			F("task", t.name),
			F("op", req.op),
			F("from", from),
			F("to", tr.to),
		)
	}

	t.sync.mu.Lock()
	t.sync.completeLocked(req, err)
	t.sync.mu.Unlock()
}

// runPass visits every job of the snapshot once, in order. A failing job ends
// the pass and moves the task to ERROR.
func (t *Task) runPass(pass []*jobEntry) {
	n := t.passes.Add(1)

	for _, e := range pass {
		t.sync.mu.Lock()
		skip := e.done || !t.jobs.contains(e)
		t.sync.mu.Unlock()
		if skip {
			continue
		}

		rec := t.invoke(e, n)
		t.jobRuns.Add(1)
		t.history.Add(rec)
		t.metrics.RecordJobDuration(t.name, e.label, rec.Duration)

		if rec.Err != "" || rec.Result == JobFail {
			t.fail(e, rec)
			return
		}

		t.sync.mu.Lock()
		retired := t.jobs.complete(e, rec.Result)
		t.sync.mu.Unlock()
		if retired {
			t.logger.Debug("job retired",
				F("task", t.name),
				F("job", e.label),
				F("id", e.id),
				F("runs", e.runs),
			)
		}
	}
}

// invoke runs one job and converts panics into failures.
func (t *Task) invoke(e *jobEntry, pass uint64) (rec JobExecutionRecord) {
	rec = JobExecutionRecord{
		JobID:     e.id,
		Label:     e.label,
		TaskName:  t.name,
		Pass:      pass,
		StartedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			rec.Panicked = true
			rec.Result = JobFail
			rec.Err = fmt.Sprintf("panic: %v", r)
			t.panicHandler.HandlePanic(t.ctx, t.name, e.label, r, debug.Stack())
			t.metrics.RecordJobPanic(t.name, e.label, r)
		}
		rec.FinishedAt = time.Now()
		rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	}()

	res, err := e.fn(t.ctx, e.arg)
	rec.Result = res
	if err != nil {
		rec.Result = JobFail
		rec.Err = err.Error()
	}
	return rec
}

// fail moves the task to ERROR after a job failure. The event is emitted
// before any pending control request is serviced.
func (t *Task) fail(e *jobEntry, rec JobExecutionRecord) {
	cause := rec.Err
	if cause == "" {
		cause = "job returned " + JobFail.String()
	}
	jobErr := fmt.Errorf("job %q (%s): %s: %w", e.label, e.id, cause, ErrFailure)

	t.sync.mu.Lock()
	e.runs++
	from := t.State()
	t.lastErr = jobErr
	t.setStateLocked(StateError)
	t.sync.mu.Unlock()

	t.metrics.RecordJobError(t.name, e.label)
	t.logger.Error("job failed",
		F("task", t.name),
		F("job", e.label),
		F("id", e.id),
		F("error", cause),
	)
	t.emit(from, StateError, jobErr)
}

// shutdown forces STOPPED and fails any request still pending.
func (t *Task) shutdown() {
	t.sync.mu.Lock()
	from := t.State()
	if from != StateStopped {
		t.setStateLocked(StateStopped)
	}
	req := t.sync.pending
	t.sync.mu.Unlock()

	if from != StateStopped {
		t.emit(from, StateStopped, nil)
	}
	if req != nil {
		t.sync.mu.Lock()
		t.sync.completeLocked(req, fmt.Errorf("%s: task shutting down: %w", req.op, ErrInvalidState))
		t.sync.mu.Unlock()
	}
}

// setStateLocked records a transition. Caller holds sync.mu.
func (t *Task) setStateLocked(s State) {
	t.state.Store(int32(s))
	t.lastChange = time.Now()
}

func (t *Task) emit(from, to State, payload any) {
	t.metrics.RecordStateTransition(t.name, from, to)
	t.events.emit(from, to, payload)
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the task.
func (t *Task) Stats() TaskStats {
	if t == nil || t.sync == nil {
		return TaskStats{State: StateUninitialized}
	}

	t.sync.mu.Lock()
	st := TaskStats{
		ID:         t.id,
		Name:       t.name,
		State:      t.State(),
		Thread:     t.thread,
		Timeout:    t.sync.Timeout(),
		Jobs:       t.jobs.Len(),
		Ready:      t.jobs.Ready(),
		Pending:    t.sync.pending != nil,
		LastChange: t.lastChange,
	}
	if t.lastErr != nil {
		st.LastError = t.lastErr.Error()
	}
	t.sync.mu.Unlock()

	st.Passes = t.passes.Load()
	st.JobRuns = t.jobRuns.Load()
	st.Timeouts = t.timeouts.Load()
	if last, ok := t.history.Last(); ok {
		st.LastJob = last.Label
		st.LastJobAt = last.FinishedAt
	}
	return st
}

// RecentJobs returns up to limit job executions, newest first.
func (t *Task) RecentJobs(limit int) []JobExecutionRecord {
	if t == nil || t.history == nil {
		return nil
	}
	return t.history.Recent(limit)
}

// Close deinitializes the task. Unlike Deinit, closing a task that is already
// deinitialized returns nil, which suits owners tearing down many tasks.
func (t *Task) Close() error {
	if err := t.Deinit(); err != nil && !errors.Is(err, errTaskClosed) {
		return err
	}
	return nil
}
