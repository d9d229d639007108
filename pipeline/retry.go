package pipeline

import (
	"sync"
	"time"

	"github.com/Swind/go-media-task/core"
)

// retryState tracks restarts of one Task since it was last started by hand.
type retryState struct {
	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	// done is called exactly once per scheduled restart, fired or cancelled.
	done func()
}

// next reserves the next attempt number, or returns false when the policy is
// exhausted or a restart is already scheduled.
func (r *retryState) next(max int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil || r.attempts >= max {
		return 0, false
	}
	n := r.attempts
	r.attempts++
	return n, true
}

// schedule runs fn after delay. The timer is armed under mu so fn never
// observes a half-scheduled state.
func (r *retryState) schedule(delay time.Duration, fn, done func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = done
	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		r.timer, r.done = nil, nil
		r.mu.Unlock()
		defer done()
		fn()
	})
}

// rearm clears the attempt count after a manual run or reset.
func (r *retryState) rearm() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

// Attempts returns the restarts made so far.
func (r *retryState) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *retryState) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		if r.timer.Stop() && r.done != nil {
			r.done()
		}
		r.timer, r.done = nil, nil
	}
}

// scheduleRetry runs on the failing Task's execution goroutine. The restart
// itself happens on a timer goroutine: the execution goroutine cannot service
// its own control requests.
func (p *Pipeline) scheduleRetry(ev core.Event) {
	// held until the timer is armed so Close cannot start waiting in between
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.stages[ev.Task]
	if !ok || p.closed {
		return
	}

	attempt, ok := st.retry.next(p.retry.MaxRetries)
	if !ok {
		p.logger.Warn("task failed, not restarting",
			core.F("pipeline", p.name),
			core.F("task", ev.Task),
			core.F("attempts", st.retry.Attempts()),
			core.F("error", ev.Payload),
		)
		return
	}

	delay := p.retry.Delay(attempt)
	p.logger.Warn("task failed, restarting",
		core.F("pipeline", p.name),
		core.F("task", ev.Task),
		core.F("attempt", attempt+1),
		core.F("delay", delay),
		core.F("error", ev.Payload),
	)

	p.wg.Add(1)
	st.retry.schedule(delay, func() { p.restart(ev.Task, st) }, p.wg.Done)
}

func (p *Pipeline) restart(name string, st *stage) {
	st.ctl.Lock()
	defer st.ctl.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	// an explicit control call got in first
	if s := st.task.State(); s != core.StateError {
		p.logger.Debug("restart skipped", core.F("pipeline", p.name), core.F("task", name), core.F("state", s))
		return
	}
	if err := st.task.ResetContext(p.ctx); err != nil {
		p.logger.Error("restart: reset failed", core.F("pipeline", p.name), core.F("task", name), core.F("error", err))
		return
	}
	if err := st.task.RunContext(p.ctx); err != nil {
		p.logger.Error("restart: run failed", core.F("pipeline", p.name), core.F("task", name), core.F("error", err))
		return
	}
	p.logger.Info("task restarted", core.F("pipeline", p.name), core.F("task", name))
}
