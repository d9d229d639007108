package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MaxDelay as a control timeout makes control operations wait without bound.
const MaxDelay = time.Duration(math.MaxInt64)

// DefaultControlTimeout bounds control operations when no timeout is configured.
const DefaultControlTimeout = 2 * time.Second

// request is one posted control operation.
type request struct {
	op   Op
	done chan struct{}
	err  error
}

func (r *request) finish(err error) {
	r.err = err
	close(r.done)
}

// ControlSynchronizer is the request/acknowledge point between control callers
// and a Task's execution goroutine.
//
// A request is visible through the pending field, read and written under mu.
// wake is only a hint that something changed: it holds at most one token, and
// the execution goroutine re-reads pending under mu after every wakeup, so a
// request posted while the goroutine is between passes is never missed.
//
// At most one request is pending. It stays pending until the execution
// goroutine has applied it, so a later caller always validates against the
// state the earlier request produced.
type ControlSynchronizer struct {
	mu      sync.Mutex
	pending *request

	wake    chan struct{}
	timeout atomic.Int64
}

func newControlSynchronizer(timeout time.Duration) *ControlSynchronizer {
	s := &ControlSynchronizer{wake: make(chan struct{}, 1)}
	s.timeout.Store(int64(timeout))
	return s
}

// Timeout returns the bound applied to synchronous control waits.
func (s *ControlSynchronizer) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// SetTimeout changes the bound for subsequent control operations.
// Zero means do not wait at all; MaxDelay means wait forever.
func (s *ControlSynchronizer) SetTimeout(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("timeout %s: %w", d, ErrInvalidArgument)
	}
	s.timeout.Store(int64(d))
	return nil
}

// signal wakes the execution goroutine if it is waiting.
func (s *ControlSynchronizer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
		// a token is already queued
	}
}

// postLocked publishes a request. Caller holds mu and has checked pending == nil.
func (s *ControlSynchronizer) postLocked(op Op) *request {
	req := &request{op: op, done: make(chan struct{})}
	s.pending = req
	s.signal()
	return req
}

// completeLocked retires the pending request. Caller holds mu.
func (s *ControlSynchronizer) completeLocked(req *request, err error) {
	if s.pending == req {
		s.pending = nil
	}
	req.finish(err)
}

// idle blocks the execution goroutine until signalled, until d elapses
// (d <= 0 waits for a signal only) or until stop is closed.
func (s *ControlSynchronizer) idle(d time.Duration, stop <-chan struct{}) {
	if d <= 0 {
		select {
		case <-s.wake:
		case <-stop:
		}
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.wake:
	case <-timer.C:
	case <-stop:
	}
}

// deadline starts the wait bound for one control call.
// The returned channel is nil when the call may wait forever.
func (s *ControlSynchronizer) deadline() (<-chan time.Time, func()) {
	d := s.Timeout()
	if d == MaxDelay {
		return nil, func() {}
	}
	timer := time.NewTimer(d)
	return timer.C, func() { timer.Stop() }
}

// await waits for ch to close, bounded by expire, ctx and exited.
func await(ctx context.Context, ch <-chan struct{}, expire <-chan time.Time, exited <-chan struct{}) error {
	// completion wins over a simultaneous timeout
	select {
	case <-ch:
		return nil
	default:
	}

	select {
	case <-ch:
		return nil
	case <-expire:
		select {
		case <-ch:
			return nil
		default:
		}
		return ErrTimeout
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case <-exited:
		select {
		case <-ch:
			return nil
		default:
		}
		return ErrInvalidState
	}
}
