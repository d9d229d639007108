package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAwait tests the bounded wait used by control callers
// Main test items:
// 1. A closed done channel wins even when the deadline already fired
// 2. Expiry yields ErrTimeout
// 3. Caller cancellation yields ErrTimeout wrapping the context error
// 4. Loop exit yields ErrInvalidState
func TestAwait(t *testing.T) {
	t.Run("CompletionWins", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		expire := make(chan time.Time, 1)
		expire <- time.Now()
		assert.NoError(t, await(context.Background(), done, expire, nil))
	})

	t.Run("Expired", func(t *testing.T) {
		expire := make(chan time.Time, 1)
		expire <- time.Now()
		assert.ErrorIs(t, await(context.Background(), make(chan struct{}), expire, nil), ErrTimeout)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := await(ctx, make(chan struct{}), nil, nil)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("LoopExited", func(t *testing.T) {
		exited := make(chan struct{})
		close(exited)
		assert.ErrorIs(t, await(context.Background(), make(chan struct{}), nil, exited), ErrInvalidState)
	})
}

// TestControlSynchronizer_Wake tests the level-triggered wake token
// Main test items:
// 1. Signals before idle are not lost
// 2. Repeated signals collapse into one token
// 3. idle returns on its timer without a signal
func TestControlSynchronizer_Wake(t *testing.T) {
	s := newControlSynchronizer(DefaultControlTimeout)

	s.signal()
	s.signal()
	s.signal()

	returned := make(chan struct{})
	go func() {
		s.idle(0, nil)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("idle missed a signal posted before it started")
	}

	start := time.Now()
	s.idle(10*time.Millisecond, nil)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "token should have been consumed")
}

// TestControlSynchronizer_Timeout tests timeout bookkeeping
func TestControlSynchronizer_Timeout(t *testing.T) {
	s := newControlSynchronizer(time.Second)
	assert.Equal(t, time.Second, s.Timeout())

	require.NoError(t, s.SetTimeout(0))
	expire, stop := s.deadline()
	require.NotNil(t, expire)
	<-expire
	stop()

	require.NoError(t, s.SetTimeout(MaxDelay))
	expire, stop = s.deadline()
	assert.Nil(t, expire)
	stop()

	assert.ErrorIs(t, s.SetTimeout(-time.Millisecond), ErrInvalidArgument)
	assert.Equal(t, MaxDelay, s.Timeout())
}

// TestControlSynchronizer_PostComplete tests the single pending slot
func TestControlSynchronizer_PostComplete(t *testing.T) {
	s := newControlSynchronizer(time.Second)

	s.mu.Lock()
	req := s.postLocked(OpPause)
	assert.Same(t, req, s.pending)
	s.completeLocked(req, ErrInvalidState)
	s.mu.Unlock()

	assert.Nil(t, s.pending)
	<-req.done
	assert.ErrorIs(t, req.err, ErrInvalidState)

	// postLocked left a wake token behind
	s.idle(0, nil)
}
