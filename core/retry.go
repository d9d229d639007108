package core

import "time"

// RetryPolicy describes how an owning pipeline restarts a Task that entered
// StateError. The scheduler itself never retries a failed job.
type RetryPolicy struct {
	// MaxRetries is the maximum number of restarts (0 = never restart).
	MaxRetries int

	// InitialDelay is the delay before the first restart.
	InitialDelay time.Duration

	// MaxDelay caps the delay between restarts.
	MaxDelay time.Duration

	// BackoffRatio multiplies the delay after each restart (2.0 doubles it).
	BackoffRatio float64
}

// DefaultRetryPolicy returns a policy with three exponential restarts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		BackoffRatio: 2.0,
	}
}

// NoRetry returns a policy that leaves failed tasks in StateError.
func NoRetry() RetryPolicy {
	return RetryPolicy{BackoffRatio: 1.0}
}

// Delay returns the wait before restart attempt (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay == 0 {
		return 0
	}

	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffRatio
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}
