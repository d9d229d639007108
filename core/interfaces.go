package core

import (
	"context"
	"fmt"
	"os"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling job panics
// =============================================================================

// PanicHandler is called when a job panics during execution.
// The panic is recovered and the job counts as failed, which moves the Task to
// StateError.
//
// Implementations should be thread-safe; different Tasks call it concurrently.
type PanicHandler interface {
	// HandlePanic is called when a job panics.
	//
	// Parameters:
	// - ctx: The job context (carries the Task, see CurrentTask)
	// - taskName: The name of the task that owns the job
	// - jobLabel: The label the job was registered with
	// - panicInfo: The panic value recovered from the job
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, taskName string, jobLabel string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler writes panic information to stderr.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stderr.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, taskName string, jobLabel string, panicInfo any, stackTrace []byte) {
	fmt.Fprintf(os.Stderr, "[Task %s] job %q panic: %v\nStack trace:\n%s", taskName, jobLabel, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from the execution goroutine of each Task and from control
// callers; they should be non-blocking and fast.
type Metrics interface {
	// RecordJobDuration records how long one job invocation took.
	RecordJobDuration(taskName string, jobLabel string, duration time.Duration)

	// RecordJobError records a job that returned an error or JobFail.
	RecordJobError(taskName string, jobLabel string)

	// RecordJobPanic records a job that panicked.
	RecordJobPanic(taskName string, jobLabel string, panicInfo any)

	// RecordStateTransition records an accepted state transition.
	RecordStateTransition(taskName string, from, to State)

	// RecordControlTimeout records a control operation that returned ErrTimeout.
	RecordControlTimeout(taskName string, op Op)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordJobDuration(taskName string, jobLabel string, duration time.Duration) {}
func (m *NilMetrics) RecordJobError(taskName string, jobLabel string)                          {}
func (m *NilMetrics) RecordJobPanic(taskName string, jobLabel string, panicInfo any)           {}
func (m *NilMetrics) RecordStateTransition(taskName string, from, to State)                    {}
func (m *NilMetrics) RecordControlTimeout(taskName string, op Op)                              {}
