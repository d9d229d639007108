package core

import (
	"fmt"
	"time"
)

const (
	DefaultStackSize = 4 * 1024
	DefaultPriority  = 5
	DefaultCore      = 0
	// MaxCore is the highest core index a ThreadConfig accepts.
	MaxCore = 15

	DefaultIdleWait = 100 * time.Millisecond
)

// ThreadConfig describes the execution context of a Task.
//
// Goroutines have no per-goroutine stack size, priority or CPU affinity, so
// these values are validated and reported through Stats but not applied to the
// scheduler.
type ThreadConfig struct {
	StackSize  int
	Priority   int
	Core       uint8
	StackInExt bool
}

// DefaultThreadConfig returns the thread defaults of a media element task.
func DefaultThreadConfig() ThreadConfig {
	return ThreadConfig{
		StackSize: DefaultStackSize,
		Priority:  DefaultPriority,
		Core:      DefaultCore,
	}
}

// Validate reports settings a Task would reject.
func (c ThreadConfig) Validate() error {
	if c.StackSize <= 0 {
		return fmt.Errorf("stack size %d: %w", c.StackSize, ErrInvalidArgument)
	}
	if c.Priority < 0 {
		return fmt.Errorf("priority %d: %w", c.Priority, ErrInvalidArgument)
	}
	if c.Core > MaxCore {
		return fmt.Errorf("core %d: %w", c.Core, ErrInvalidArgument)
	}
	return nil
}

// TaskConfig holds configuration options for a Task.
// All handlers are optional; if not provided, default implementations are used.
type TaskConfig struct {
	Thread ThreadConfig

	// Name is used in events, logs and metrics.
	Name string
	// UserCtx is handed back in every Event.
	UserCtx any
	// EventFunc is the initial listener; see SetEventFunc.
	EventFunc EventFunc

	// Timeout bounds synchronous control operations. Zero selects
	// DefaultControlTimeout; use MaxDelay to wait forever.
	Timeout time.Duration
	// IdleWait bounds how long a running Task with no ready job sleeps before
	// re-checking. Zero selects DefaultIdleWait.
	IdleWait time.Duration
	// MaxJobs caps the job registry; registering beyond it fails with
	// ErrOutOfMemory. Zero means unlimited.
	MaxJobs int
	// HistorySize is the number of job executions kept for RecentJobs.
	HistorySize int

	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// DefaultTaskConfig returns a config with default thread settings and handlers.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		Thread:       DefaultThreadConfig(),
		Timeout:      DefaultControlTimeout,
		IdleWait:     DefaultIdleWait,
		Logger:       NewNoOpLogger(),
		Metrics:      &NilMetrics{},
		PanicHandler: &DefaultPanicHandler{},
	}
}

func (c *TaskConfig) applyDefaults() {
	if c.Thread == (ThreadConfig{}) {
		c.Thread = DefaultThreadConfig()
	}
	if c.Name == "" {
		c.Name = "gmf-task"
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultControlTimeout
	}
	if c.IdleWait <= 0 {
		c.IdleWait = DefaultIdleWait
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
}
