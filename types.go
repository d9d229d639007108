package mediatask

import "github.com/Swind/go-media-task/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the mediatask package for most use cases.

// Task is the per-element scheduler behind a Handle
type Task = core.Task

// TaskConfig and ThreadConfig configure Init
type TaskConfig = core.TaskConfig
type ThreadConfig = core.ThreadConfig

// State is the lifecycle state of a Task
type State = core.State

// Op names a control operation
type Op = core.Op

// JobFunc is the unit of work registered on a Task
type JobFunc = core.JobFunc

// JobResult tells the Task what to do with a job after an invocation
type JobResult = core.JobResult

// JobTimes is the execution policy of a job
type JobTimes = core.JobTimes

// JobID identifies a job within its Task
type JobID = core.JobID

// Event and EventFunc carry state transitions to the owner
type Event = core.Event
type EventFunc = core.EventFunc

// State constants
const (
	StateUninitialized = core.StateUninitialized
	StateIdle          = core.StateIdle
	StateRunning       = core.StateRunning
	StatePaused        = core.StatePaused
	StateStopped       = core.StateStopped
	StateError         = core.StateError
)

// Job result and policy constants
const (
	JobContinue = core.JobContinue
	JobDone     = core.JobDone
	JobFail     = core.JobFail

	JobTimesOnce     = core.JobTimesOnce
	JobTimesInfinite = core.JobTimesInfinite
)

// Error kinds
var (
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrOutOfMemory     = core.ErrOutOfMemory
	ErrNotFound        = core.ErrNotFound
	ErrNotSupported    = core.ErrNotSupported
	ErrInvalidState    = core.ErrInvalidState
	ErrTimeout         = core.ErrTimeout
	ErrFailure         = core.ErrFailure
)

// Convenience functions
var (
	NewTask             = core.NewTask
	DefaultTaskConfig   = core.DefaultTaskConfig
	DefaultThreadConfig = core.DefaultThreadConfig
	JobTimesN           = core.JobTimesN
	CurrentTask         = core.CurrentTask
)
