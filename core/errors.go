package core

import "errors"

// Error kinds returned by Task, JobRegistry and the method dispatcher.
// Callers compare with errors.Is; returned errors may wrap additional context.
var (
	// ErrInvalidArgument reports a bad handle, nil function or out-of-range value.
	ErrInvalidArgument = errors.New("gmf: invalid argument")
	// ErrOutOfMemory reports that a registry or buffer could not grow.
	ErrOutOfMemory = errors.New("gmf: out of memory")
	// ErrNotFound reports that no job or method matched.
	ErrNotFound = errors.New("gmf: not found")
	// ErrNotSupported reports an operation that is invalid for the current state.
	ErrNotSupported = errors.New("gmf: operation not supported in current state")
	// ErrInvalidState reports that the execution goroutine is not in the state the
	// operation assumes (for example, it exited while the operation was in flight).
	ErrInvalidState = errors.New("gmf: invalid state")
	// ErrTimeout reports that a synchronous control wait exceeded its bound.
	// The request is not cancelled; poll State afterwards.
	ErrTimeout = errors.New("gmf: control operation timed out")
	// ErrFailure wraps job or element errors propagated from deeper layers.
	ErrFailure = errors.New("gmf: failure")
)
