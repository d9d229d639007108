// Package mediatask provides the per-element task scheduler of a streaming
// media pipeline.
//
// Every pipeline element owns a Task: a dedicated goroutine that runs the
// element's registered jobs in passes while other goroutines drive it through
// run, pause, resume, stop and reset. Control calls are validated against a
// fixed state table, handed to the Task's goroutine and awaited up to a
// configurable timeout.
//
// # Quick Start
//
// Create a Task and register its jobs:
//
//	h, err := mediatask.Init(mediatask.DefaultTaskConfig())
//	if err != nil {
//		return err
//	}
//	defer mediatask.Deinit(h)
//
//	mediatask.RegisterReadyJob(h, "open", openCodec, mediatask.JobTimesOnce, nil, false)
//	mediatask.RegisterReadyJob(h, "process", processFrame, mediatask.JobTimesInfinite, nil, false)
//
//	mediatask.Run(h)
//
// # Key Concepts
//
// Task: the state machine and run loop. It lives in package core and can be
// used directly; this package adds generation-checked Handles on top.
//
// Job: a JobFunc plus a JobTimes policy (once, N times, infinite). A job
// returning an error, JobFail or panicking moves the Task to StateError.
//
// Event: every accepted state transition is delivered to a single listener
// registered with SetEventFunc. Package pipeline fans events out to several
// listeners and owns the retry policy for failed Tasks.
//
// # Handles
//
// Init returns a Handle into a Table. Deinit bumps the slot generation, so a
// stale Handle fails with ErrInvalidArgument instead of reaching another Task.
// The package-level functions use GlobalTable; create a Table with NewTable to
// scope handles to one pipeline.
//
// # Timeouts
//
// A control call that times out returns ErrTimeout but stays posted: the
// transition still happens once the current pass ends. Poll GetState, or use
// Task.WaitState, to observe it.
package mediatask
