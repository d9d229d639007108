package core

import (
	"context"
	"fmt"
	"strconv"
)

// JobResult is returned by a JobFunc to steer scheduling.
type JobResult int

const (
	// JobContinue keeps the job scheduled (subject to its JobTimes policy).
	JobContinue JobResult = iota
	// JobDone retires the job immediately.
	JobDone
	// JobFail forces the owning Task into StateError, same as returning an error.
	JobFail
)

func (r JobResult) String() string {
	switch r {
	case JobContinue:
		return "continue"
	case JobDone:
		return "done"
	case JobFail:
		return "fail"
	default:
		return fmt.Sprintf("JobResult(%d)", int(r))
	}
}

// JobFunc is one unit of work, invoked once per pass while the job is ready.
// arg is the opaque context given at registration.
//
// ctx is cancelled when the owning Task is deinitialized; it is not cancelled
// by stop or pause, which are honored between jobs.
type JobFunc func(ctx context.Context, arg any) (JobResult, error)

// JobTimes is the execution-count policy of a job.
type JobTimes int

const (
	// JobTimesInfinite runs the job on every pass until it returns JobDone.
	JobTimesInfinite JobTimes = -1
	// JobTimesOnce runs the job exactly once.
	JobTimesOnce JobTimes = 1
)

// JobTimesN runs the job at most n times.
func JobTimesN(n int) JobTimes {
	return JobTimes(n)
}

func (t JobTimes) valid() bool {
	return t == JobTimesInfinite || t > 0
}

func (t JobTimes) String() string {
	switch {
	case t == JobTimesInfinite:
		return "infinite"
	case t == JobTimesOnce:
		return "once"
	case t > 0:
		return strconv.Itoa(int(t)) + "x"
	default:
		return fmt.Sprintf("JobTimes(%d)", int(t))
	}
}

// JobID identifies a job within its Task. IDs are never reused by a Task.
type JobID uint64

func (id JobID) String() string {
	return "job-" + strconv.FormatUint(uint64(id), 10)
}

// JobInfo is a snapshot of a registered job.
type JobInfo struct {
	ID        JobID
	Label     string
	Times     JobTimes
	Remaining int // -1 for infinite
	Runs      uint64
	Done      bool
}
