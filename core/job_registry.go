package core

import (
	"fmt"
	"slices"
)

type jobEntry struct {
	id    JobID
	label string
	fn    JobFunc
	arg   any
	times JobTimes

	// registration-time state, restored by reset
	initDone bool

	remaining int
	done      bool
	runs      uint64
}

func (e *jobEntry) info() JobInfo {
	return JobInfo{
		ID:        e.id,
		Label:     e.label,
		Times:     e.times,
		Remaining: e.remaining,
		Runs:      e.runs,
		Done:      e.done,
	}
}

func (e *jobEntry) restore() {
	e.done = e.initDone
	e.remaining = int(e.times)
	e.runs = 0
}

// JobRegistry is the ordered collection of jobs owned by one Task.
//
// JobRegistry is not safe for concurrent use. A Task guards it with the mutex
// of its ControlSynchronizer, which is also the lock control requests are
// posted under.
type JobRegistry struct {
	jobs    []*jobEntry
	nextID  JobID
	maxJobs int
}

// NewJobRegistry creates an empty registry. maxJobs <= 0 means unlimited.
func NewJobRegistry(maxJobs int) *JobRegistry {
	return &JobRegistry{maxJobs: maxJobs}
}

// Register appends a job. Registration order is execution order.
// Duplicate labels are allowed.
func (r *JobRegistry) Register(label string, fn JobFunc, times JobTimes, arg any, done bool) (JobID, error) {
	if fn == nil {
		return 0, fmt.Errorf("job %q has nil func: %w", label, ErrInvalidArgument)
	}
	if !times.valid() {
		return 0, fmt.Errorf("job %q has invalid policy %s: %w", label, times, ErrInvalidArgument)
	}
	if r.maxJobs > 0 && len(r.jobs) >= r.maxJobs {
		return 0, fmt.Errorf("job registry full (%d jobs): %w", r.maxJobs, ErrOutOfMemory)
	}

	r.nextID++
	e := &jobEntry{
		id:       r.nextID,
		label:    label,
		fn:       fn,
		arg:      arg,
		times:    times,
		initDone: done,
	}
	e.restore()
	r.jobs = append(r.jobs, e)
	return e.id, nil
}

// Unregister removes a job entirely; it will not come back on reset.
func (r *JobRegistry) Unregister(id JobID) error {
	i := slices.IndexFunc(r.jobs, func(e *jobEntry) bool { return e.id == id })
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	r.jobs = slices.Delete(r.jobs, i, i+1)
	return nil
}

func (r *JobRegistry) contains(e *jobEntry) bool {
	return slices.Contains(r.jobs, e)
}

// snapshot returns the jobs that one pass visits, in registration order.
// Jobs registered after the snapshot are not part of it.
func (r *JobRegistry) snapshot() []*jobEntry {
	out := make([]*jobEntry, 0, len(r.jobs))
	for _, e := range r.jobs {
		if !e.done {
			out = append(out, e)
		}
	}
	return out
}

// complete records one finished invocation and reports whether the job retired.
func (r *JobRegistry) complete(e *jobEntry, res JobResult) bool {
	e.runs++
	if e.remaining > 0 {
		e.remaining--
	}
	if res == JobDone || e.remaining == 0 {
		e.done = true
	}
	return e.done
}

// Reset restores every job to its registration-time state.
func (r *JobRegistry) Reset() {
	for _, e := range r.jobs {
		e.restore()
	}
}

// Ready returns the number of jobs the next pass would visit.
func (r *JobRegistry) Ready() int {
	n := 0
	for _, e := range r.jobs {
		if !e.done {
			n++
		}
	}
	return n
}

// Len returns the number of registered jobs, retired ones included.
func (r *JobRegistry) Len() int {
	return len(r.jobs)
}

// Get returns a snapshot of one job.
func (r *JobRegistry) Get(id JobID) (JobInfo, error) {
	for _, e := range r.jobs {
		if e.id == id {
			return e.info(), nil
		}
	}
	return JobInfo{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Jobs returns a snapshot of all jobs in registration order.
func (r *JobRegistry) Jobs() []JobInfo {
	out := make([]JobInfo, len(r.jobs))
	for i, e := range r.jobs {
		out[i] = e.info()
	}
	return out
}

// Clear drops every job and releases their contexts.
func (r *JobRegistry) Clear() {
	clear(r.jobs)
	r.jobs = nil
}
