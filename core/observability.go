package core

import "time"

// JobExecutionRecord captures one finished job invocation.
type JobExecutionRecord struct {
	JobID      JobID
	Label      string
	TaskName   string
	Pass       uint64
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Result     JobResult
	Err        string
	Panicked   bool
}

// TaskStats is a point-in-time view of a Task.
type TaskStats struct {
	ID       string
	Name     string
	State    State
	Thread   ThreadConfig
	Timeout  time.Duration
	Jobs     int
	Ready    int
	Passes   uint64
	JobRuns  uint64
	Timeouts uint64
	Pending  bool
	// LastError is the most recent job failure; it is cleared by reset.
	LastError  string
	LastJob    string
	LastJobAt  time.Time
	LastChange time.Time
}
