package mediatask

import (
	"sync"

	"github.com/Swind/go-media-task/core"
)

// =============================================================================
// Global Table Helper (Singleton)
// =============================================================================

var (
	globalTable *Table
	globalMu    sync.Mutex
)

// GlobalTable returns the process-wide table used by the package-level
// functions, creating it on first use.
func GlobalTable() *Table {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalTable == nil {
		globalTable = NewTable()
	}
	return globalTable
}

// ShutdownGlobalTable deinitializes every Task created through the
// package-level functions. Handles issued before the call become invalid.
func ShutdownGlobalTable() error {
	globalMu.Lock()
	tb := globalTable
	globalTable = nil
	globalMu.Unlock()

	if tb == nil {
		return nil
	}
	return tb.Close()
}

// Init creates a Task in the global table.
func Init(cfg core.TaskConfig) (Handle, error) { return GlobalTable().Init(cfg) }

// Deinit tears down the Task behind h and invalidates h.
func Deinit(h Handle) error { return GlobalTable().Deinit(h) }

// Lookup resolves h to its Task.
func Lookup(h Handle) (*core.Task, error) { return GlobalTable().Lookup(h) }

func Run(h Handle) error    { return GlobalTable().Run(h) }
func Stop(h Handle) error   { return GlobalTable().Stop(h) }
func Pause(h Handle) error  { return GlobalTable().Pause(h) }
func Resume(h Handle) error { return GlobalTable().Resume(h) }
func Reset(h Handle) error  { return GlobalTable().Reset(h) }

// RegisterReadyJob registers a job on the Task behind h.
func RegisterReadyJob(h Handle, label string, fn core.JobFunc, times core.JobTimes, arg any, done bool) (core.JobID, error) {
	return GlobalTable().RegisterReadyJob(h, label, fn, times, arg, done)
}

// SetEventFunc replaces the event listener of the Task behind h.
func SetEventFunc(h Handle, fn core.EventFunc, userCtx any) error {
	return GlobalTable().SetEventFunc(h, fn, userCtx)
}

// SetTimeout sets the control timeout of the Task behind h in milliseconds.
func SetTimeout(h Handle, ms uint32) error { return GlobalTable().SetTimeout(h, ms) }

// GetState returns the state of the Task behind h.
func GetState(h Handle) (core.State, error) { return GlobalTable().GetState(h) }
