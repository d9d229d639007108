package mediatask

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-media-task/core"
)

func TestTable_Lifecycle(t *testing.T) {
	tb := NewTable()
	defer tb.Close()

	h, err := tb.Init(core.DefaultTaskConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if h == 0 {
		t.Fatal("Init returned the zero handle")
	}
	if tb.Len() != 1 {
		t.Errorf("expected 1 live task, got %d", tb.Len())
	}

	st, err := tb.GetState(h)
	if err != nil || st != core.StateIdle {
		t.Errorf("expected idle, got %s (%v)", st, err)
	}

	var runs atomic.Int32
	if _, err := tb.RegisterReadyJob(h, "tick", func(context.Context, any) (core.JobResult, error) {
		runs.Add(1)
		return core.JobContinue, nil
	}, core.JobTimesInfinite, nil, false); err != nil {
		t.Fatalf("RegisterReadyJob: %v", err)
	}

	if err := tb.Run(h); err != nil {
		t.Fatalf("Run: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}

	if err := tb.Pause(h); err != nil {
		t.Errorf("Pause: %v", err)
	}
	if err := tb.Resume(h); err != nil {
		t.Errorf("Resume: %v", err)
	}
	if err := tb.Stop(h); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := tb.Reset(h); err != nil {
		t.Errorf("Reset: %v", err)
	}
	if err := tb.Resume(h); !errors.Is(err, core.ErrNotSupported) {
		t.Errorf("Resume from idle: expected ErrNotSupported, got %v", err)
	}

	if err := tb.Deinit(h); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if tb.Len() != 0 {
		t.Errorf("expected no live task, got %d", tb.Len())
	}
}

// TestTable_StaleHandle tests generation checks
// Main test items:
// 1. The zero handle and out-of-range handles are rejected
// 2. A handle is rejected after Deinit, even when its slot is reused
// 3. Double Deinit fails
func TestTable_StaleHandle(t *testing.T) {
	tb := NewTable()
	defer tb.Close()

	if _, err := tb.GetState(0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("zero handle: expected ErrInvalidArgument, got %v", err)
	}
	if err := tb.Run(makeHandle(7, 1)); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("unknown slot: expected ErrInvalidArgument, got %v", err)
	}

	old, err := tb.Init(core.DefaultTaskConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tb.Deinit(old); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if err := tb.Deinit(old); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("second Deinit: expected ErrInvalidArgument, got %v", err)
	}

	reused, err := tb.Init(core.DefaultTaskConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if reused.index() != old.index() {
		t.Errorf("expected slot %d to be reused, got %d", old.index(), reused.index())
	}
	if reused == old {
		t.Fatal("reused slot kept its generation")
	}

	if _, err := tb.GetState(old); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("stale handle: expected ErrInvalidArgument, got %v", err)
	}
	if err := tb.SetEventFunc(old, nil, nil); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("stale handle: expected ErrInvalidArgument, got %v", err)
	}
	if st, err := tb.GetState(reused); err != nil || st != core.StateIdle {
		t.Errorf("reused handle: expected idle, got %s (%v)", st, err)
	}
}

func TestTable_SetTimeout(t *testing.T) {
	tb := NewTable()
	defer tb.Close()

	h, err := tb.Init(core.DefaultTaskConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	task, err := tb.Lookup(h)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if err := tb.SetTimeout(h, 250); err != nil {
		t.Fatalf("SetTimeout: %v", err)
	}
	if task.Timeout() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", task.Timeout())
	}

	if err := tb.SetTimeout(h, WaitForever); err != nil {
		t.Fatalf("SetTimeout: %v", err)
	}
	if task.Timeout() != core.MaxDelay {
		t.Errorf("expected MaxDelay, got %s", task.Timeout())
	}
}

func TestTable_Close(t *testing.T) {
	tb := NewTable()
	var handles []Handle
	for range 3 {
		h, err := tb.Init(core.DefaultTaskConfig())
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := tb.Run(h); err != nil {
			t.Fatalf("Run: %v", err)
		}
		handles = append(handles, h)
	}
	if got := len(tb.Handles()); got != 3 {
		t.Errorf("expected 3 handles, got %d", got)
	}

	if err := tb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, h := range handles {
		if _, err := tb.Lookup(h); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("%s still resolves after Close", h)
		}
	}
}

func TestGlobalTable(t *testing.T) {
	defer ShutdownGlobalTable()

	h, err := Init(core.DefaultTaskConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Run(h); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st, _ := GetState(h); st != StateRunning {
		t.Errorf("expected running, got %s", st)
	}

	if err := ShutdownGlobalTable(); err != nil {
		t.Fatalf("ShutdownGlobalTable: %v", err)
	}
	if _, err := GetState(h); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument after shutdown, got %v", err)
	}
}
