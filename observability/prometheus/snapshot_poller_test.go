package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Swind/go-media-task/core"
)

func TestSnapshotPoller_CollectsTaskStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddSource("pipe-a", StatsFunc(func() []core.TaskStats {
		return []core.TaskStats{
			{Name: "dec", State: core.StatePaused, Jobs: 3, Ready: 2, Passes: 40, JobRuns: 100, Pending: true},
			{Name: "enc", State: core.StateError, Timeouts: 1},
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		jobs := testutil.ToFloat64(poller.taskJobs.WithLabelValues("pipe-a", "dec"))
		timeouts := testutil.ToFloat64(poller.taskTimeouts.WithLabelValues("pipe-a", "enc"))
		return jobs == 3 && timeouts == 1
	})

	if got := testutil.ToFloat64(poller.taskState.WithLabelValues("pipe-a", "dec")); got != float64(core.StatePaused) {
		t.Fatalf("dec state gauge = %v, want %d", got, core.StatePaused)
	}
	if got := testutil.ToFloat64(poller.taskPending.WithLabelValues("pipe-a", "dec")); got != 1 {
		t.Fatalf("dec pending gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.taskPending.WithLabelValues("pipe-a", "enc")); got != 0 {
		t.Fatalf("enc pending gauge = %v, want 0", got)
	}
}

func TestSnapshotPoller_TaskProvider(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := core.DefaultTaskConfig()
	cfg.Name = "overlay"
	task, err := core.NewTask(cfg)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()
	if _, err := task.RegisterReadyJob("draw", func(context.Context, any) (core.JobResult, error) {
		return core.JobDone, nil
	}, core.JobTimesOnce, nil, false); err != nil {
		t.Fatalf("RegisterReadyJob failed: %v", err)
	}

	poller.AddSource("solo", TaskProvider(task))
	poller.collectOnce()
	if got := testutil.ToFloat64(poller.taskState.WithLabelValues("solo", "overlay")); got != float64(core.StateIdle) {
		t.Fatalf("state gauge = %v, want idle", got)
	}
	if got := testutil.ToFloat64(poller.taskJobs.WithLabelValues("solo", "overlay")); got != 1 {
		t.Fatalf("jobs gauge = %v, want 1", got)
	}

	poller.RemoveSource("solo")
	if n := testutil.CollectAndCount(poller.taskState); n != 0 {
		t.Fatalf("series after RemoveSource = %d, want 0", n)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
