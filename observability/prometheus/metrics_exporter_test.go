package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-media-task/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("gmf", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordJobDuration("dec", "decode", 250*time.Microsecond)
	exporter.RecordJobError("dec", "decode")
	exporter.RecordJobPanic("dec", "decode", "panic")
	exporter.RecordStateTransition("dec", core.StateIdle, core.StateRunning)
	exporter.RecordStateTransition("dec", core.StateIdle, core.StateRunning)
	exporter.RecordControlTimeout("", core.OpPause)

	if got := testutil.ToFloat64(exporter.jobErrorsTotal.WithLabelValues("dec", "decode")); got != 1 {
		t.Fatalf("job errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.jobPanicsTotal.WithLabelValues("dec", "decode")); got != 1 {
		t.Fatalf("job panics = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.transitionsTotal.WithLabelValues("dec", "idle", "running")); got != 2 {
		t.Fatalf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.timeoutsTotal.WithLabelValues("unknown", "pause")); got != 1 {
		t.Fatalf("timeouts = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.jobDurationSeconds.WithLabelValues("dec", "decode"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("gmf", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("gmf", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordJobPanic("dec", "decode", nil)
	second.RecordJobPanic("dec", "decode", nil)

	got := testutil.ToFloat64(first.jobPanicsTotal.WithLabelValues("dec", "decode"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var m *MetricsExporter
	m.RecordJobDuration("dec", "decode", time.Millisecond)
	m.RecordJobError("dec", "decode")
	m.RecordJobPanic("dec", "decode", nil)
	m.RecordStateTransition("dec", core.StateIdle, core.StateRunning)
	m.RecordControlTimeout("dec", core.OpRun)
}

// TestMetricsExporter_TaskIntegration drives a real Task with the exporter
// installed as its Metrics.
func TestMetricsExporter_TaskIntegration(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("gmf", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	cfg := core.DefaultTaskConfig()
	cfg.Name = "enc"
	cfg.Metrics = exporter
	task, err := core.NewTask(cfg)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()

	if _, err := task.RegisterReadyJob("encode", func(context.Context, any) (core.JobResult, error) {
		return core.JobFail, errors.New("encoder stalled")
	}, core.JobTimesOnce, nil, false); err != nil {
		t.Fatalf("RegisterReadyJob failed: %v", err)
	}
	if err := task.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// the counters are updated after the state flips, so poll them
	errorsSeen := func() bool {
		return testutil.ToFloat64(exporter.jobErrorsTotal.WithLabelValues("enc", "encode")) == 1 &&
			testutil.ToFloat64(exporter.transitionsTotal.WithLabelValues("enc", "running", "error")) == 1
	}
	deadline := time.Now().Add(2 * time.Second)
	for !errorsSeen() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !errorsSeen() {
		t.Fatal("job error and running->error transition not recorded")
	}
	if got := task.State(); got != core.StateError {
		t.Fatalf("state = %s, want error", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
