package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-media-task/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	jobDurationSeconds *prom.HistogramVec
	jobErrorsTotal     *prom.CounterVec
	jobPanicsTotal     *prom.CounterVec
	transitionsTotal   *prom.CounterVec
	timeoutsTotal      *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "gmf"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		// 100us .. 6.5s
		buckets = prom.ExponentialBuckets(0.0001, 4, 9)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job invocation duration in seconds.",
		Buckets:   buckets,
	}, []string{"task", "job"})
	errorsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_errors_total",
		Help:      "Total number of failed job invocations.",
	}, []string{"task", "job"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panics_total",
		Help:      "Total number of job panics.",
	}, []string{"task", "job"})
	transitionsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total number of task state transitions.",
	}, []string{"task", "from", "to"})
	timeoutsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "control_timeouts_total",
		Help:      "Total number of control operations that timed out.",
	}, []string{"task", "op"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if errorsVec, err = registerCollector(reg, errorsVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if transitionsVec, err = registerCollector(reg, transitionsVec); err != nil {
		return nil, err
	}
	if timeoutsVec, err = registerCollector(reg, timeoutsVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds: durationVec,
		jobErrorsTotal:     errorsVec,
		jobPanicsTotal:     panicVec,
		transitionsTotal:   transitionsVec,
		timeoutsTotal:      timeoutsVec,
	}, nil
}

// RecordJobDuration records job invocation duration.
func (m *MetricsExporter) RecordJobDuration(taskName string, jobLabel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(normalizeLabel(taskName, "unknown"), normalizeLabel(jobLabel, "unknown")).Observe(duration.Seconds())
}

// RecordJobError records failed job invocations.
func (m *MetricsExporter) RecordJobError(taskName string, jobLabel string) {
	if m == nil {
		return
	}
	m.jobErrorsTotal.WithLabelValues(normalizeLabel(taskName, "unknown"), normalizeLabel(jobLabel, "unknown")).Inc()
}

// RecordJobPanic records job panics.
func (m *MetricsExporter) RecordJobPanic(taskName string, jobLabel string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicsTotal.WithLabelValues(normalizeLabel(taskName, "unknown"), normalizeLabel(jobLabel, "unknown")).Inc()
}

// RecordStateTransition records accepted state transitions.
func (m *MetricsExporter) RecordStateTransition(taskName string, from, to core.State) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(normalizeLabel(taskName, "unknown"), from.String(), to.String()).Inc()
}

// RecordControlTimeout records control operations that returned ErrTimeout.
func (m *MetricsExporter) RecordControlTimeout(taskName string, op core.Op) {
	if m == nil {
		return
	}
	m.timeoutsTotal.WithLabelValues(normalizeLabel(taskName, "unknown"), op.String()).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
