package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-media-task/core"
)

// StatsProvider provides current task stats snapshots. *pipeline.Pipeline
// satisfies it.
type StatsProvider interface {
	Stats() []core.TaskStats
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() []core.TaskStats

// Stats calls f.
func (f StatsFunc) Stats() []core.TaskStats { return f() }

// TaskProvider exposes a single Task as a StatsProvider.
func TaskProvider(t *core.Task) StatsProvider {
	return StatsFunc(func() []core.TaskStats { return []core.TaskStats{t.Stats()} })
}

// SnapshotPoller periodically exports Task Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	sourcesMu sync.RWMutex
	sources   map[string]StatsProvider

	taskState    *prom.GaugeVec
	taskJobs     *prom.GaugeVec
	taskReady    *prom.GaugeVec
	taskPasses   *prom.GaugeVec
	taskJobRuns  *prom.GaugeVec
	taskTimeouts *prom.GaugeVec
	taskPending  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	labels := []string{"source", "task"}
	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: "gmf", Name: name, Help: help}, labels)
	}

	p := &SnapshotPoller{
		interval:     interval,
		sources:      make(map[string]StatsProvider),
		taskState:    gauge("task_state", "Task state (0=uninitialized 1=idle 2=running 3=paused 4=stopped 5=error)."),
		taskJobs:     gauge("task_jobs", "Registered jobs per task."),
		taskReady:    gauge("task_ready_jobs", "Jobs that still have invocations left."),
		taskPasses:   gauge("task_passes", "Scheduling passes snapshot."),
		taskJobRuns:  gauge("task_job_runs", "Job invocations snapshot."),
		taskTimeouts: gauge("task_control_timeouts", "Control timeouts snapshot."),
		taskPending:  gauge("task_control_pending", "Control request pending (1=yes, 0=no)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.taskState, &p.taskJobs, &p.taskReady, &p.taskPasses,
		&p.taskJobRuns, &p.taskTimeouts, &p.taskPending,
	} {
		got, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = got
	}
	return p, nil
}

// AddSource adds or replaces a stats provider by name.
func (p *SnapshotPoller) AddSource(name string, provider StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "source")
	p.sourcesMu.Lock()
	p.sources[name] = provider
	p.sourcesMu.Unlock()
}

// RemoveSource drops a provider and deletes the series it exported.
func (p *SnapshotPoller) RemoveSource(name string) {
	if p == nil {
		return
	}
	p.sourcesMu.Lock()
	delete(p.sources, name)
	p.sourcesMu.Unlock()
	for _, g := range p.gauges() {
		g.DeletePartialMatch(prom.Labels{"source": name})
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) gauges() []*prom.GaugeVec {
	return []*prom.GaugeVec{
		p.taskState, p.taskJobs, p.taskReady, p.taskPasses,
		p.taskJobRuns, p.taskTimeouts, p.taskPending,
	}
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.sourcesMu.RLock()
	defer p.sourcesMu.RUnlock()
	for source, provider := range p.sources {
		for _, st := range provider.Stats() {
			task := normalizeLabel(st.Name, "unknown")
			p.taskState.WithLabelValues(source, task).Set(float64(st.State))
			p.taskJobs.WithLabelValues(source, task).Set(float64(st.Jobs))
			p.taskReady.WithLabelValues(source, task).Set(float64(st.Ready))
			p.taskPasses.WithLabelValues(source, task).Set(float64(st.Passes))
			p.taskJobRuns.WithLabelValues(source, task).Set(float64(st.JobRuns))
			p.taskTimeouts.WithLabelValues(source, task).Set(float64(st.Timeouts))
			if st.Pending {
				p.taskPending.WithLabelValues(source, task).Set(1)
			} else {
				p.taskPending.WithLabelValues(source, task).Set(0)
			}
		}
	}
}
