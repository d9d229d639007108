package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/Swind/go-media-task/core"
)

// ScheduleID identifies a control schedule.
type ScheduleID uint64

// Schedule applies Op to Task (every Task when empty) at the times described
// by the cron expression Spec. Spec accepts five to seven fields; with six or
// seven fields the first one is seconds.
type Schedule struct {
	ID   ScheduleID
	Spec string
	Task string
	Op   core.Op
}

type scheduleEntry struct {
	Schedule
	expr *cronexpr.Expression
	quit chan struct{}
}

type scheduler struct {
	p *Pipeline

	mu      sync.Mutex
	entries map[ScheduleID]*scheduleEntry
	nextID  ScheduleID
}

func newScheduler(p *Pipeline) *scheduler {
	return &scheduler{p: p, entries: make(map[ScheduleID]*scheduleEntry)}
}

// Schedule registers a cron-driven control operation.
func (p *Pipeline) Schedule(spec, task string, op core.Op) (ScheduleID, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("cron spec %q: %v: %w", spec, err, core.ErrInvalidArgument)
	}
	if task != "" {
		if _, err := p.Task(task); err != nil {
			return 0, err
		}
	}
	return p.schedules.add(Schedule{Spec: spec, Task: task, Op: op}, expr)
}

// Unschedule removes a schedule. It reports whether id was registered.
func (p *Pipeline) Unschedule(id ScheduleID) bool {
	return p.schedules.remove(id)
}

// Schedules returns the registered schedules ordered by ID.
func (p *Pipeline) Schedules() []Schedule {
	s := p.schedules
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Schedule)
	}
	slices.SortFunc(out, func(a, b Schedule) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// NextRun returns when schedule id fires next after from. The zero time means
// the expression has no further match.
func (p *Pipeline) NextRun(id ScheduleID, from time.Time) (time.Time, error) {
	s := p.schedules
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("schedule %d: %w", id, core.ErrNotFound)
	}
	return e.expr.Next(from), nil
}

func (s *scheduler) add(sc Schedule, expr *cronexpr.Expression) (ScheduleID, error) {
	// Pipeline.mu before scheduler.mu, so Close cannot slip between the check
	// and wg.Add.
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	if s.p.closed {
		return 0, fmt.Errorf("pipeline %q closed: %w", s.p.name, core.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sc.ID = s.nextID
	e := &scheduleEntry{Schedule: sc, expr: expr, quit: make(chan struct{})}
	s.entries[sc.ID] = e

	s.p.wg.Add(1)
	go s.loop(e)
	return sc.ID, nil
}

func (s *scheduler) remove(id ScheduleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	close(e.quit)
	return true
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		delete(s.entries, id)
		close(e.quit)
	}
}

func (s *scheduler) loop(e *scheduleEntry) {
	defer s.p.wg.Done()
	p := s.p

	for {
		next := e.expr.Next(time.Now())
		if next.IsZero() {
			p.logger.Info("schedule exhausted", core.F("pipeline", p.name), core.F("spec", e.Spec))
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-e.quit:
			timer.Stop()
			return
		case <-p.ctx.Done():
			timer.Stop()
			return
		}

		target := e.Task
		if target == "" {
			target = "*"
		}
		if err := p.Control(p.ctx, e.Task, e.Op); err != nil {
			p.logger.Warn("scheduled control failed",
				core.F("pipeline", p.name),
				core.F("schedule", e.ID),
				core.F("task", target),
				core.F("op", e.Op),
				core.F("error", err),
			)
			continue
		}
		p.logger.Debug("scheduled control applied",
			core.F("pipeline", p.name),
			core.F("schedule", e.ID),
			core.F("task", target),
			core.F("op", e.Op),
		)
	}
}
