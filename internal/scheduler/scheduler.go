// Package scheduler implements the check orchestrator: it owns the registry
// of enabled targets, runs their probes on independent per-target cadences
// with bounded concurrency, enforces per-target mutual exclusion, and feeds
// every outcome through the status tracker, event recorder, alert evaluator
// and broadcast fan-out.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/alert"
	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/probe"
	"github.com/user/healthwatch/internal/recorder"
	"github.com/user/healthwatch/internal/status"
)

const defaultProbeTimeout = 30 * time.Second

// Options tune the scheduling loop.
type Options struct {
	// TickInterval is the cadence of the due-target scan. Defaults to 1s.
	TickInterval time.Duration
	// Workers bounds the number of concurrently executing probes.
	Workers int
	// ProbesPerSec caps global dispatch throughput. Zero disables the cap.
	ProbesPerSec float64
	// ReloadInterval is how often target definitions are re-read from the
	// configuration store. Zero disables periodic reloads.
	ReloadInterval time.Duration
}

// entry is one registered target plus its probe strategy, selected once at
// load time, and its logical clock.
type entry struct {
	target   domain.MonitoredTarget
	strategy probe.Strategy
	nextDue  time.Time
}

// Scheduler drives the probe lifecycle. All collaborators are injected;
// the scheduler owns none of them.
type Scheduler struct {
	logger    *slog.Logger
	targets   domain.TargetRepository
	inspector domain.ContainerInspector
	tracker   *status.Tracker
	evaluator *alert.Evaluator
	recorder  *recorder.Recorder
	hub       *broadcast.Hub
	metrics   *metrics.MonitorMetrics
	limiter   *rate.Limiter
	opts      Options
	sem       chan struct{}
	now       func() time.Time
	wg        sync.WaitGroup

	mu       sync.Mutex
	registry map[uuid.UUID]*entry
	inFlight map[uuid.UUID]bool
}

// New wires a scheduler. Call Reload before Run to load the initial
// registry; an empty registry is legal, a failing load at startup is not.
func New(
	logger *slog.Logger,
	targets domain.TargetRepository,
	inspector domain.ContainerInspector,
	tracker *status.Tracker,
	evaluator *alert.Evaluator,
	rec *recorder.Recorder,
	hub *broadcast.Hub,
	m *metrics.MonitorMetrics,
	opts Options,
) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 16
	}

	var limiter *rate.Limiter
	if opts.ProbesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.ProbesPerSec), opts.Workers)
	}

	return &Scheduler{
		logger:    logger.With("component", "scheduler"),
		targets:   targets,
		inspector: inspector,
		tracker:   tracker,
		evaluator: evaluator,
		recorder:  rec,
		hub:       hub,
		metrics:   m,
		limiter:   limiter,
		opts:      opts,
		sem:       make(chan struct{}, opts.Workers),
		now:       time.Now,
		registry:  make(map[uuid.UUID]*entry),
		inFlight:  make(map[uuid.UUID]bool),
	}
}

// Reload re-reads the enabled targets from the configuration store and
// swaps the registry atomically. Logical clocks of surviving targets are
// preserved; new targets become due immediately. In-flight probes are never
// disrupted.
func (s *Scheduler) Reload(ctx context.Context) error {
	targets, err := s.targets.FindAllEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	now := s.now()
	next := make(map[uuid.UUID]*entry, len(targets))
	for _, t := range targets {
		strategy, err := probe.ForTarget(t, s.inspector)
		if err != nil {
			// A broken configuration becomes a permanently-failing probe
			// rather than a dead target.
			s.logger.Error("unusable probe configuration", "target", t.Name, "error", err)
			strategy = probe.NewStatic(domain.ReasonConfig, err.Error())
		}
		next[t.ID] = &entry{target: t, strategy: strategy, nextDue: now}
	}

	s.mu.Lock()
	for id, old := range s.registry {
		if e, ok := next[id]; ok {
			e.nextDue = old.nextDue
		}
	}
	removed := make([]uuid.UUID, 0)
	for id := range s.registry {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	s.registry = next
	s.mu.Unlock()

	for _, id := range removed {
		s.tracker.Forget(id)
	}
	s.metrics.TargetsRegistered.Set(float64(len(targets)))
	s.logger.Info("target registry loaded", "targets", len(targets), "removed", len(removed))
	return nil
}

// Run drives the scheduling loop until ctx is cancelled, then waits for
// in-flight probes to finish.
func (s *Scheduler) Run(ctx context.Context) {
	tick := time.NewTicker(s.opts.TickInterval)
	defer tick.Stop()

	var reload <-chan time.Time
	if s.opts.ReloadInterval > 0 {
		reloadTicker := time.NewTicker(s.opts.ReloadInterval)
		defer reloadTicker.Stop()
		reload = reloadTicker.C
	}

	s.logger.Info("scheduler started",
		"tick", s.opts.TickInterval,
		"workers", s.opts.Workers,
	)

	for {
		select {
		case <-tick.C:
			s.dispatchDue(ctx)
		case <-reload:
			if err := s.Reload(ctx); err != nil {
				s.logger.Error("target reload failed, keeping previous registry", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for in-flight probes")
			s.wg.Wait()
			return
		}
	}
}

// dispatchDue selects every due target and hands each one to the worker
// pool. A target whose previous probe is still in flight is skipped for
// this cycle and a missed-cycle event is recorded; the cycle is never
// queued or run concurrently.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	var due []*entry
	var missed []domain.MonitoredTarget

	s.mu.Lock()
	for id, e := range s.registry {
		if now.Before(e.nextDue) {
			continue
		}
		if s.inFlight[id] {
			missed = append(missed, e.target)
			e.nextDue = now.Add(e.target.Interval)
			continue
		}
		s.inFlight[id] = true
		// Logical clock: next due is measured from this attempt's start.
		e.nextDue = now.Add(e.target.Interval)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, t := range missed {
		s.metrics.MissedCycles.Inc()
		s.logger.Warn("check cycle skipped, previous probe still in flight", "target", t.Name)
		s.recorder.Record(domain.NewEvent(&t.ID, domain.EventCheckMissed, domain.EventWarning,
			fmt.Sprintf("check cycle for %s skipped: previous probe still in flight", t.Name), nil))
	}

	for _, e := range due {
		target, strategy := e.target, e.strategy
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.clearInFlight(target.ID)

			// Block for a pool slot: targets beyond the bound wait for the
			// next free worker within this tick, not for the next interval.
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				return
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
			}

			result := s.execute(ctx, target, strategy)
			s.process(ctx, target, result)
		}()
	}
}

// TriggerNow runs a probe for one target immediately, bypassing the
// schedule but not the per-target exclusivity: a trigger while a probe is
// in flight returns ErrCheckInFlight. Targets that exist but are disabled
// return ErrTargetDisabled.
func (s *Scheduler) TriggerNow(ctx context.Context, targetID uuid.UUID) (domain.ProbeResult, error) {
	s.mu.Lock()
	e, ok := s.registry[targetID]
	if !ok {
		s.mu.Unlock()
		// The registry only holds enabled targets. Distinguish a disabled
		// target from one that does not exist at all.
		if t, err := s.targets.FindByID(ctx, targetID); err == nil && !t.Enabled {
			return domain.ProbeResult{}, domain.ErrTargetDisabled
		}
		return domain.ProbeResult{}, domain.ErrNotFound
	}
	if s.inFlight[targetID] {
		s.mu.Unlock()
		return domain.ProbeResult{}, domain.ErrCheckInFlight
	}
	s.inFlight[targetID] = true
	target, strategy := e.target, e.strategy
	e.nextDue = s.now().Add(target.Interval)
	s.mu.Unlock()

	defer s.clearInFlight(targetID)

	result := s.execute(ctx, target, strategy)
	s.process(ctx, target, result)
	return result, nil
}

func (s *Scheduler) clearInFlight(targetID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, targetID)
	s.mu.Unlock()
}

// execute runs one probe attempt under the target's timeout with panic
// isolation: a panicking strategy yields an internal_error result and
// never takes the scheduler down.
func (s *Scheduler) execute(ctx context.Context, target domain.MonitoredTarget, strategy probe.Strategy) (result domain.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("probe strategy panicked", "target", target.Name, "panic", rec)
			result = domain.ProbeResult{
				TargetID:   target.ID,
				Success:    false,
				ObservedAt: time.Now().UTC(),
				Reason:     domain.ReasonInternal,
				Message:    fmt.Sprintf("probe panicked: %v", rec),
			}
		}
	}()

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.metrics.ProbesInFlight.Inc()
	defer s.metrics.ProbesInFlight.Dec()

	start := time.Now()
	result = strategy.Check(probeCtx, target)
	elapsed := time.Since(start)

	outcome := "success"
	if !result.Success {
		outcome = string(result.Reason)
	}
	s.metrics.ProbesTotal.WithLabelValues(string(target.Kind), outcome).Inc()
	s.metrics.ProbeDuration.WithLabelValues(string(target.Kind)).Observe(elapsed.Seconds())

	return result
}

// process pushes one result through the tracker and fans the outcome out.
// It runs on the worker goroutine; per-target exclusivity guarantees
// results for one target arrive here in dispatch order.
func (s *Scheduler) process(ctx context.Context, target domain.MonitoredTarget, result domain.ProbeResult) {
	state, transition := s.tracker.Apply(target, result)

	s.recorder.RecordResult(result)

	if !result.Success {
		s.recorder.Record(domain.NewEvent(&target.ID, domain.EventHealthCheckFailed, domain.EventWarning,
			fmt.Sprintf("health check failed for %s: %s", target.Name, result.Message), result))
	}

	if transition != nil {
		typ := domain.EventStatusChanged
		severity := domain.EventWarning
		if transition.To == domain.StatusHealthy {
			typ = domain.EventHealthCheckRecovered
			severity = domain.EventInfo
		}
		s.recorder.Record(domain.NewEvent(&target.ID, typ, severity,
			fmt.Sprintf("%s status changed from %s to %s", target.Name, transition.From, transition.To), transition))

		s.hub.Publish(broadcast.TopicTargets, "status_change", transition)
		s.hub.Publish(broadcast.TargetTopic(target.ID), "status_change", transition)
	}

	s.hub.Publish(broadcast.TargetTopic(target.ID), "health_check_result", result)
	s.hub.Publish(broadcast.TopicTargets, "target_update", state)

	s.evaluator.Evaluate(ctx, target, state, result)
}
