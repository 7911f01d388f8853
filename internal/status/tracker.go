// Package status owns the per-target health state machine.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

// Tracker is the single writer of TargetStatus. Probe results arrive
// serialized per target (the scheduler forbids overlapping probes);
// lifecycle updates may arrive concurrently from the container event
// monitor, so the state map is lock-protected.
type Tracker struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	states map[uuid.UUID]*domain.TargetStatus
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		logger: logger.With("component", "status_tracker"),
		now:    time.Now,
		states: make(map[uuid.UUID]*domain.TargetStatus),
	}
}

// Apply consumes one probe result and returns the updated status plus the
// transition it committed, if any. A successful probe resets the failure
// count and moves the target to healthy unless an externally-driven
// lifecycle state is in effect. A failed probe flips the target to
// unhealthy only once the consecutive-failure count reaches the target's
// retry threshold; below threshold the previous status stands.
func (t *Tracker) Apply(target domain.MonitoredTarget, result domain.ProbeResult) (domain.TargetStatus, *domain.StatusTransition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(target.ID)
	old := state.Current

	if result.Success {
		state.ConsecutiveFailures = 0
		if !state.Current.IsLifecycle() {
			state.Current = domain.StatusHealthy
		}
	} else {
		state.ConsecutiveFailures++
		threshold := target.RetryThreshold
		if threshold < 1 {
			threshold = 1
		}
		if state.ConsecutiveFailures >= threshold {
			state.Current = domain.StatusUnhealthy
		}
	}

	res := result
	state.LastResult = &res

	var transition *domain.StatusTransition
	if state.Current != old {
		state.LastTransitionAt = t.now().UTC()
		transition = &domain.StatusTransition{
			TargetID:   target.ID,
			TargetName: target.Name,
			From:       old,
			To:         state.Current,
			At:         state.LastTransitionAt,
		}
		t.logger.Info("target status changed",
			"target", target.Name,
			"from", old,
			"to", state.Current,
			"consecutive_failures", state.ConsecutiveFailures,
		)
	}

	return *state, transition
}

// SetLifecycle applies an externally-driven lifecycle status (starting,
// stopping, restarting, or the healthy/unhealthy outcome of a container
// event). It returns the updated status and the committed transition, if
// the status actually changed.
func (t *Tracker) SetLifecycle(targetID uuid.UUID, targetName string, next domain.Status) (domain.TargetStatus, *domain.StatusTransition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(targetID)
	old := state.Current
	if next == old {
		return *state, nil
	}

	state.Current = next
	if next == domain.StatusHealthy {
		state.ConsecutiveFailures = 0
	}
	state.LastTransitionAt = t.now().UTC()

	t.logger.Info("target lifecycle status set",
		"target", targetName,
		"from", old,
		"to", next,
	)

	return *state, &domain.StatusTransition{
		TargetID:   targetID,
		TargetName: targetName,
		From:       old,
		To:         next,
		At:         state.LastTransitionAt,
	}
}

// Get returns a copy of one target's status, ErrNotFound semantics via ok.
func (t *Tracker) Get(targetID uuid.UUID) (domain.TargetStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[targetID]
	if !ok {
		return domain.TargetStatus{}, false
	}
	return *state, true
}

// Snapshot returns a copy of every tracked status.
func (t *Tracker) Snapshot() []domain.TargetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TargetStatus, 0, len(t.states))
	for _, state := range t.states {
		out = append(out, *state)
	}
	return out
}

// Forget drops state for targets removed from the registry.
func (t *Tracker) Forget(targetID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, targetID)
}

// state returns the live entry for a target, creating it in the unknown
// state on first sight. Callers hold t.mu.
func (t *Tracker) state(targetID uuid.UUID) *domain.TargetStatus {
	if state, ok := t.states[targetID]; ok {
		return state
	}
	state := &domain.TargetStatus{
		TargetID: targetID,
		Current:  domain.StatusUnknown,
	}
	t.states[targetID] = state
	return state
}
