package status

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

func testTarget(threshold int) domain.MonitoredTarget {
	return domain.MonitoredTarget{
		ID:             uuid.New(),
		Name:           "api-server",
		Kind:           domain.ProbeHTTP,
		RetryThreshold: threshold,
	}
}

func success(targetID uuid.UUID) domain.ProbeResult {
	return domain.ProbeResult{TargetID: targetID, Success: true, ObservedAt: time.Now().UTC()}
}

func failure(targetID uuid.UUID) domain.ProbeResult {
	return domain.ProbeResult{
		TargetID:   targetID,
		Success:    false,
		Reason:     domain.ReasonTimeout,
		ObservedAt: time.Now().UTC(),
	}
}

func newTestTracker() *Tracker {
	return NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTracker_Apply(t *testing.T) {
	t.Run("First Success Moves Unknown To Healthy", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(3)

		state, transition := tracker.Apply(target, success(target.ID))

		if state.Current != domain.StatusHealthy {
			t.Fatalf("expected healthy, got %s", state.Current)
		}
		if transition == nil {
			t.Fatal("expected a transition")
		}
		if transition.From != domain.StatusUnknown || transition.To != domain.StatusHealthy {
			t.Errorf("unexpected transition %s -> %s", transition.From, transition.To)
		}
	})

	t.Run("Failures Below Threshold Keep Previous Status", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(3)
		tracker.Apply(target, success(target.ID))

		for i := 0; i < 2; i++ {
			state, transition := tracker.Apply(target, failure(target.ID))
			if state.Current != domain.StatusHealthy {
				t.Fatalf("failure %d: expected healthy, got %s", i+1, state.Current)
			}
			if transition != nil {
				t.Fatalf("failure %d: unexpected transition to %s", i+1, transition.To)
			}
		}
	})

	t.Run("Threshold Failure Emits Exactly One Transition", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(3)
		tracker.Apply(target, success(target.ID))

		tracker.Apply(target, failure(target.ID))
		tracker.Apply(target, failure(target.ID))
		state, transition := tracker.Apply(target, failure(target.ID))

		if state.Current != domain.StatusUnhealthy {
			t.Fatalf("expected unhealthy, got %s", state.Current)
		}
		if transition == nil || transition.To != domain.StatusUnhealthy {
			t.Fatal("expected transition to unhealthy")
		}

		// Further failures stay unhealthy without a new transition.
		state, transition = tracker.Apply(target, failure(target.ID))
		if transition != nil {
			t.Errorf("unexpected transition on fourth failure: %s -> %s", transition.From, transition.To)
		}
		if state.ConsecutiveFailures != 4 {
			t.Errorf("expected 4 consecutive failures, got %d", state.ConsecutiveFailures)
		}
	})

	t.Run("Zero Threshold Behaves As One", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(0)

		state, transition := tracker.Apply(target, failure(target.ID))
		if state.Current != domain.StatusUnhealthy {
			t.Fatalf("expected unhealthy on first failure, got %s", state.Current)
		}
		if transition == nil {
			t.Fatal("expected a transition")
		}
	})

	t.Run("Recovery Resets Failure Count", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(2)

		tracker.Apply(target, failure(target.ID))
		tracker.Apply(target, failure(target.ID))
		state, transition := tracker.Apply(target, success(target.ID))

		if state.Current != domain.StatusHealthy {
			t.Fatalf("expected healthy after recovery, got %s", state.Current)
		}
		if state.ConsecutiveFailures != 0 {
			t.Errorf("expected failure count reset, got %d", state.ConsecutiveFailures)
		}
		if transition == nil || transition.From != domain.StatusUnhealthy {
			t.Fatal("expected transition from unhealthy")
		}
	})

	t.Run("Success Does Not Clear Lifecycle Status", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(3)

		tracker.SetLifecycle(target.ID, target.Name, domain.StatusRestarting)
		state, transition := tracker.Apply(target, success(target.ID))

		if state.Current != domain.StatusRestarting {
			t.Fatalf("expected restarting to persist, got %s", state.Current)
		}
		if transition != nil {
			t.Error("unexpected transition while in lifecycle state")
		}
		if state.ConsecutiveFailures != 0 {
			t.Errorf("expected failure count reset, got %d", state.ConsecutiveFailures)
		}
	})

	t.Run("Failures Override Lifecycle Status At Threshold", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(2)

		tracker.SetLifecycle(target.ID, target.Name, domain.StatusStarting)
		tracker.Apply(target, failure(target.ID))
		state, _ := tracker.Apply(target, failure(target.ID))

		if state.Current != domain.StatusUnhealthy {
			t.Fatalf("expected unhealthy, got %s", state.Current)
		}
	})
}

func TestTracker_SetLifecycle(t *testing.T) {
	t.Run("Transition Emitted On Change", func(t *testing.T) {
		tracker := newTestTracker()
		id := uuid.New()

		_, transition := tracker.SetLifecycle(id, "worker", domain.StatusStopping)
		if transition == nil {
			t.Fatal("expected a transition")
		}
		if transition.From != domain.StatusUnknown || transition.To != domain.StatusStopping {
			t.Errorf("unexpected transition %s -> %s", transition.From, transition.To)
		}
	})

	t.Run("No Transition When Status Unchanged", func(t *testing.T) {
		tracker := newTestTracker()
		id := uuid.New()

		tracker.SetLifecycle(id, "worker", domain.StatusStarting)
		_, transition := tracker.SetLifecycle(id, "worker", domain.StatusStarting)
		if transition != nil {
			t.Error("expected no transition for same status")
		}
	})

	t.Run("Healthy Lifecycle Event Resets Failures", func(t *testing.T) {
		tracker := newTestTracker()
		target := testTarget(5)

		tracker.Apply(target, failure(target.ID))
		tracker.Apply(target, failure(target.ID))
		state, _ := tracker.SetLifecycle(target.ID, target.Name, domain.StatusHealthy)

		if state.ConsecutiveFailures != 0 {
			t.Errorf("expected failure count reset, got %d", state.ConsecutiveFailures)
		}
	})
}

func TestTracker_SnapshotAndForget(t *testing.T) {
	tracker := newTestTracker()
	a := testTarget(1)
	b := testTarget(1)

	tracker.Apply(a, success(a.ID))
	tracker.Apply(b, failure(b.ID))

	if got := len(tracker.Snapshot()); got != 2 {
		t.Fatalf("expected 2 tracked targets, got %d", got)
	}

	tracker.Forget(a.ID)
	if _, ok := tracker.Get(a.ID); ok {
		t.Error("expected forgotten target to be gone")
	}
	if _, ok := tracker.Get(b.ID); !ok {
		t.Error("expected remaining target to stay tracked")
	}
}
