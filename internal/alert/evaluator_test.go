package alert

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/domain/mocks"
	"github.com/user/healthwatch/internal/recorder"
)

type evalFixture struct {
	evaluator *Evaluator
	rules     *mocks.MockAlertRuleRepository
	history   *mocks.MockHistoryRepository
	notifier  *mocks.MockNotifier
	clock     *fakeClock
	target    domain.MonitoredTarget
}

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) Now() time.Time          { return c.at }
func (c *fakeClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

func newEvalFixture(t *testing.T, rules ...domain.AlertRule) *evalFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	history := &mocks.MockHistoryRepository{}
	notifier := &mocks.MockNotifier{}
	ruleRepo := &mocks.MockAlertRuleRepository{Rules: rules}
	hub := broadcast.NewHub(logger, nil, m)
	rec := recorder.New(logger, history, &mocks.MockJournal{}, hub, m, 256)

	e := NewEvaluator(logger, ruleRepo, history, notifier, rec, hub, m)
	clock := &fakeClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e.now = clock.Now

	return &evalFixture{
		evaluator: e,
		rules:     ruleRepo,
		history:   history,
		notifier:  notifier,
		clock:     clock,
		target: domain.MonitoredTarget{
			ID:   uuid.New(),
			Name: "api-server",
			Kind: domain.ProbeHTTP,
		},
	}
}

func downRule(targetID uuid.UUID) domain.AlertRule {
	return domain.AlertRule{
		ID:       uuid.New(),
		TargetID: targetID,
		Name:     "api down",
		Type:     domain.AlertServiceDown,
		Severity: domain.SeverityHigh,
		Enabled:  true,
	}
}

func unhealthyStatus(targetID uuid.UUID, failures int) domain.TargetStatus {
	return domain.TargetStatus{
		TargetID:            targetID,
		Current:             domain.StatusUnhealthy,
		ConsecutiveFailures: failures,
	}
}

func healthyStatus(targetID uuid.UUID) domain.TargetStatus {
	return domain.TargetStatus{TargetID: targetID, Current: domain.StatusHealthy}
}

func failedResult(targetID uuid.UUID) domain.ProbeResult {
	return domain.ProbeResult{
		TargetID: targetID,
		Success:  false,
		Reason:   domain.ReasonTimeout,
		Message:  "probe timed out",
	}
}

func TestEvaluator_TriggerAndResolve(t *testing.T) {
	t.Run("Satisfied Condition Opens One Instance", func(t *testing.T) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		f.rules.Rules = []domain.AlertRule{rule}

		ctx := context.Background()
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))

		open := f.evaluator.OpenInstances()
		if len(open) != 1 {
			t.Fatalf("expected 1 open instance, got %d", len(open))
		}
		if open[0].Status != domain.InstanceTriggered {
			t.Errorf("expected triggered, got %s", open[0].Status)
		}
		if f.notifier.Count() != 1 {
			t.Errorf("expected 1 notification, got %d", f.notifier.Count())
		}
		if len(f.history.SavedInstances()) != 1 {
			t.Error("expected instance persisted")
		}

		// The condition persisting does not open a second instance.
		f.clock.Advance(time.Minute)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 4), failedResult(f.target.ID))
		if len(f.evaluator.OpenInstances()) != 1 {
			t.Error("expected still exactly 1 open instance")
		}
		if f.notifier.Count() != 1 {
			t.Errorf("expected no re-notification, got %d", f.notifier.Count())
		}
	})

	t.Run("Cleared Condition Resolves Exactly Once", func(t *testing.T) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		f.rules.Rules = []domain.AlertRule{rule}

		ctx := context.Background()
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))
		f.clock.Advance(time.Minute)
		f.evaluator.Evaluate(ctx, f.target, healthyStatus(f.target.ID), domain.ProbeResult{TargetID: f.target.ID, Success: true})

		if len(f.evaluator.OpenInstances()) != 0 {
			t.Fatal("expected no open instances after resolve")
		}
		if f.notifier.Count() != 2 {
			t.Errorf("expected trigger + resolve notifications, got %d", f.notifier.Count())
		}

		saved := f.history.SavedInstances()
		if len(saved) != 1 {
			t.Fatalf("expected 1 persisted instance, got %d", len(saved))
		}
		if saved[0].Status != domain.InstanceResolved || saved[0].ResolvedAt == nil {
			t.Error("expected resolved instance with timestamp")
		}

		// Another healthy update does nothing.
		f.evaluator.Evaluate(ctx, f.target, healthyStatus(f.target.ID), domain.ProbeResult{TargetID: f.target.ID, Success: true})
		if f.notifier.Count() != 2 {
			t.Errorf("expected no extra notification, got %d", f.notifier.Count())
		}
	})

	t.Run("Disabled Rules Are Ignored", func(t *testing.T) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		rule.Enabled = false
		f.rules.Rules = []domain.AlertRule{rule}

		f.evaluator.Evaluate(context.Background(), f.target, unhealthyStatus(f.target.ID, 5), failedResult(f.target.ID))
		if len(f.evaluator.OpenInstances()) != 0 {
			t.Error("expected no instance for disabled rule")
		}
	})
}

func TestEvaluator_Cooldown(t *testing.T) {
	t.Run("Retrigger Inside Cooldown Is Suppressed", func(t *testing.T) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		rule.CooldownPeriod = 300 * time.Second
		f.rules.Rules = []domain.AlertRule{rule}

		ctx := context.Background()

		// t=0: trigger.
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))
		if f.notifier.Count() != 1 {
			t.Fatalf("expected initial trigger, got %d notifications", f.notifier.Count())
		}

		// t=50: recovery resolves the instance.
		f.clock.Advance(50 * time.Second)
		f.evaluator.Evaluate(ctx, f.target, healthyStatus(f.target.ID), domain.ProbeResult{TargetID: f.target.ID, Success: true})

		// t=100: condition matches again but the rule is cooling down.
		f.clock.Advance(50 * time.Second)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))
		if len(f.evaluator.OpenInstances()) != 0 {
			t.Fatal("expected suppression inside cooldown")
		}

		// t=400: past the cooldown, a fresh instance opens.
		f.clock.Advance(300 * time.Second)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 4), failedResult(f.target.ID))
		if len(f.evaluator.OpenInstances()) != 1 {
			t.Fatal("expected new instance after cooldown expired")
		}
	})

	t.Run("Cooldown Survives Restart Via Persisted Trigger Time", func(t *testing.T) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		rule.CooldownPeriod = 300 * time.Second
		f.rules.Rules = []domain.AlertRule{rule}
		f.history.LastTriggers = map[uuid.UUID]time.Time{
			rule.ID: f.clock.Now().Add(-100 * time.Second),
		}

		f.evaluator.Evaluate(context.Background(), f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))
		if len(f.evaluator.OpenInstances()) != 0 {
			t.Error("expected suppression from persisted trigger time")
		}
	})
}

func TestEvaluator_Escalation(t *testing.T) {
	newEscalatingFixture := func(t *testing.T) (*evalFixture, domain.AlertRule) {
		f := newEvalFixture(t)
		rule := downRule(f.target.ID)
		rule.EscalationEnabled = true
		rule.EscalationDelay = 10 * time.Minute
		f.rules.Rules = []domain.AlertRule{rule}
		return f, rule
	}

	t.Run("Level Rises Once Per Boundary", func(t *testing.T) {
		f, _ := newEscalatingFixture(t)
		ctx := context.Background()

		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))

		// Before the first boundary nothing happens.
		f.clock.Advance(9 * time.Minute)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 4), failedResult(f.target.ID))
		if got := f.evaluator.OpenInstances()[0].EscalationLevel; got != 0 {
			t.Fatalf("expected level 0 before boundary, got %d", got)
		}

		// Past triggeredAt + delay: level 1, exactly once.
		f.clock.Advance(2 * time.Minute)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 5), failedResult(f.target.ID))
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 6), failedResult(f.target.ID))
		inst := f.evaluator.OpenInstances()[0]
		if inst.EscalationLevel != 1 {
			t.Fatalf("expected level 1, got %d", inst.EscalationLevel)
		}
		if inst.Status != domain.InstanceEscalated {
			t.Errorf("expected escalated status, got %s", inst.Status)
		}

		// Past triggeredAt + 2*delay: level 2.
		f.clock.Advance(10 * time.Minute)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 7), failedResult(f.target.ID))
		if got := f.evaluator.OpenInstances()[0].EscalationLevel; got != 2 {
			t.Errorf("expected level 2, got %d", got)
		}

		// trigger + escalate + escalate notifications.
		if f.notifier.Count() != 3 {
			t.Errorf("expected 3 notifications, got %d", f.notifier.Count())
		}
	})

	t.Run("Acknowledgment Suppresses Escalation", func(t *testing.T) {
		f, rule := newEscalatingFixture(t)
		ctx := context.Background()

		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 3), failedResult(f.target.ID))

		inst, err := f.evaluator.Acknowledge(ctx, rule.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inst.Status != domain.InstanceAcknowledged || inst.AcknowledgedAt == nil {
			t.Fatal("expected acknowledged instance with timestamp")
		}

		f.clock.Advance(30 * time.Minute)
		f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 10), failedResult(f.target.ID))
		if got := f.evaluator.OpenInstances()[0].EscalationLevel; got != 0 {
			t.Errorf("expected no escalation after ack, got level %d", got)
		}

		// An acknowledged instance still resolves when the condition clears.
		f.evaluator.Evaluate(ctx, f.target, healthyStatus(f.target.ID), domain.ProbeResult{TargetID: f.target.ID, Success: true})
		if len(f.evaluator.OpenInstances()) != 0 {
			t.Error("expected acknowledged instance to resolve")
		}
	})

	t.Run("Acknowledge Without Open Instance Fails", func(t *testing.T) {
		f := newEvalFixture(t)
		if _, err := f.evaluator.Acknowledge(context.Background(), uuid.New()); err != domain.ErrInstanceNotOpen {
			t.Errorf("expected ErrInstanceNotOpen, got %v", err)
		}
	})
}

func TestEvaluator_Restore(t *testing.T) {
	f := newEvalFixture(t)
	rule := downRule(f.target.ID)
	rule.EscalationEnabled = true
	rule.EscalationDelay = 10 * time.Minute
	f.rules.Rules = []domain.AlertRule{rule}

	triggeredAt := f.clock.Now().Add(-15 * time.Minute)
	f.history.OpenInstances = []domain.AlertInstance{{
		ID:          uuid.New(),
		RuleID:      rule.ID,
		TargetID:    f.target.ID,
		Status:      domain.InstanceTriggered,
		TriggeredAt: triggeredAt,
	}}

	ctx := context.Background()
	if err := f.evaluator.Restore(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.evaluator.OpenInstances()) != 1 {
		t.Fatal("expected restored instance to be open")
	}

	// 15 minutes past a 10 minute delay: the first evaluation escalates.
	f.evaluator.Evaluate(ctx, f.target, unhealthyStatus(f.target.ID, 8), failedResult(f.target.ID))
	if got := f.evaluator.OpenInstances()[0].EscalationLevel; got != 1 {
		t.Errorf("expected restored instance to escalate to level 1, got %d", got)
	}
}

func TestConditionSatisfied(t *testing.T) {
	targetID := uuid.New()
	latency := 750.0

	cases := []struct {
		name     string
		rule     domain.AlertRule
		status   domain.TargetStatus
		result   domain.ProbeResult
		expected bool
	}{
		{
			name:     "Failure Count At Threshold",
			rule:     domain.AlertRule{Type: domain.AlertHealthCheckFailure, Condition: domain.AlertCondition{Threshold: 3}},
			status:   unhealthyStatus(targetID, 3),
			expected: true,
		},
		{
			name:     "Failure Count Below Threshold",
			rule:     domain.AlertRule{Type: domain.AlertHealthCheckFailure, Condition: domain.AlertCondition{Threshold: 3}},
			status:   domain.TargetStatus{TargetID: targetID, Current: domain.StatusHealthy, ConsecutiveFailures: 2},
			expected: false,
		},
		{
			name:     "Latency Above Threshold",
			rule:     domain.AlertRule{Type: domain.AlertResponseTime, Condition: domain.AlertCondition{LatencyThresholdMS: 500}},
			status:   healthyStatus(targetID),
			result:   domain.ProbeResult{Success: true, LatencyMS: &latency},
			expected: true,
		},
		{
			name:     "Latency Missing",
			rule:     domain.AlertRule{Type: domain.AlertResponseTime, Condition: domain.AlertCondition{LatencyThresholdMS: 500}},
			status:   healthyStatus(targetID),
			result:   domain.ProbeResult{Success: false},
			expected: false,
		},
		{
			name:     "Service Down",
			rule:     domain.AlertRule{Type: domain.AlertServiceDown},
			status:   unhealthyStatus(targetID, 1),
			expected: true,
		},
		{
			name:     "Service Up",
			rule:     domain.AlertRule{Type: domain.AlertServiceUp},
			status:   healthyStatus(targetID),
			expected: true,
		},
		{
			name:     "Unknown Type",
			rule:     domain.AlertRule{Type: "full-moon"},
			status:   unhealthyStatus(targetID, 99),
			expected: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := conditionSatisfied(&tc.rule, tc.status, tc.result); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}
