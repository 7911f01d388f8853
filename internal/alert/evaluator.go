// Package alert implements the stateful alert-evaluation engine: it matches
// probe outcomes against configured rules and drives alert instances through
// the trigger / acknowledge / escalate / resolve lifecycle with per-rule
// cooldown debouncing and wall-clock escalation.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/adapter/metrics"
	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/recorder"
)

// Evaluator is the single writer of open alert instances. Updates for one
// target arrive serialized (per-target probe exclusivity); the instance map
// is still lock-protected because rules for different targets evaluate
// concurrently and acknowledgments arrive from the API.
type Evaluator struct {
	logger   *slog.Logger
	rules    domain.AlertRuleRepository
	history  domain.HistoryRepository
	notifier domain.Notifier
	recorder *recorder.Recorder
	hub      *broadcast.Hub
	metrics  *metrics.MonitorMetrics
	now      func() time.Time

	mu          sync.Mutex
	open        map[uuid.UUID]*domain.AlertInstance // keyed by rule id
	lastTrigger map[uuid.UUID]time.Time
	seeded      map[uuid.UUID]bool
}

// NewEvaluator wires the evaluator to its collaborators.
func NewEvaluator(
	logger *slog.Logger,
	rules domain.AlertRuleRepository,
	history domain.HistoryRepository,
	notifier domain.Notifier,
	rec *recorder.Recorder,
	hub *broadcast.Hub,
	m *metrics.MonitorMetrics,
) *Evaluator {
	return &Evaluator{
		logger:      logger.With("component", "alert_evaluator"),
		rules:       rules,
		history:     history,
		notifier:    notifier,
		recorder:    rec,
		hub:         hub,
		metrics:     m,
		now:         time.Now,
		open:        make(map[uuid.UUID]*domain.AlertInstance),
		lastTrigger: make(map[uuid.UUID]time.Time),
		seeded:      make(map[uuid.UUID]bool),
	}
}

// Restore loads open instances and their trigger times from the history
// store so cooldown and escalation decisions survive a process restart.
func (e *Evaluator) Restore(ctx context.Context) error {
	instances, err := e.history.LoadOpenInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open alert instances: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range instances {
		inst := instances[i]
		e.open[inst.RuleID] = &inst
		e.lastTrigger[inst.RuleID] = inst.TriggeredAt
		e.seeded[inst.RuleID] = true
	}
	e.metrics.OpenAlerts.Set(float64(len(e.open)))

	if len(instances) > 0 {
		e.logger.Info("restored open alert instances", "count", len(instances))
	}
	return nil
}

// Evaluate consumes one status/result update for a target and advances the
// lifecycle of every enabled rule bound to it.
func (e *Evaluator) Evaluate(ctx context.Context, target domain.MonitoredTarget, status domain.TargetStatus, result domain.ProbeResult) {
	rules, err := e.rules.FindEnabledByTarget(ctx, target.ID)
	if err != nil {
		e.logger.Error("failed to load alert rules", "target", target.Name, "error", err)
		return
	}

	for i := range rules {
		rule := rules[i]
		satisfied := conditionSatisfied(&rule, status, result)

		e.mu.Lock()
		inst := e.open[rule.ID]
		switch {
		case inst == nil && satisfied:
			e.trigger(ctx, &rule, target, status, result)
		case inst != nil && !satisfied:
			e.resolve(ctx, &rule, target, inst)
		case inst != nil && satisfied:
			e.maybeEscalate(ctx, &rule, target, inst)
		}
		e.metrics.OpenAlerts.Set(float64(len(e.open)))
		e.mu.Unlock()
	}
}

// Acknowledge marks the open instance for a rule as acknowledged. The
// instance stays open and its condition keeps being tracked, but escalation
// and re-notification are suppressed until it resolves.
func (e *Evaluator) Acknowledge(ctx context.Context, ruleID uuid.UUID) (*domain.AlertInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.open[ruleID]
	if !ok {
		return nil, domain.ErrInstanceNotOpen
	}

	now := e.now().UTC()
	inst.Status = domain.InstanceAcknowledged
	inst.AcknowledgedAt = &now
	e.persist(ctx, inst)

	e.recorder.Record(domain.NewEvent(&inst.TargetID, domain.EventAlertAcknowledged, domain.EventInfo,
		fmt.Sprintf("alert %s acknowledged", ruleID), inst))
	e.hub.Publish(broadcast.TopicAlerts, "alert_acknowledged", inst)

	cp := *inst
	return &cp, nil
}

// OpenInstances returns a copy of every open instance, for the read-model API.
func (e *Evaluator) OpenInstances() []domain.AlertInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AlertInstance, 0, len(e.open))
	for _, inst := range e.open {
		out = append(out, *inst)
	}
	return out
}

// trigger opens a new instance unless the rule is still cooling down.
// Callers hold e.mu.
func (e *Evaluator) trigger(ctx context.Context, rule *domain.AlertRule, target domain.MonitoredTarget, status domain.TargetStatus, result domain.ProbeResult) {
	now := e.now().UTC()

	last, ok := e.seedLastTrigger(ctx, rule.ID)
	if ok && rule.CooldownPeriod > 0 && now.Sub(last) < rule.CooldownPeriod {
		// Suppressed: the condition match is logged but produces no
		// instance and no notification.
		e.logger.Debug("alert suppressed by cooldown",
			"rule", rule.Name,
			"target", target.Name,
			"last_trigger", last,
			"cooldown", rule.CooldownPeriod,
		)
		return
	}

	message := triggerMessage(rule, target, status, result)
	inst := &domain.AlertInstance{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		TargetID:       target.ID,
		Status:         domain.InstanceTriggered,
		Message:        message,
		TriggeredAt:    now,
		LastNotifiedAt: now,
	}
	e.open[rule.ID] = inst
	e.lastTrigger[rule.ID] = now
	e.persist(ctx, inst)

	e.logger.Info("alert triggered", "rule", rule.Name, "target", target.Name, "severity", rule.Severity)
	e.recorder.Record(domain.NewEvent(&target.ID, domain.EventAlertTriggered, severityToEvent(rule.Severity), message, inst))
	e.hub.Publish(broadcast.TopicAlerts, "alert_triggered", inst)
	e.notify(ctx, rule, inst, message)
}

// resolve closes an open instance after its condition cleared. Callers hold e.mu.
func (e *Evaluator) resolve(ctx context.Context, rule *domain.AlertRule, target domain.MonitoredTarget, inst *domain.AlertInstance) {
	now := e.now().UTC()
	inst.Status = domain.InstanceResolved
	inst.ResolvedAt = &now
	delete(e.open, rule.ID)
	e.persist(ctx, inst)

	message := fmt.Sprintf("alert %q resolved for %s", rule.Name, target.Name)
	e.logger.Info("alert resolved", "rule", rule.Name, "target", target.Name)
	e.recorder.Record(domain.NewEvent(&target.ID, domain.EventAlertResolved, domain.EventInfo, message, inst))
	e.hub.Publish(broadcast.TopicAlerts, "alert_resolved", inst)
	e.notify(ctx, rule, inst, message)
}

// maybeEscalate raises the escalation level of an instance whose condition
// persists past the next wall-clock boundary. Acknowledged instances are
// never escalated. Callers hold e.mu.
func (e *Evaluator) maybeEscalate(ctx context.Context, rule *domain.AlertRule, target domain.MonitoredTarget, inst *domain.AlertInstance) {
	if !rule.EscalationEnabled || rule.EscalationDelay <= 0 {
		return
	}
	if inst.Status == domain.InstanceAcknowledged {
		return
	}

	now := e.now().UTC()
	boundary := inst.TriggeredAt.Add(rule.EscalationDelay * time.Duration(inst.EscalationLevel+1))
	if now.Before(boundary) {
		return
	}

	inst.Status = domain.InstanceEscalated
	inst.EscalationLevel++
	inst.LastNotifiedAt = now
	e.persist(ctx, inst)

	message := fmt.Sprintf("alert %q escalated to level %d for %s", rule.Name, inst.EscalationLevel, target.Name)
	e.logger.Warn("alert escalated", "rule", rule.Name, "target", target.Name, "level", inst.EscalationLevel)
	e.recorder.Record(domain.NewEvent(&target.ID, domain.EventAlertEscalated, severityToEvent(rule.Severity), message, inst))
	e.hub.Publish(broadcast.TopicAlerts, "alert_escalated", inst)
	e.notify(ctx, rule, inst, message)
}

// seedLastTrigger returns the rule's most recent trigger time, consulting
// the history store the first time a rule is seen so persisted cooldowns
// survive restarts. Callers hold e.mu.
func (e *Evaluator) seedLastTrigger(ctx context.Context, ruleID uuid.UUID) (time.Time, bool) {
	if at, ok := e.lastTrigger[ruleID]; ok {
		return at, true
	}
	if e.seeded[ruleID] {
		return time.Time{}, false
	}
	e.seeded[ruleID] = true

	at, err := e.history.LoadLastTrigger(ctx, ruleID)
	if err != nil {
		e.logger.Warn("failed to load last trigger time", "rule_id", ruleID, "error", err)
		return time.Time{}, false
	}
	if at == nil {
		return time.Time{}, false
	}
	e.lastTrigger[ruleID] = *at
	return *at, true
}

// persist saves the instance; a store failure never rolls back the
// in-memory lifecycle transition.
func (e *Evaluator) persist(ctx context.Context, inst *domain.AlertInstance) {
	if err := e.history.SaveInstance(ctx, inst); err != nil {
		e.logger.Error("failed to persist alert instance", "instance_id", inst.ID, "error", err)
	}
}

// notify invokes the notification hook; failures are logged and swallowed.
func (e *Evaluator) notify(ctx context.Context, rule *domain.AlertRule, inst *domain.AlertInstance, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, rule, inst, message); err != nil {
		e.logger.Warn("notification delivery failed", "rule", rule.Name, "error", err)
	}
}

// conditionSatisfied evaluates a rule's predicate against the latest update.
func conditionSatisfied(rule *domain.AlertRule, status domain.TargetStatus, result domain.ProbeResult) bool {
	switch rule.Type {
	case domain.AlertHealthCheckFailure:
		threshold := rule.Condition.Threshold
		if threshold < 1 {
			threshold = 1
		}
		return status.ConsecutiveFailures >= threshold
	case domain.AlertResponseTime:
		return result.LatencyMS != nil && *result.LatencyMS > rule.Condition.LatencyThresholdMS
	case domain.AlertServiceDown:
		return status.Current == domain.StatusUnhealthy
	case domain.AlertServiceUp:
		return status.Current == domain.StatusHealthy
	default:
		return false
	}
}

func triggerMessage(rule *domain.AlertRule, target domain.MonitoredTarget, status domain.TargetStatus, result domain.ProbeResult) string {
	switch rule.Type {
	case domain.AlertResponseTime:
		return fmt.Sprintf("alert %q triggered for %s: latency %.0fms exceeds %.0fms",
			rule.Name, target.Name, *result.LatencyMS, rule.Condition.LatencyThresholdMS)
	case domain.AlertServiceDown, domain.AlertHealthCheckFailure:
		detail := result.Message
		if detail == "" {
			detail = string(status.Current)
		}
		return fmt.Sprintf("alert %q triggered for %s: %s (%d consecutive failures)",
			rule.Name, target.Name, detail, status.ConsecutiveFailures)
	default:
		return fmt.Sprintf("alert %q triggered for %s", rule.Name, target.Name)
	}
}

func severityToEvent(s domain.Severity) domain.EventSeverity {
	switch s {
	case domain.SeverityCritical:
		return domain.EventCritical
	case domain.SeverityHigh:
		return domain.EventError
	case domain.SeverityMedium:
		return domain.EventWarning
	default:
		return domain.EventInfo
	}
}
