package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertType selects the condition evaluated by an alert rule.
type AlertType string

const (
	// AlertHealthCheckFailure fires once a target accumulates Threshold
	// consecutive probe failures.
	AlertHealthCheckFailure AlertType = "health_check_failure"
	// AlertResponseTime fires when probe latency exceeds LatencyThresholdMS.
	AlertResponseTime AlertType = "response_time"
	// AlertServiceDown fires while the target's status is unhealthy.
	AlertServiceDown AlertType = "service_down"
	// AlertServiceUp fires while the target's status is healthy.
	AlertServiceUp AlertType = "service_up"
)

// Severity grades alerts and events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertCondition is the structured predicate of an alert rule. Threshold is
// used by health_check_failure, LatencyThresholdMS by response_time; the
// service_down/service_up types need no parameters.
type AlertCondition struct {
	Threshold          int     `json:"threshold,omitempty"`
	LatencyThresholdMS float64 `json:"latency_threshold_ms,omitempty"`
}

// AlertRule binds a condition to a target. Definitions are owned by the
// external configuration store and read-only to the core.
type AlertRule struct {
	ID                uuid.UUID      `json:"id"`
	TargetID          uuid.UUID      `json:"target_id"`
	Name              string         `json:"name"`
	Type              AlertType      `json:"type"`
	Condition         AlertCondition `json:"condition"`
	Severity          Severity       `json:"severity"`
	Enabled           bool           `json:"enabled"`
	CooldownPeriod    time.Duration  `json:"cooldown_period"`
	EscalationEnabled bool           `json:"escalation_enabled"`
	EscalationDelay   time.Duration  `json:"escalation_delay"`
	Channels          []string       `json:"channels,omitempty"`
}

// InstanceStatus is the lifecycle state of an alert instance.
type InstanceStatus string

const (
	InstanceTriggered    InstanceStatus = "triggered"
	InstanceAcknowledged InstanceStatus = "acknowledged"
	InstanceEscalated    InstanceStatus = "escalated"
	InstanceResolved     InstanceStatus = "resolved"
)

// AlertInstance is one firing of an alert rule, from trigger to resolution.
// At most one instance per rule is open at any moment.
type AlertInstance struct {
	ID              uuid.UUID      `json:"id"`
	RuleID          uuid.UUID      `json:"rule_id"`
	TargetID        uuid.UUID      `json:"target_id"`
	Status          InstanceStatus `json:"status"`
	Message         string         `json:"message"`
	TriggeredAt     time.Time      `json:"triggered_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	EscalationLevel int            `json:"escalation_level"`
	LastNotifiedAt  time.Time      `json:"last_notified_at"`
}

// Open reports whether the instance is still active.
func (i *AlertInstance) Open() bool {
	return i.Status != InstanceResolved
}
