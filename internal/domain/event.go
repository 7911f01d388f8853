package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType labels a recorded occurrence.
type EventType string

const (
	EventHealthCheckFailed    EventType = "health_check_failed"
	EventHealthCheckRecovered EventType = "health_check_recovered"
	EventStatusChanged        EventType = "status_changed"
	EventCheckMissed          EventType = "check_missed"
	EventAlertTriggered       EventType = "alert_triggered"
	EventAlertEscalated       EventType = "alert_escalated"
	EventAlertResolved        EventType = "alert_resolved"
	EventAlertAcknowledged    EventType = "alert_acknowledged"
	EventServiceStarted       EventType = "service_started"
	EventServiceStopped       EventType = "service_stopped"
	EventServiceRestarted     EventType = "service_restarted"
	EventSystemStartup        EventType = "system_startup"
	EventSystemShutdown       EventType = "system_shutdown"
)

// EventSeverity grades recorded events.
type EventSeverity string

const (
	EventInfo     EventSeverity = "info"
	EventWarning  EventSeverity = "warning"
	EventError    EventSeverity = "error"
	EventCritical EventSeverity = "critical"
)

// Event is an immutable, append-only record of a notable occurrence.
// TargetID is nil for system-wide events.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	TargetID  *uuid.UUID      `json:"target_id,omitempty"`
	Type      EventType       `json:"type"`
	Severity  EventSeverity   `json:"severity"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and the current timestamp.
// The payload is marshalled best-effort; a marshal failure leaves it empty.
func NewEvent(targetID *uuid.UUID, typ EventType, severity EventSeverity, message string, payload any) Event {
	e := Event{
		ID:        uuid.New(),
		TargetID:  targetID,
		Type:      typ,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}
	return e
}
