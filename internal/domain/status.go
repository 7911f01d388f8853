package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the health state of a monitored target.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusHealthy    Status = "healthy"
	StatusUnhealthy  Status = "unhealthy"
	StatusStarting   Status = "starting"
	StatusStopping   Status = "stopping"
	StatusRestarting Status = "restarting"
)

// IsLifecycle reports whether the status is one of the externally-driven
// lifecycle states set by container events rather than by probes.
func (s Status) IsLifecycle() bool {
	return s == StatusStarting || s == StatusStopping || s == StatusRestarting
}

// TargetStatus is the live health state of one target. It is exclusively
// owned and mutated by the status tracker.
type TargetStatus struct {
	TargetID            uuid.UUID    `json:"target_id"`
	Current             Status       `json:"current"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastResult          *ProbeResult `json:"last_result,omitempty"`
	LastTransitionAt    time.Time    `json:"last_transition_at"`
}

// StatusTransition describes a committed change of a target's status.
type StatusTransition struct {
	TargetID   uuid.UUID `json:"target_id"`
	TargetName string    `json:"target_name"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	At         time.Time `json:"at"`
}
