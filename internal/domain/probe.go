package domain

import (
	"time"

	"github.com/google/uuid"
)

// FailureReason classifies why a probe attempt failed.
type FailureReason string

const (
	// ReasonNone marks a successful probe.
	ReasonNone FailureReason = ""
	// ReasonTimeout means the attempt exceeded the target's timeout and was cancelled.
	ReasonTimeout FailureReason = "timeout"
	// ReasonTransport covers connection refused, DNS failure, spawn failure and the like.
	ReasonTransport FailureReason = "transport_error"
	// ReasonConditionMismatch means a response arrived but did not match expectations.
	ReasonConditionMismatch FailureReason = "condition_mismatch"
	// ReasonInternal marks an unexpected failure (panic) inside a probe strategy.
	ReasonInternal FailureReason = "internal_error"
	// ReasonConfig marks a target whose probe configuration is unusable.
	ReasonConfig FailureReason = "config_error"
)

// ProbeDetail carries the kind-specific payload of a probe attempt.
type ProbeDetail struct {
	HTTPStatus      *int   `json:"http_status,omitempty"`
	ConnectError    string `json:"connect_error,omitempty"`
	ContainerState  string `json:"container_state,omitempty"`
	ContainerHealth string `json:"container_health,omitempty"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
}

// ProbeResult is the immutable outcome of a single probe attempt.
type ProbeResult struct {
	TargetID   uuid.UUID     `json:"target_id"`
	Success    bool          `json:"success"`
	LatencyMS  *float64      `json:"latency_ms"`
	ObservedAt time.Time     `json:"observed_at"`
	Detail     ProbeDetail   `json:"detail"`
	Reason     FailureReason `json:"failure_reason,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// LatencyOf converts a measured duration to the millisecond latency
// representation used by ProbeResult.
func LatencyOf(d time.Duration) *float64 {
	ms := float64(d.Milliseconds())
	return &ms
}
