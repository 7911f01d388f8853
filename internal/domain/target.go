package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProbeKind identifies the probe strategy used for a target.
type ProbeKind string

const (
	ProbeHTTP      ProbeKind = "http"
	ProbeTCP       ProbeKind = "tcp"
	ProbeContainer ProbeKind = "container"
	ProbeScript    ProbeKind = "script"
)

// ProbeConfig holds the kind-specific probe configuration for a target.
// Only the fields belonging to the target's kind are meaningful.
type ProbeConfig struct {
	// http
	URL            string `json:"url,omitempty"`
	Method         string `json:"method,omitempty"`
	ExpectedStatus int    `json:"expected_status,omitempty"`

	// tcp
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// container
	ContainerName string `json:"container_name,omitempty"`

	// script
	ScriptPath string   `json:"script_path,omitempty"`
	ScriptArgs []string `json:"script_args,omitempty"`
}

// MonitoredTarget represents a single entity under health monitoring.
// Definitions are owned by the external configuration store; the core
// only ever reads them.
type MonitoredTarget struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	Kind           ProbeKind     `json:"kind"`
	Config         ProbeConfig   `json:"config"`
	Interval       time.Duration `json:"interval"`
	Timeout        time.Duration `json:"timeout"`
	RetryThreshold int           `json:"retry_threshold"`
	Enabled        bool          `json:"enabled"`
}
