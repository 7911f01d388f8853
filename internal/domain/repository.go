package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TargetRepository reads monitored-target definitions from the external
// configuration store. The core never writes target definitions.
type TargetRepository interface {
	// FindAllEnabled returns every enabled target definition.
	FindAllEnabled(ctx context.Context) ([]MonitoredTarget, error)

	// FindByID returns a single target definition, ErrNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID) (*MonitoredTarget, error)
}

// AlertRuleRepository reads alert-rule definitions from the external
// configuration store.
type AlertRuleRepository interface {
	// FindEnabledByTarget returns every enabled rule bound to a target.
	FindEnabledByTarget(ctx context.Context, targetID uuid.UUID) ([]AlertRule, error)

	// FindRuleByID returns a single rule, ErrNotFound if absent.
	FindRuleByID(ctx context.Context, id uuid.UUID) (*AlertRule, error)
}

// HistoryRepository is the persistent, append-only history store. Appends
// are at-least-once; implementations must tolerate redundant delivery.
type HistoryRepository interface {
	// AppendResult stores one probe result.
	AppendResult(ctx context.Context, result ProbeResult) error

	// AppendEvent stores one event. Duplicate event ids are tolerated.
	AppendEvent(ctx context.Context, event Event) error

	// SaveInstance inserts or updates one alert instance by id.
	SaveInstance(ctx context.Context, instance *AlertInstance) error

	// LoadOpenInstances returns every alert instance that is not resolved,
	// used to restore evaluator state after a restart.
	LoadOpenInstances(ctx context.Context) ([]AlertInstance, error)

	// LoadLastTrigger returns the most recent trigger time for a rule, or
	// nil if the rule has never triggered.
	LoadLastTrigger(ctx context.Context, ruleID uuid.UUID) (*time.Time, error)
}

// Publisher is the external subscriber transport behind the broadcast
// fan-out. Publish failures are logged by callers and never propagated.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// Notifier delivers alert lifecycle notifications to the configured
// channels. Delivery success or failure is opaque to the core.
type Notifier interface {
	Notify(ctx context.Context, rule *AlertRule, instance *AlertInstance, message string) error
}

// ContainerState is the structured outcome of a container inspection.
type ContainerState struct {
	ID           string
	Name         string
	State        string
	Health       string
	RestartCount int
}

// ContainerInspector isolates container-runtime inspection behind a single
// adapter; all response parsing fragility lives in its implementation.
type ContainerInspector interface {
	// Inspect resolves a container by name or id. ErrNotFound when the
	// container does not exist.
	Inspect(ctx context.Context, nameOrID string) (*ContainerState, error)

	// Available reports whether the container runtime is reachable.
	Available(ctx context.Context) bool
}

// ContainerEvent is one lifecycle action observed on the container runtime.
type ContainerEvent struct {
	Action        string
	ContainerID   string
	ContainerName string
	At            time.Time
}

// ContainerEventSource streams lifecycle events from the container runtime.
type ContainerEventSource interface {
	// Watch opens the event stream; the returned channel closes when the
	// stream ends or ctx is cancelled.
	Watch(ctx context.Context) (<-chan ContainerEvent, error)
}

// EventJournal is the local durable spill used by the event recorder when
// the history store is unavailable.
type EventJournal interface {
	Write(ctx context.Context, event Event) error
	Replay(ctx context.Context, handler func(event Event) error) error
	Truncate(ctx context.Context) error
}
