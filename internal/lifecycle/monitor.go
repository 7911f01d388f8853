// Package lifecycle watches the container runtime's event stream and maps
// container actions onto the externally-driven lifecycle states of matching
// container targets. Probes never set these states; this monitor does.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/healthwatch/internal/broadcast"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/recorder"
	"github.com/user/healthwatch/internal/status"
)

const reconnectDelay = 5 * time.Second

// Monitor consumes container runtime events and applies them to the status
// tracker out-of-band.
type Monitor struct {
	logger   *slog.Logger
	source   domain.ContainerEventSource
	targets  domain.TargetRepository
	tracker  *status.Tracker
	recorder *recorder.Recorder
	hub      *broadcast.Hub
}

// NewMonitor wires a lifecycle monitor.
func NewMonitor(
	logger *slog.Logger,
	source domain.ContainerEventSource,
	targets domain.TargetRepository,
	tracker *status.Tracker,
	rec *recorder.Recorder,
	hub *broadcast.Hub,
) *Monitor {
	return &Monitor{
		logger:   logger.With("component", "lifecycle_monitor"),
		source:   source,
		targets:  targets,
		tracker:  tracker,
		recorder: rec,
		hub:      hub,
	}
}

// Run consumes the event stream until ctx is cancelled, reconnecting with a
// delay whenever the stream drops.
func (m *Monitor) Run(ctx context.Context) {
	for {
		events, err := m.source.Watch(ctx)
		if err != nil {
			m.logger.Warn("failed to open container event stream", "error", err)
		} else {
			m.logger.Info("watching container events")
			for event := range events {
				m.handle(ctx, event)
			}
		}

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) handle(ctx context.Context, event domain.ContainerEvent) {
	next, eventType, ok := mapAction(event.Action)
	if !ok {
		return
	}

	target := m.findContainerTarget(ctx, event.ContainerName)
	if target == nil {
		return
	}

	state, transition := m.tracker.SetLifecycle(target.ID, target.Name, next)
	if transition == nil {
		return
	}

	m.recorder.Record(domain.NewEvent(&target.ID, eventType, domain.EventInfo,
		fmt.Sprintf("container %s %s", event.ContainerName, event.Action), event))

	m.hub.Publish(broadcast.TopicTargets, "status_change", transition)
	m.hub.Publish(broadcast.TargetTopic(target.ID), "status_change", transition)
	m.hub.Publish(broadcast.TopicTargets, "target_update", state)
}

// findContainerTarget resolves the container target configured for the
// given container name, nil when none matches.
func (m *Monitor) findContainerTarget(ctx context.Context, containerName string) *domain.MonitoredTarget {
	if containerName == "" {
		return nil
	}
	targets, err := m.targets.FindAllEnabled(ctx)
	if err != nil {
		m.logger.Warn("failed to load targets for container event", "error", err)
		return nil
	}
	for i := range targets {
		t := targets[i]
		if t.Kind == domain.ProbeContainer && t.Config.ContainerName == containerName {
			return &t
		}
	}
	return nil
}

// mapAction translates a runtime action to a target status and event type.
// start/restart outcomes settle to healthy; create and kill surface the
// transitional states until the runtime reports the outcome.
func mapAction(action string) (domain.Status, domain.EventType, bool) {
	switch action {
	case "create":
		return domain.StatusStarting, domain.EventServiceStarted, true
	case "start":
		return domain.StatusHealthy, domain.EventServiceStarted, true
	case "restart":
		return domain.StatusRestarting, domain.EventServiceRestarted, true
	case "kill":
		return domain.StatusStopping, domain.EventServiceStopped, true
	case "stop", "die":
		return domain.StatusUnhealthy, domain.EventServiceStopped, true
	default:
		return "", "", false
	}
}
