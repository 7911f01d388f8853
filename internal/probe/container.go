package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

// ContainerStrategy probes a container workload by inspecting its runtime
// state. A container is healthy while running with a healthy (or absent)
// health check.
type ContainerStrategy struct {
	inspector domain.ContainerInspector
	name      string
}

// NewContainerStrategy validates the container probe configuration and
// builds a strategy.
func NewContainerStrategy(cfg domain.ProbeConfig, inspector domain.ContainerInspector) (*ContainerStrategy, error) {
	if cfg.ContainerName == "" {
		return nil, errors.New("container probe requires a container name")
	}
	if inspector == nil {
		return nil, errors.New("container probe requires an inspector")
	}
	return &ContainerStrategy{inspector: inspector, name: cfg.ContainerName}, nil
}

func (s *ContainerStrategy) Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult {
	start := time.Now()
	state, err := s.inspector.Inspect(ctx, s.name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(target, domain.ReasonConditionMismatch, fmt.Sprintf("container %q not found", s.name))
		}
		reason, msg := classifyNetErr(ctx, err)
		return failure(target, reason, msg)
	}
	latency := time.Since(start)

	healthy := state.State == "running" &&
		(state.Health == "healthy" || state.Health == "unknown" || state.Health == "")

	result := domain.ProbeResult{
		TargetID:   target.ID,
		Success:    healthy,
		LatencyMS:  domain.LatencyOf(latency),
		ObservedAt: time.Now().UTC(),
		Detail: domain.ProbeDetail{
			ContainerState:  state.State,
			ContainerHealth: state.Health,
		},
	}
	if !healthy {
		result.Reason = domain.ReasonConditionMismatch
		result.Message = fmt.Sprintf("container state: %s, health: %s", state.State, state.Health)
	}
	return result
}
