package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
	"github.com/user/healthwatch/internal/domain/mocks"
)

func containerTarget(name string) domain.MonitoredTarget {
	return domain.MonitoredTarget{
		ID:     uuid.New(),
		Kind:   domain.ProbeContainer,
		Config: domain.ProbeConfig{ContainerName: name},
	}
}

func TestContainerStrategy_Check(t *testing.T) {
	t.Run("Running And Healthy Succeeds", func(t *testing.T) {
		inspector := &mocks.MockInspector{
			Containers: map[string]domain.ContainerState{
				"db": {Name: "db", State: "running", Health: "healthy"},
			},
		}
		target := containerTarget("db")
		strategy, err := NewContainerStrategy(target.Config, inspector)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result := strategy.Check(context.Background(), target)

		if !result.Success {
			t.Fatalf("expected success, got reason=%s message=%q", result.Reason, result.Message)
		}
		if result.Detail.ContainerState != "running" {
			t.Errorf("expected detail state running, got %q", result.Detail.ContainerState)
		}
	})

	t.Run("Running Without Health Check Succeeds", func(t *testing.T) {
		inspector := &mocks.MockInspector{
			Containers: map[string]domain.ContainerState{
				"db": {Name: "db", State: "running", Health: "unknown"},
			},
		}
		target := containerTarget("db")
		strategy, _ := NewContainerStrategy(target.Config, inspector)

		if result := strategy.Check(context.Background(), target); !result.Success {
			t.Errorf("expected success for running container without health check, got %s", result.Reason)
		}
	})

	t.Run("Unhealthy Container Is A Condition Mismatch", func(t *testing.T) {
		inspector := &mocks.MockInspector{
			Containers: map[string]domain.ContainerState{
				"db": {Name: "db", State: "running", Health: "unhealthy"},
			},
		}
		target := containerTarget("db")
		strategy, _ := NewContainerStrategy(target.Config, inspector)

		result := strategy.Check(context.Background(), target)

		if result.Success {
			t.Fatal("expected failure")
		}
		if result.Reason != domain.ReasonConditionMismatch {
			t.Errorf("expected condition_mismatch, got %s", result.Reason)
		}
	})

	t.Run("Stopped Container Is A Condition Mismatch", func(t *testing.T) {
		inspector := &mocks.MockInspector{
			Containers: map[string]domain.ContainerState{
				"db": {Name: "db", State: "exited", Health: ""},
			},
		}
		target := containerTarget("db")
		strategy, _ := NewContainerStrategy(target.Config, inspector)

		result := strategy.Check(context.Background(), target)

		if result.Success {
			t.Fatal("expected failure")
		}
		if result.Reason != domain.ReasonConditionMismatch {
			t.Errorf("expected condition_mismatch, got %s", result.Reason)
		}
	})

	t.Run("Missing Container Is A Condition Mismatch", func(t *testing.T) {
		inspector := &mocks.MockInspector{}
		target := containerTarget("gone")
		strategy, _ := NewContainerStrategy(target.Config, inspector)

		result := strategy.Check(context.Background(), target)

		if result.Reason != domain.ReasonConditionMismatch {
			t.Errorf("expected condition_mismatch for missing container, got %s", result.Reason)
		}
	})

	t.Run("Runtime Error Is A Transport Error", func(t *testing.T) {
		inspector := &mocks.MockInspector{InspectErr: errors.New("socket unreachable")}
		target := containerTarget("db")
		strategy, _ := NewContainerStrategy(target.Config, inspector)

		result := strategy.Check(context.Background(), target)

		if result.Reason != domain.ReasonTransport {
			t.Errorf("expected transport_error, got %s", result.Reason)
		}
	})

	t.Run("Missing Name Rejected", func(t *testing.T) {
		if _, err := NewContainerStrategy(domain.ProbeConfig{}, &mocks.MockInspector{}); err == nil {
			t.Error("expected an error for missing container name")
		}
	})
}
