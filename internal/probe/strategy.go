// Package probe implements the health-probe strategies. Each strategy maps a
// target's configuration to a single timed ProbeResult and never returns an
// error past its boundary: every failure mode is captured on the result.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

// Strategy executes one probe attempt against a target. The context carries
// the target's timeout; implementations must honor cancellation by tearing
// down in-flight work, not by reporting late.
type Strategy interface {
	Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult
}

// ForTarget selects the strategy for a target's kind. Selection happens once
// at target-load time; an invalid configuration yields an error so the
// caller can substitute a permanently-failing strategy.
func ForTarget(target domain.MonitoredTarget, inspector domain.ContainerInspector) (Strategy, error) {
	switch target.Kind {
	case domain.ProbeHTTP:
		return NewHTTPStrategy(target.Config)
	case domain.ProbeTCP:
		return NewTCPStrategy(target.Config)
	case domain.ProbeContainer:
		return NewContainerStrategy(target.Config, inspector)
	case domain.ProbeScript:
		return NewScriptStrategy(target.Config)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTargetKind, target.Kind)
	}
}

// Static is a strategy that always reports the same failure. It stands in
// for targets whose configuration could not produce a working strategy.
type Static struct {
	Reason  domain.FailureReason
	Message string
}

// NewStatic creates a permanently-failing strategy.
func NewStatic(reason domain.FailureReason, message string) *Static {
	return &Static{Reason: reason, Message: message}
}

func (s *Static) Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult {
	return failure(target, s.Reason, s.Message)
}

// failure builds a failed result stamped with the current time.
func failure(target domain.MonitoredTarget, reason domain.FailureReason, message string) domain.ProbeResult {
	return domain.ProbeResult{
		TargetID:   target.ID,
		Success:    false,
		ObservedAt: time.Now().UTC(),
		Reason:     reason,
		Message:    message,
	}
}

// classifyNetErr maps a transport-level error to a failure reason. Context
// expiry counts as a timeout regardless of how the underlying library
// wrapped it.
func classifyNetErr(ctx context.Context, err error) (domain.FailureReason, string) {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return domain.ReasonTimeout, "probe timed out"
	}
	if errors.Is(err, context.Canceled) {
		return domain.ReasonTimeout, "probe cancelled"
	}
	return domain.ReasonTransport, err.Error()
}
