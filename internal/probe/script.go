package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

// Output captured from a script is truncated to this many bytes per stream.
const maxScriptOutput = 8 << 10

// ScriptStrategy probes a target by running an executable; exit code zero
// means healthy. The process is killed when the context expires.
type ScriptStrategy struct {
	path string
	args []string
}

// NewScriptStrategy validates the script probe configuration and builds a
// strategy.
func NewScriptStrategy(cfg domain.ProbeConfig) (*ScriptStrategy, error) {
	if cfg.ScriptPath == "" {
		return nil, errors.New("script probe requires a script path")
	}
	return &ScriptStrategy{path: cfg.ScriptPath, args: cfg.ScriptArgs}, nil
}

func (s *ScriptStrategy) Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult {
	cmd := exec.CommandContext(ctx, s.path, s.args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return failure(target, domain.ReasonTimeout, "script execution timed out")
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		return domain.ProbeResult{
			TargetID:   target.ID,
			Success:    true,
			LatencyMS:  domain.LatencyOf(latency),
			ObservedAt: time.Now().UTC(),
			Detail: domain.ProbeDetail{
				ExitCode: &code,
				Stdout:   truncate(stdout.String()),
				Stderr:   truncate(stderr.String()),
			},
		}
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		result := failure(target, domain.ReasonConditionMismatch,
			fmt.Sprintf("script exited with code %d", code))
		result.LatencyMS = domain.LatencyOf(latency)
		result.Detail = domain.ProbeDetail{
			ExitCode: &code,
			Stdout:   truncate(stdout.String()),
			Stderr:   truncate(stderr.String()),
		}
		return result
	default:
		// Spawn failure: missing executable, permission denied, and the like.
		return failure(target, domain.ReasonTransport, err.Error())
	}
}

func truncate(s string) string {
	if len(s) > maxScriptOutput {
		return s[:maxScriptOutput]
	}
	return s
}
