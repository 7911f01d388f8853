package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

// TCPStrategy probes a TCP port by completing a connect handshake.
type TCPStrategy struct {
	addr string
}

// NewTCPStrategy validates the tcp probe configuration and builds a strategy.
func NewTCPStrategy(cfg domain.ProbeConfig) (*TCPStrategy, error) {
	if cfg.Host == "" {
		return nil, errors.New("tcp probe requires a host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("tcp probe requires a valid port, got %d", cfg.Port)
	}
	return &TCPStrategy{addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}, nil
}

func (s *TCPStrategy) Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult {
	var dialer net.Dialer

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	latency := time.Since(start)

	if err != nil {
		reason, msg := classifyNetErr(ctx, err)
		result := failure(target, reason, msg)
		result.Detail.ConnectError = err.Error()
		if reason == domain.ReasonTransport {
			result.LatencyMS = domain.LatencyOf(latency)
		}
		return result
	}
	_ = conn.Close()

	return domain.ProbeResult{
		TargetID:   target.ID,
		Success:    true,
		LatencyMS:  domain.LatencyOf(latency),
		ObservedAt: time.Now().UTC(),
	}
}
