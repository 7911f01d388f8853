package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

const defaultExpectedStatus = http.StatusOK

// HTTPStrategy probes an HTTP endpoint and compares the response status
// against the expected one.
type HTTPStrategy struct {
	client         *http.Client
	url            string
	method         string
	expectedStatus int
}

// NewHTTPStrategy validates the http probe configuration and builds a
// strategy. The client itself carries no timeout; the per-attempt deadline
// comes from the context so cancellation tears the connection down.
func NewHTTPStrategy(cfg domain.ProbeConfig) (*HTTPStrategy, error) {
	if cfg.URL == "" {
		return nil, errors.New("http probe requires a url")
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	expected := cfg.ExpectedStatus
	if expected == 0 {
		expected = defaultExpectedStatus
	}
	return &HTTPStrategy{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 1,
				DisableKeepAlives:   true,
			},
		},
		url:            cfg.URL,
		method:         method,
		expectedStatus: expected,
	}, nil
}

func (s *HTTPStrategy) Check(ctx context.Context, target domain.MonitoredTarget) domain.ProbeResult {
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, nil)
	if err != nil {
		return failure(target, domain.ReasonConfig, fmt.Sprintf("invalid request: %v", err))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		reason, msg := classifyNetErr(ctx, err)
		return failure(target, reason, msg)
	}
	defer resp.Body.Close()

	// Drain so the connection is fully accounted for in the latency.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	latency := time.Since(start)

	code := resp.StatusCode
	result := domain.ProbeResult{
		TargetID:   target.ID,
		Success:    code == s.expectedStatus,
		LatencyMS:  domain.LatencyOf(latency),
		ObservedAt: time.Now().UTC(),
		Detail:     domain.ProbeDetail{HTTPStatus: &code},
	}
	if !result.Success {
		result.Reason = domain.ReasonConditionMismatch
		result.Message = fmt.Sprintf("expected status %d, got %d", s.expectedStatus, code)
	}
	return result
}
