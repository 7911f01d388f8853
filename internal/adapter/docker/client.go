// Package docker talks to the container runtime over its unix socket. All
// Engine API response parsing is contained here; the rest of the system
// sees only the structured domain types.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

// Client implements domain.ContainerInspector against the Docker Engine
// HTTP API.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// containerInspect is the subset of the Engine inspect payload we consume.
type containerInspect struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	RestartCount int    `json:"RestartCount"`
	State        struct {
		Status string `json:"Status"`
		Health *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
}

// apiEvent is the subset of the Engine event-stream payload we consume.
type apiEvent struct {
	Type   string `json:"Type"`
	Action string `json:"Action"`
	Actor  struct {
		ID         string            `json:"ID"`
		Attributes map[string]string `json:"Attributes"`
	} `json:"Actor"`
	Time int64 `json:"time"`
}

// NewClient creates a client for the runtime socket. The HTTP client
// carries no global timeout so event streaming can run indefinitely;
// request deadlines come from contexts.
func NewClient(socketPath string, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		http:   &http.Client{Transport: transport},
		logger: logger.With("component", "docker_client"),
	}
}

// Available reports whether the runtime answers a ping.
func (c *Client) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, "http://docker/_ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Inspect resolves a container by name or id. Returns domain.ErrNotFound
// for unknown containers.
func (c *Client) Inspect(ctx context.Context, nameOrID string) (*domain.ContainerState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://docker/containers/"+nameOrID+"/json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inspect %s: unexpected status %d: %s", nameOrID, resp.StatusCode, body)
	}

	var payload containerInspect
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("inspect %s: decode: %w", nameOrID, err)
	}

	state := &domain.ContainerState{
		ID:           payload.ID,
		Name:         trimSlash(payload.Name),
		State:        payload.State.Status,
		Health:       "unknown",
		RestartCount: payload.RestartCount,
	}
	if payload.State.Health != nil && payload.State.Health.Status != "" {
		state.Health = payload.State.Health.Status
	}
	return state, nil
}

// Watch streams container events from the runtime until ctx is cancelled.
// The returned channel is closed when the stream ends.
func (c *Client) Watch(ctx context.Context) (<-chan domain.ContainerEvent, error) {
	filters := `{"type":["container"]}`
	endpoint := "http://docker/events?filters=" + url.QueryEscape(filters)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}

	out := make(chan domain.ContainerEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var raw apiEvent
			if err := decoder.Decode(&raw); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("container event stream ended", "error", err)
				}
				return
			}
			if raw.Type != "container" {
				continue
			}
			event := domain.ContainerEvent{
				Action:        raw.Action,
				ContainerID:   raw.Actor.ID,
				ContainerName: raw.Actor.Attributes["name"],
				At:            time.Unix(raw.Time, 0).UTC(),
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}
