package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AvailabilityReporter reports a best-effort availability flag for an
// optional dependency.
type AvailabilityReporter interface {
	Available() bool
}

// HealthHandler serves the process's own liveness and dependency status.
type HealthHandler struct {
	logger *slog.Logger
	db     Pinger
	pubsub AvailabilityReporter
	docker AvailabilityReporter
}

// NewHealthHandler creates the health endpoint handler. pubsub and docker
// may be nil when the corresponding integration is not configured.
func NewHealthHandler(logger *slog.Logger, db Pinger, pubsub, docker AvailabilityReporter) *HealthHandler {
	return &HealthHandler{logger: logger, db: db, pubsub: pubsub, docker: docker}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Health handles GET /health. The database is the only hard dependency;
// pub/sub and the container runtime degrade the status without failing it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:       "ok",
		Dependencies: make(map[string]string),
		Timestamp:    time.Now().UTC(),
	}
	code := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database ping failed", "error", err)
		resp.Dependencies["postgres"] = "unavailable"
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		resp.Dependencies["postgres"] = "ok"
	}

	resp.Dependencies["pubsub"] = optionalStatus(h.pubsub)
	resp.Dependencies["docker"] = optionalStatus(h.docker)
	if resp.Status == "ok" && (resp.Dependencies["pubsub"] == "unavailable" || resp.Dependencies["docker"] == "unavailable") {
		resp.Status = "degraded"
	}

	writeJSON(w, code, resp)
}

func optionalStatus(dep AvailabilityReporter) string {
	switch {
	case dep == nil:
		return "disabled"
	case dep.Available():
		return "ok"
	default:
		return "unavailable"
	}
}
