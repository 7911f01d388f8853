// Package api wires the HTTP surface: the read-model REST endpoints, the
// websocket stream and the health probe.
package api

import (
	"log/slog"
	"net/http"

	"github.com/user/healthwatch/internal/adapter/api/handler"
	"github.com/user/healthwatch/internal/adapter/api/middleware"
)

// NewRouter assembles the API mux with logging applied to every route.
func NewRouter(
	logger *slog.Logger,
	status *handler.StatusHandler,
	ws *handler.WSHandler,
	health *handler.HealthHandler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Health)

	mux.HandleFunc("GET /api/targets", status.ListTargets)
	mux.HandleFunc("GET /api/targets/{id}", status.GetTarget)
	mux.HandleFunc("POST /api/targets/{id}/check", status.TriggerCheck)

	mux.HandleFunc("GET /api/alerts", status.ListAlerts)
	mux.HandleFunc("POST /api/alerts/{ruleId}/ack", status.AcknowledgeAlert)

	mux.HandleFunc("GET /ws", ws.Stream)

	return middleware.Logging(logger)(mux)
}
