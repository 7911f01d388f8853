package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

// Triggerer runs a manual check, subject to per-target mutual exclusion.
type Triggerer interface {
	TriggerNow(ctx context.Context, targetID uuid.UUID) (domain.ProbeResult, error)
}

// StatusReader exposes the tracker's read model.
type StatusReader interface {
	Get(targetID uuid.UUID) (domain.TargetStatus, bool)
	Snapshot() []domain.TargetStatus
}

// Acknowledger marks an open alert instance as acknowledged.
type Acknowledger interface {
	Acknowledge(ctx context.Context, ruleID uuid.UUID) (*domain.AlertInstance, error)
	OpenInstances() []domain.AlertInstance
}

// StatusHandler serves the read-model API: target statuses, open alerts,
// manual triggers and acknowledgments.
type StatusHandler struct {
	logger    *slog.Logger
	targets   domain.TargetRepository
	statuses  StatusReader
	triggerer Triggerer
	alerts    Acknowledger
}

// NewStatusHandler creates the read-model handler.
func NewStatusHandler(logger *slog.Logger, targets domain.TargetRepository, statuses StatusReader, triggerer Triggerer, alerts Acknowledger) *StatusHandler {
	return &StatusHandler{
		logger:    logger,
		targets:   targets,
		statuses:  statuses,
		triggerer: triggerer,
		alerts:    alerts,
	}
}

// targetView is the API shape of one target plus its live status.
type targetView struct {
	Target domain.MonitoredTarget `json:"target"`
	Status domain.TargetStatus    `json:"status"`
}

// ListTargets handles GET /api/targets.
func (h *StatusHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.targets.FindAllEnabled(r.Context())
	if err != nil {
		h.logger.Error("failed to list targets", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		state, ok := h.statuses.Get(t.ID)
		if !ok {
			state = domain.TargetStatus{TargetID: t.ID, Current: domain.StatusUnknown}
		}
		views = append(views, targetView{Target: t, Status: state})
	}
	writeJSON(w, http.StatusOK, views)
}

// GetTarget handles GET /api/targets/{id}.
func (h *StatusHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid target id", http.StatusBadRequest)
		return
	}

	target, err := h.targets.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Target not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load target", "target_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	state, ok := h.statuses.Get(id)
	if !ok {
		state = domain.TargetStatus{TargetID: id, Current: domain.StatusUnknown}
	}
	writeJSON(w, http.StatusOK, targetView{Target: *target, Status: state})
}

// TriggerCheck handles POST /api/targets/{id}/check: a synchronous manual
// probe. A probe already in flight or a disabled target yields 409.
func (h *StatusHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid target id", http.StatusBadRequest)
		return
	}

	result, err := h.triggerer.TriggerNow(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Target not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrTargetDisabled):
		http.Error(w, "Target is disabled", http.StatusConflict)
	case errors.Is(err, domain.ErrCheckInFlight):
		http.Error(w, "Check already in flight", http.StatusConflict)
	case err != nil:
		h.logger.Error("manual check failed", "target_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// ListAlerts handles GET /api/alerts: every open alert instance.
func (h *StatusHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.alerts.OpenInstances())
}

// AcknowledgeAlert handles POST /api/alerts/{ruleId}/ack.
func (h *StatusHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(r.PathValue("ruleId"))
	if err != nil {
		http.Error(w, "Invalid rule id", http.StatusBadRequest)
		return
	}

	inst, err := h.alerts.Acknowledge(r.Context(), ruleID)
	switch {
	case errors.Is(err, domain.ErrInstanceNotOpen):
		http.Error(w, "No open alert for rule", http.StatusNotFound)
	case err != nil:
		h.logger.Error("acknowledge failed", "rule_id", ruleID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, inst)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
