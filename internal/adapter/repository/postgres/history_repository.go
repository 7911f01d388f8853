package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

// HistoryRepository implements domain.HistoryRepository for PostgreSQL.
// Event appends conflict on the event id and do nothing, so redundant
// at-least-once delivery never duplicates rows.
type HistoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewHistoryRepository creates a PostgreSQL history repository.
func NewHistoryRepository(db *sql.DB, logger *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger.With("component", "history_repository")}
}

// AppendResult stores one probe result.
func (r *HistoryRepository) AppendResult(ctx context.Context, result domain.ProbeResult) error {
	detail, err := json.Marshal(result.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal probe detail: %w", err)
	}

	var latency sql.NullFloat64
	if result.LatencyMS != nil {
		latency = sql.NullFloat64{Float64: *result.LatencyMS, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO probe_results (target_id, success, latency_ms, observed_at, detail, failure_reason, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.TargetID, result.Success, latency, result.ObservedAt, detail, string(result.Reason), result.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append probe result: %w", err)
	}
	return nil
}

// AppendEvent stores one event; duplicate ids are silently ignored.
func (r *HistoryRepository) AppendEvent(ctx context.Context, event domain.Event) error {
	var targetID any
	if event.TargetID != nil {
		targetID = *event.TargetID
	}

	payload := event.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, target_id, type, severity, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, targetID, string(event.Type), string(event.Severity), event.Message, []byte(payload), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// SaveInstance inserts or updates one alert instance by id.
func (r *HistoryRepository) SaveInstance(ctx context.Context, instance *domain.AlertInstance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_instances
			(id, rule_id, target_id, status, message, triggered_at, resolved_at, acknowledged_at, escalation_level, last_notified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at,
			acknowledged_at = EXCLUDED.acknowledged_at,
			escalation_level = EXCLUDED.escalation_level,
			last_notified_at = EXCLUDED.last_notified_at`,
		instance.ID, instance.RuleID, instance.TargetID, string(instance.Status), instance.Message,
		instance.TriggeredAt, nullTime(instance.ResolvedAt), nullTime(instance.AcknowledgedAt),
		instance.EscalationLevel, instance.LastNotifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert instance: %w", err)
	}
	return nil
}

// LoadOpenInstances returns every instance that has not resolved.
func (r *HistoryRepository) LoadOpenInstances(ctx context.Context) ([]domain.AlertInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_id, target_id, status, message, triggered_at, resolved_at, acknowledged_at, escalation_level, last_notified_at
		FROM alert_instances
		WHERE status != 'resolved'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alert instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.AlertInstance
	for rows.Next() {
		var (
			inst           domain.AlertInstance
			resolvedAt     sql.NullTime
			acknowledgedAt sql.NullTime
		)
		err := rows.Scan(&inst.ID, &inst.RuleID, &inst.TargetID, &inst.Status, &inst.Message,
			&inst.TriggeredAt, &resolvedAt, &acknowledgedAt, &inst.EscalationLevel, &inst.LastNotifiedAt)
		if err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			inst.ResolvedAt = &resolvedAt.Time
		}
		if acknowledgedAt.Valid {
			inst.AcknowledgedAt = &acknowledgedAt.Time
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// LoadLastTrigger returns a rule's most recent trigger time, nil if it has
// never triggered.
func (r *HistoryRepository) LoadLastTrigger(ctx context.Context, ruleID uuid.UUID) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(triggered_at) FROM alert_instances WHERE rule_id = $1`, ruleID).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("failed to load last trigger for rule %s: %w", ruleID, err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
