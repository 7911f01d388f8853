package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/user/healthwatch/internal/domain"
)

// ConfigRepository reads target and alert-rule definitions from PostgreSQL.
// It implements domain.TargetRepository and domain.AlertRuleRepository; the
// core never writes through it.
type ConfigRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ domain.TargetRepository    = (*ConfigRepository)(nil)
	_ domain.AlertRuleRepository = (*ConfigRepository)(nil)
)

// NewConfigRepository creates a read-only configuration repository.
func NewConfigRepository(db *sql.DB, logger *slog.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, logger: logger.With("component", "config_repository")}
}

const targetColumns = `id, name, kind, config, interval_seconds, timeout_seconds, retry_threshold, enabled`

// FindAllEnabled returns every enabled target definition.
func (r *ConfigRepository) FindAllEnabled(ctx context.Context) ([]domain.MonitoredTarget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE enabled = true ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.MonitoredTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *t)
	}
	return targets, rows.Err()
}

// FindByID returns one target definition, domain.ErrNotFound if absent.
func (r *ConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.MonitoredTarget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

const ruleColumns = `id, target_id, name, type, condition, severity, enabled,
	cooldown_seconds, escalation_enabled, escalation_delay_seconds, channels`

// FindEnabledByTarget returns every enabled rule bound to a target.
func (r *ConfigRepository) FindEnabledByTarget(ctx context.Context, targetID uuid.UUID) ([]domain.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE enabled = true AND target_id = $1`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// FindRuleByID returns one rule, domain.ErrNotFound if absent.
func (r *ConfigRepository) FindRuleByID(ctx context.Context, id uuid.UUID) (*domain.AlertRule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(s scanner) (*domain.MonitoredTarget, error) {
	var (
		t               domain.MonitoredTarget
		configJSON      []byte
		intervalSeconds int64
		timeoutSeconds  int64
	)
	err := s.Scan(&t.ID, &t.Name, &t.Kind, &configJSON, &intervalSeconds, &timeoutSeconds, &t.RetryThreshold, &t.Enabled)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &t.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config for target %s: %w", t.ID, err)
		}
	}
	t.Interval = time.Duration(intervalSeconds) * time.Second
	t.Timeout = time.Duration(timeoutSeconds) * time.Second
	return &t, nil
}

func scanRule(s scanner) (*domain.AlertRule, error) {
	var (
		rule             domain.AlertRule
		conditionJSON    []byte
		channelsJSON     []byte
		cooldownSeconds  int64
		escalationDelayS int64
	)
	err := s.Scan(&rule.ID, &rule.TargetID, &rule.Name, &rule.Type, &conditionJSON, &rule.Severity,
		&rule.Enabled, &cooldownSeconds, &rule.EscalationEnabled, &escalationDelayS, &channelsJSON)
	if err != nil {
		return nil, err
	}
	if len(conditionJSON) > 0 {
		if err := json.Unmarshal(conditionJSON, &rule.Condition); err != nil {
			return nil, fmt.Errorf("failed to decode condition for rule %s: %w", rule.ID, err)
		}
	}
	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &rule.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels for rule %s: %w", rule.ID, err)
		}
	}
	rule.CooldownPeriod = time.Duration(cooldownSeconds) * time.Second
	rule.EscalationDelay = time.Duration(escalationDelayS) * time.Second
	return &rule, nil
}
