// Package notifier holds notification-channel implementations. Actual
// delivery transports (email, SMS, webhooks) live outside the core; the
// default implementation records deliveries in the structured log.
package notifier

import (
	"context"
	"log/slog"

	"github.com/user/healthwatch/internal/domain"
)

// SlogNotifier implements domain.Notifier by logging the rendered message.
type SlogNotifier struct {
	logger *slog.Logger
}

// NewSlogNotifier creates a log-backed notifier.
func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	return &SlogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs the notification with its routing metadata.
func (n *SlogNotifier) Notify(ctx context.Context, rule *domain.AlertRule, instance *domain.AlertInstance, message string) error {
	n.logger.Info("alert notification",
		"rule", rule.Name,
		"severity", rule.Severity,
		"status", instance.Status,
		"escalation_level", instance.EscalationLevel,
		"channels", rule.Channels,
		"message", message,
	)
	return nil
}

var _ domain.Notifier = (*SlogNotifier)(nil)
