package notification

import (
	"context"
	"log/slog"
	"time"
)

// Template identifiers for the notifications the financial core emits.
const (
	TemplateJobAwarded        = "job_awarded"
	TemplateJobCompleted      = "job_completed"
	TemplateJobCancelled      = "job_cancelled"
	TemplateReferralCompleted = "referral_completed"
	TemplateReferralClaimed   = "referral_reward_claimed"
	TemplateRewardGranted     = "reward_granted"
)

// Notifier delivers user notifications. The core never awaits the outcome.
type Notifier interface {
	Notify(ctx context.Context, userID, templateID string, data map[string]any) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify writes the notification to the structured logger.
func (n *LoggerNotifier) Notify(_ context.Context, userID, templateID string, data map[string]any) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "user_id", userID, "template", templateID, "data", data)
	return nil
}

// Dispatch sends a notification in the background. It runs after a successful
// mutation and must never block or roll it back; failures are logged and
// discarded.
func Dispatch(n Notifier, logger *slog.Logger, userID, templateID string, data map[string]any) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Notify(ctx, userID, templateID, data); err != nil && logger != nil {
			logger.Warn("notification failed", "user_id", userID, "template", templateID, "error", err)
		}
	}()
}
