package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the structured log. It never fails.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (l *LogNotifier) Deliver(ctx context.Context, alert Alert) error {
	event := l.logger.Info()
	if alert.Urgent {
		event = l.logger.Warn()
	}
	event.Str("key", alert.Key).
		Str("title", alert.Title).
		Str("body", alert.Body).
		Str("label", alert.Label).
		Str("priority", alert.Priority.String()).
		Str("target", alert.ActionTarget).
		Msg("alert")
	return nil
}

var _ Deliverer = (*LogNotifier)(nil)
