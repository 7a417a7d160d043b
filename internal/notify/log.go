package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records intents instead of delivering them. Default when no
// real transport is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, intent Intent) error {
	slog.Info("notification",
		"kind", intent.Kind, "to", intent.To, "subject", intent.Subject)
	return nil
}
