package eventlog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes domain events to an slog.Logger.
// Useful for development when you want to see events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.Message != "" {
		attrs = append(attrs, slog.String("message", event.Message))
	}

	switch {
	case event.Poll != nil:
		attrs = append(attrs,
			slog.Bool("success", event.Poll.Success),
			slog.Int("consecutive_errors", event.Poll.ConsecutiveErrors),
			slog.String("status", event.Poll.StatusName),
		)
	case event.Transition != nil:
		attrs = append(attrs,
			slog.String("old_status", event.Transition.OldStatus),
			slog.String("new_status", event.Transition.NewStatus),
			slog.String("trigger_source", event.Transition.TriggerSource),
		)
		if event.Transition.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Transition.Reason))
		}
	case event.Alert != nil:
		attrs = append(attrs,
			slog.String("alert_type", event.Alert.AlertType),
			slog.String("run_id", event.Alert.RunID),
			slog.Bool("sent", event.Alert.Sent),
		)
	case event.Backup != nil:
		attrs = append(attrs,
			slog.String("method", event.Backup.Method),
			slog.Float64("percentage", event.Backup.Percentage),
		)
	case event.Subscriber != nil:
		attrs = append(attrs,
			slog.String("subscriber_id", event.Subscriber.SubscriberID),
			slog.Bool("joined", event.Subscriber.Joined),
			slog.Int("active_count", event.Subscriber.ActiveCount),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
