package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier is the default Notifier: it writes each alert to an
// slog.Logger at warn level instead of sending email/chat/webhook
// traffic. Real transport (SMTP, webhooks) is out of scope for this
// module; LogNotifier exists so the alert pipeline is exercised end to
// end by every deployment, with the operator's log aggregator as the
// actual delivery channel.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier. logger may be nil, in which
// case slog.Default() is used.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendDeviceStoppedAlert(ctx context.Context, alert Alert) error {
	n.log(string(AlertDeviceStopped), alert)
	return nil
}

func (n *LogNotifier) SendDeviceUnreachableAlert(ctx context.Context, alert Alert) error {
	n.log(string(AlertDeviceUnreachable), alert)
	return nil
}

func (n *LogNotifier) SendStorageWarningAlert(ctx context.Context, alert Alert) error {
	n.log(string(AlertStorageWarning), alert)
	return nil
}

func (n *LogNotifier) log(alertType string, alert Alert) {
	n.logger.Warn("notifier: alert",
		"alert_type", alertType,
		"device_id", alert.DeviceID,
		"device_name", alert.DeviceName,
		"run_id", alert.RunID,
		"reason", alert.Reason,
	)
}
