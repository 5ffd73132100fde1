package notifier

import "context"

// AlertType identifies the kind of alert for dedup purposes. The string
// values are also what gets written to the alert_logs table.
type AlertType string

const (
	AlertDeviceStopped     AlertType = "device_stopped"
	AlertDeviceUnreachable AlertType = "device_unreachable"
	AlertStorageWarning    AlertType = "storage_warning"
)

// Alert is the structured record passed to a Notifier.
type Alert struct {
	DeviceID   string
	DeviceName string
	RunID      *int64
	Reason     string
}

// Notifier is the alert-dispatch collaborator. Implementations own
// transport (SMTP, chat webhooks, etc); this package only decides when
// to call them.
type Notifier interface {
	SendDeviceStoppedAlert(ctx context.Context, alert Alert) error
	SendDeviceUnreachableAlert(ctx context.Context, alert Alert) error
	SendStorageWarningAlert(ctx context.Context, alert Alert) error
}

// Dedup is the subset of pkg/registry.Store the Dispatcher needs for
// the (device, alert-type, run) dedup gate.
type Dedup interface {
	HasAlertBeenSent(ctx context.Context, deviceID, alertType string, runID *int64) (bool, error)
	LogAlert(ctx context.Context, deviceID, alertType string, runID *int64) error
}
