package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

// RunLookup resolves the currently active run for a device, if any, so
// alerts can be deduplicated per (device, type, run) rather than just
// per device. Returning nil is fine — dedup then falls back to
// per-device scope.
type RunLookup func(ctx context.Context, deviceID string) *int64

// Dispatcher wires a device's committed status transitions to the
// Notifier collaborator, gated by DeviceStatus.ShouldSendAlert and the
// registry's hasAlertBeenSent dedup.
type Dispatcher struct {
	dedup     Dedup
	notify    Notifier
	runLookup RunLookup
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher. runLookup may be nil.
func NewDispatcher(dedup Dedup, notify Notifier, runLookup RunLookup) *Dispatcher {
	if runLookup == nil {
		runLookup = func(context.Context, string) *int64 { return nil }
	}
	return &Dispatcher{
		dedup:     dedup,
		notify:    notify,
		runLookup: runLookup,
		logger:    slog.Default(),
	}
}

// OnTransition is a device.TransitionHook: install it via
// Device.SetTransitionHook so every committed transition is considered
// for an alert.
func (d *Dispatcher) OnTransition(dev *device.Device, newStatus *status.DeviceStatus) {
	if !newStatus.ShouldSendAlert() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alertType := d.classify(newStatus)
	deviceID := dev.ID()
	runID := d.runLookup(ctx, deviceID)

	sent, err := d.dedup.HasAlertBeenSent(ctx, deviceID, string(alertType), runID)
	if err != nil {
		d.logger.Warn("notifier: dedup lookup failed", "device_id", deviceID, "err", err)
		return
	}
	if sent {
		return
	}

	info, _ := dev.Snapshot()
	deviceName, _ := info["name"].(string)

	alert := Alert{DeviceID: deviceID, DeviceName: deviceName, RunID: runID, Reason: string(newStatus.StatusName)}

	if err := d.send(ctx, alertType, alert); err != nil {
		d.logger.Warn("notifier: send failed", "device_id", deviceID, "alert_type", alertType, "err", err)
		return
	}

	if err := d.dedup.LogAlert(ctx, deviceID, string(alertType), runID); err != nil {
		d.logger.Warn("notifier: dedup log failed", "device_id", deviceID, "err", err)
	}
}

// classify picks device_stopped vs device_unreachable. An interrupted
// tracking session (a crash mid-run) is always a device_stopped alert,
// even when the final status name is offline; a plain unreachable
// promotion with no prior active session is device_unreachable.
func (d *Dispatcher) classify(newStatus *status.DeviceStatus) AlertType {
	if newStatus.IsInterruptedTrackingSession() {
		return AlertDeviceStopped
	}
	if newStatus.StatusName == status.Stopped {
		return AlertDeviceStopped
	}
	return AlertDeviceUnreachable
}

func (d *Dispatcher) send(ctx context.Context, alertType AlertType, alert Alert) error {
	switch alertType {
	case AlertDeviceStopped:
		return d.notify.SendDeviceStoppedAlert(ctx, alert)
	default:
		return d.notify.SendDeviceUnreachableAlert(ctx, alert)
	}
}

// MaybeSendStorageWarning sends a storage_warning alert, gated by the
// same per-(device,type,run) dedup as transition-driven alerts. Unlike
// transition alerts, callers decide the threshold that warrants a
// warning (e.g. backup growth has stalled, or local disk usage is high).
func (d *Dispatcher) MaybeSendStorageWarning(ctx context.Context, deviceID, deviceName, reason string) error {
	runID := d.runLookup(ctx, deviceID)

	sent, err := d.dedup.HasAlertBeenSent(ctx, deviceID, string(AlertStorageWarning), runID)
	if err != nil {
		return err
	}
	if sent {
		return nil
	}

	alert := Alert{DeviceID: deviceID, DeviceName: deviceName, RunID: runID, Reason: reason}
	if err := d.notify.SendStorageWarningAlert(ctx, alert); err != nil {
		return err
	}
	return d.dedup.LogAlert(ctx, deviceID, string(AlertStorageWarning), runID)
}
