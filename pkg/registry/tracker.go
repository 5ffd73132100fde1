package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

// StatusTracker keeps the persistent store in sync with a device's
// committed transitions (spec §3): every transition refreshes
// ethoscopes.last_status, and the initialising->running /
// running->stopped edges create and stop a runs row.
type StatusTracker struct {
	store  *Store
	logger *slog.Logger
}

// NewStatusTracker constructs a StatusTracker. Install its OnTransition
// method via Device.SetTransitionHook (commonly composed with a
// notifier Dispatcher's own hook) so every committed transition reaches
// it.
func NewStatusTracker(store *Store) *StatusTracker {
	return &StatusTracker{store: store, logger: slog.Default()}
}

// OnTransition is a device.TransitionHook.
func (t *StatusTracker) OnTransition(dev *device.Device, newStatus *status.DeviceStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := dev.ID()

	if err := t.store.UpdateStatus(ctx, id, string(newStatus.StatusName)); err != nil {
		t.logger.Warn("registry: update status failed", "device_id", id, "err", err)
	}

	var oldName status.Name
	if newStatus.Previous != nil {
		oldName = newStatus.Previous.StatusName
	}

	switch {
	case oldName == status.Initialising && newStatus.StatusName == status.Running:
		if _, err := t.store.AddRun(ctx, id, ""); err != nil {
			t.logger.Warn("registry: add run failed", "device_id", id, "err", err)
		}
	case oldName == status.Running && newStatus.StatusName == status.Stopped:
		t.stopOldestActiveRun(ctx, id)
	}
}

func (t *StatusTracker) stopOldestActiveRun(ctx context.Context, deviceID string) {
	runs, err := t.store.ActiveRunsFor(ctx, deviceID)
	if err != nil {
		t.logger.Warn("registry: active runs lookup failed", "device_id", deviceID, "err", err)
		return
	}
	if len(runs) == 0 {
		return
	}
	if err := t.store.StopRun(ctx, runs[0].RunID); err != nil {
		t.logger.Warn("registry: stop run failed", "device_id", deviceID, "run_id", runs[0].RunID, "err", err)
	}
}
