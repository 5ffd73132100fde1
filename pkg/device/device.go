package device

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

// FetchResult is what a FetchFunc reports for one successful poll.
type FetchResult struct {
	StatusName status.Name
	Info       map[string]any
}

// FetchFunc performs one poll against the device and reports its outcome.
// A non-nil error wrapping *BusyError is reported as the "busy" status; any
// other error is reported as "unreached".
type FetchFunc func(ctx context.Context) (FetchResult, error)

// TransitionHook is invoked after every committed status transition, while
// the device's lock is not held. The scanner installs one on every device it
// instantiates (alert dispatch and registry status tracking).
type TransitionHook func(d *Device, newStatus *status.DeviceStatus)

// Device is the per-device polling actor: one independent loop, one
// private lock, no shared scheduler.
type Device struct {
	mu sync.Mutex

	id   string
	name string
	ip   string
	port int

	cfg    Config
	fetch  FetchFunc
	logger eventlog.Logger
	onTransition TransitionHook

	status *status.DeviceStatus
	info   map[string]any

	pollCount              uint64
	lastSuccessfulContact  time.Time
	consecutiveErrors      int
	consecutiveConnRefused int
	skipScanning           bool

	lastUserInstruction string
	lastUserActionAt    time.Time
}

// New constructs a Device. fetch performs the actual network exchange;
// logger may be eventlog.NoopLogger{}.
func New(id, name, ip string, port int, fetch FetchFunc, cfg Config, logger eventlog.Logger) *Device {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	return &Device{
		id:     id,
		name:   name,
		ip:     ip,
		port:   port,
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
		info:   map[string]any{"status": "offline"},
	}
}

// ID returns the device's stable identifier.
func (d *Device) ID() string { return d.id }

// SetTransitionHook installs the callback invoked after each committed
// transition. Must be called before Run starts.
func (d *Device) SetTransitionHook(hook TransitionHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTransition = hook
}

// Snapshot returns a copy of the device's current info dict and status.
// External readers must use this rather than touching internal state.
func (d *Device) Snapshot() (map[string]any, *status.DeviceStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := make(map[string]any, len(d.info))
	for k, v := range d.info {
		info[k] = v
	}
	return info, d.status
}

// Address returns the device's current IP and port.
func (d *Device) Address() (string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ip, d.port
}

// UpdateAddress refreshes the IP/port used by the next poll, e.g. after an
// mDNS re-advertisement.
func (d *Device) UpdateAddress(ip string, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ip = ip
	d.port = port
}

// SkipScanning reports whether the loop is currently latched off.
func (d *Device) SkipScanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.skipScanning
}

// ResetErrorState clears skip_scanning and error counters. Called by the
// scanner when mDNS re-advertises a device already in the directory.
func (d *Device) ResetErrorState() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skipScanning = false
	d.consecutiveErrors = 0
	d.consecutiveConnRefused = 0
}

// MarkRemoved latches skip_scanning and drives the device to offline.
// Called by the scanner when mDNS stops advertising a device: the
// directory entry is kept (for its history/config) but the poll loop
// stops making outbound requests until the device is re-advertised.
func (d *Device) MarkRemoved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skipScanning = true
	d.info = map[string]any{"status": "offline"}
	if d.status == nil || d.status.StatusName != status.Offline {
		d.transitionLocked(status.Offline, false, status.TriggerSystem, "removed")
	}
}

// RecordUserInstruction records that instruction was just issued, for use
// by the next status classification.
func (d *Device) RecordUserInstruction(instruction string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastUserInstruction = instruction
	d.lastUserActionAt = time.Now()
}

// Run drives the polling loop until ctx is cancelled.
func (d *Device) Run(ctx context.Context) {
	for {
		wait := d.nextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if d.SkipScanning() {
			d.resetInfoOffline()
			continue
		}

		d.pollOnce(ctx)
	}
}

func (d *Device) nextInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != nil && d.status.StatusName == status.Busy {
		return d.cfg.BusyRefreshPeriod
	}
	return d.cfg.RefreshPeriod
}

func (d *Device) resetInfoOffline() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = map[string]any{"status": "offline"}
}

func (d *Device) pollOnce(ctx context.Context) {
	result, err := d.fetch(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pollCount++

	if err != nil {
		d.handleDeviceErrorLocked(err)
		return
	}

	d.consecutiveErrors = 0
	d.consecutiveConnRefused = 0
	d.lastSuccessfulContact = time.Now()
	d.info = result.Info
	d.classifyAndTransitionLocked(result.StatusName)
}

// handleDeviceErrorLocked implements handle_device_error: increments
// consecutive_errors, resets info to an offline stub, and classifies the
// error into connection-refused vs other.
func (d *Device) handleDeviceErrorLocked(err error) {
	d.consecutiveErrors++
	d.info = map[string]any{"status": "offline"}

	var busyErr *BusyError
	nextName := status.Unreached
	if errors.As(err, &busyErr) {
		nextName = status.Busy
	}

	if nextName == status.Unreached && isConnectionRefused(err) {
		d.consecutiveConnRefused++
		if d.consecutiveConnRefused >= d.cfg.ConnectionRefusedThreshold {
			triggerSource := status.TriggerSystem
			if d.isGracefulLocked() {
				triggerSource = status.TriggerGraceful
			}
			d.transitionLocked(status.Offline, false, triggerSource, "connection_refused")
			d.skipScanning = true
			return
		}
	} else {
		d.consecutiveConnRefused = 0
		d.logErrorLocked(err)
	}

	d.transitionLocked(nextName, false, status.TriggerNetwork, "poll_failed")

	switch d.status.StatusName {
	case status.Busy:
		if d.status.IsTimeoutExceeded(d.cfg.BusyTimeout.Minutes()) {
			d.transitionLocked(status.Offline, false, status.TriggerSystem, "busy_timeout")
		}
	case status.Unreached:
		if d.status.IsTimeoutExceeded(d.cfg.UnreachableTimeout.Minutes()) {
			d.transitionLocked(status.Offline, false, status.TriggerSystem, "unreachable_timeout")
		}
	}

	if !d.skipScanning && d.consecutiveErrors >= d.cfg.MaxConsecutiveErrors {
		d.skipScanning = true
		d.logger.Log(eventlog.Event{
			Timestamp: time.Now(),
			DeviceID:  d.id,
			Category:  eventlog.CategoryError,
			Error:      &eventlog.ErrorEventData{Message: "max_errors_reached"},
		})
	}
}

func (d *Device) isGracefulLocked() bool {
	return isGracefulInstruction(d.lastUserInstruction) &&
		time.Since(d.lastUserActionAt) <= d.cfg.GracefulShutdownGrace
}

// classifyAndTransitionLocked implements status classification on a
// successful poll (spec §4.4): user-provenance inference, the
// offline-to-active special case, and graceful-trigger detection.
func (d *Device) classifyAndTransitionLocked(nextName status.Name) {
	if d.status != nil && d.status.StatusName == nextName {
		return
	}

	isUserTriggered := time.Since(d.lastUserActionAt) <= d.cfg.UserActionTimeout &&
		isUserTriggerInstruction(d.lastUserInstruction)

	if d.status != nil && d.status.StatusName == status.Offline &&
		(nextName == status.Running || nextName == status.Recording || nextName == status.Streaming) {
		isUserTriggered = true
	}

	triggerSource := status.TriggerSystem
	if isUserTriggered {
		triggerSource = status.TriggerUser
	}
	if d.isGracefulLocked() {
		triggerSource = status.TriggerGraceful
	}

	d.transitionLocked(nextName, isUserTriggered, triggerSource, "")
}

func (d *Device) transitionLocked(name status.Name, isUserTriggered bool, triggerSource status.TriggerSource, reason string) {
	metadata := map[string]any{}
	var oldName status.Name
	if d.status != nil {
		oldName = d.status.StatusName
		metadata["previous_status"] = string(oldName)
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	next, err := status.New(status.Options{
		Name:               name,
		IsUserTriggered:    isUserTriggered,
		TriggerSource:      triggerSource,
		Previous:           d.status,
		Metadata:           metadata,
		ConsecutiveErrors:  d.consecutiveErrors,
		IsInitialDiscovery: d.pollCount <= 1,
	})
	if err != nil {
		slog.Error("invalid status transition", "device", d.id, "status", name, "err", err)
		return
	}

	d.status = next

	d.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		DeviceID:  d.id,
		Category:  eventlog.CategoryTransition,
		Transition: &eventlog.TransitionEvent{
			OldStatus:     string(oldName),
			NewStatus:     string(name),
			TriggerSource: string(triggerSource),
			Reason:        reason,
		},
	})

	if d.onTransition != nil {
		hook := d.onTransition
		snapshot := next
		go hook(d, snapshot)
	}
}

// logErrorLocked logs a non-connection-refused poll failure with
// decreasing verbosity, to avoid log flooding on a persistently broken
// device: the first error is info, the fifth is warning, the rest debug.
func (d *Device) logErrorLocked(err error) {
	switch d.consecutiveErrors {
	case 1:
		slog.Info("device poll failed", "device", d.id, "err", err)
	case 5:
		slog.Warn("device poll failing repeatedly", "device", d.id, "count", d.consecutiveErrors, "err", err)
	default:
		slog.Debug("device poll failed", "device", d.id, "count", d.consecutiveErrors, "err", err)
	}
}

func isConnectionRefused(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}
