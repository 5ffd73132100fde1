package device

import "time"

// Config holds the tunables for a device's polling loop.
type Config struct {
	// RefreshPeriod is the normal poll cadence.
	RefreshPeriod time.Duration

	// BusyRefreshPeriod is the poll cadence while the device reports busy.
	BusyRefreshPeriod time.Duration

	// MaxConsecutiveErrors is the consecutive poll-error count (of any
	// kind) at which skip_scanning latches with reason "max_errors_reached".
	MaxConsecutiveErrors int

	// ConnectionRefusedThreshold is the consecutive connection-refused
	// count at which skip_scanning latches.
	ConnectionRefusedThreshold int

	// UserActionTimeout bounds how recent a user instruction must be
	// to be considered the cause of an observed transition.
	UserActionTimeout time.Duration

	// GracefulShutdownGrace bounds how recent a graceful operation
	// (poweroff/reboot/restart) must be to mark a transition as graceful.
	GracefulShutdownGrace time.Duration

	// BusyTimeout is how long a device may stay busy before being promoted
	// to offline with reason "busy_timeout".
	BusyTimeout time.Duration

	// UnreachableTimeout is how long a device may stay unreached before
	// being promoted to offline with reason "unreachable_timeout".
	UnreachableTimeout time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		RefreshPeriod:              5 * time.Second,
		BusyRefreshPeriod:          60 * time.Second,
		MaxConsecutiveErrors:       10,
		ConnectionRefusedThreshold: 3,
		UserActionTimeout:          30 * time.Second,
		GracefulShutdownGrace:      5 * time.Minute,
		BusyTimeout:                10 * time.Minute,
		UnreachableTimeout:         20 * time.Minute,
	}
}

// gracefulOperations are instructions that, if issued recently, mark a
// subsequent unreachability/disconnect as graceful rather than a crash.
var gracefulOperations = map[string]struct{}{
	"poweroff": {}, "reboot": {}, "restart": {},
}

// userTriggerInstructions are instructions whose recent issuance marks the
// resulting transition as user-triggered.
var userTriggerInstructions = map[string]struct{}{
	"stop": {}, "poweroff": {}, "reboot": {}, "restart": {},
}

func isGracefulInstruction(name string) bool {
	_, ok := gracefulOperations[name]
	return ok
}

func isUserTriggerInstruction(name string) bool {
	_, ok := userTriggerInstructions[name]
	return ok
}
