package status

import (
	"errors"
	"fmt"
	"time"
)

// Name is the closed set of status names a device can report.
type Name string

const (
	Online       Name = "online"
	Offline      Name = "offline"
	Running      Name = "running"
	Stopped      Name = "stopped"
	Unreached    Name = "unreached"
	Initialising Name = "initialising"
	Stopping     Name = "stopping"
	Recording    Name = "recording"
	Streaming    Name = "streaming"
	Busy         Name = "busy"
)

var validNames = map[Name]struct{}{
	Online: {}, Offline: {}, Running: {}, Stopped: {}, Unreached: {},
	Initialising: {}, Stopping: {}, Recording: {}, Streaming: {}, Busy: {},
}

// TriggerSource identifies who or what caused a transition.
type TriggerSource string

const (
	TriggerUser     TriggerSource = "user"
	TriggerSystem   TriggerSource = "system"
	TriggerNetwork  TriggerSource = "network"
	TriggerGraceful TriggerSource = "graceful"
)

var validTriggers = map[TriggerSource]struct{}{
	TriggerUser: {}, TriggerSystem: {}, TriggerNetwork: {}, TriggerGraceful: {},
}

// ErrInvalidStatusName is returned when a status name is outside the closed set.
var ErrInvalidStatusName = errors.New("invalid status name")

// ErrInvalidTriggerSource is returned when a trigger source is outside the closed set.
var ErrInvalidTriggerSource = errors.New("invalid trigger source")

// maxChainDepth bounds how many Previous links a read ever walks.
const maxChainDepth = 10

// intermediateStates are transient states that do not themselves end an
// active acquisition session.
var intermediateStates = map[Name]struct{}{
	Unreached: {}, Busy: {}, Initialising: {}, Stopping: {},
}

// activeSessionStates are the states an interrupted session must have passed
// through before going quiet.
var activeSessionStates = map[Name]struct{}{
	Running: {}, Recording: {},
}

// DeviceStatus is an immutable snapshot of a device's disposition.
// Previous is excluded from JSON serialisation: the chain is a runtime
// convenience for transition-pattern matching, not part of the persisted
// shape.
type DeviceStatus struct {
	StatusName            Name           `json:"status_name"`
	IsUserTriggered       bool           `json:"is_user_triggered"`
	TriggerSource         TriggerSource  `json:"trigger_source"`
	Timestamp             time.Time      `json:"timestamp"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	ConsecutiveErrors     int            `json:"consecutive_errors"`
	UnreachableStartTime  *time.Time     `json:"unreachable_start_time,omitempty"`
	IsInitialDiscovery    bool           `json:"is_initial_discovery"`
	Previous              *DeviceStatus  `json:"-"`
}

// Options configures the construction of a new DeviceStatus.
type Options struct {
	Name               Name
	IsUserTriggered    bool
	TriggerSource      TriggerSource
	Previous           *DeviceStatus
	Metadata           map[string]any
	ConsecutiveErrors  int
	IsInitialDiscovery bool
}

// New validates the closed sets and constructs an immutable DeviceStatus.
// UnreachableStartTime is derived automatically: it is inherited from
// Previous when both are Unreached, or set to now when this is the first
// Unreached observation, and is nil for every other status.
func New(opts Options) (*DeviceStatus, error) {
	if _, ok := validNames[opts.Name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatusName, opts.Name)
	}
	if opts.TriggerSource != "" {
		if _, ok := validTriggers[opts.TriggerSource]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTriggerSource, opts.TriggerSource)
		}
	}

	var unreachableStart *time.Time
	if opts.Name == Unreached {
		if opts.Previous != nil && opts.Previous.StatusName == Unreached && opts.Previous.UnreachableStartTime != nil {
			unreachableStart = opts.Previous.UnreachableStartTime
		} else {
			now := time.Now()
			unreachableStart = &now
		}
	}

	return &DeviceStatus{
		StatusName:           opts.Name,
		IsUserTriggered:       opts.IsUserTriggered,
		TriggerSource:         opts.TriggerSource,
		Timestamp:             time.Now(),
		Metadata:              opts.Metadata,
		ConsecutiveErrors:     opts.ConsecutiveErrors,
		UnreachableStartTime:  unreachableStart,
		IsInitialDiscovery:    opts.IsInitialDiscovery,
		Previous:              opts.Previous,
	}, nil
}

// ShouldSendAlert implements the should_send_alert predicate (spec §4.1).
func (s *DeviceStatus) ShouldSendAlert() bool {
	if s.IsUserTriggered || s.TriggerSource == TriggerGraceful || s.IsInitialDiscovery {
		return false
	}

	terminal := s.StatusName == Stopped || s.StatusName == Offline
	if !terminal {
		return false
	}

	if s.TriggerSource == TriggerSystem {
		return true
	}

	return s.IsInterruptedTrackingSession()
}

// IsInterruptedTrackingSession walks the Previous chain (bounded to
// maxChainDepth steps) looking for a prior active-session status reached
// only through intermediate states, ending at the receiver's own terminal
// status. Both an active session and at least one intermediate step must be
// present.
func (s *DeviceStatus) IsInterruptedTrackingSession() bool {
	if s.StatusName != Stopped && s.StatusName != Offline {
		return false
	}

	foundActive := false
	intermediateCount := 0

	cur := s.Previous
	for depth := 0; cur != nil && depth < maxChainDepth; depth, cur = depth+1, cur.Previous {
		if _, ok := activeSessionStates[cur.StatusName]; ok {
			foundActive = true
			break
		}
		if _, ok := intermediateStates[cur.StatusName]; ok {
			intermediateCount++
			continue
		}
		// any other status breaks the interrupted-session pattern
		break
	}

	return foundActive && intermediateCount > 0
}

// IsTimeoutExceeded reports whether more than minutes have elapsed since
// UnreachableStartTime. It is only meaningful when UnreachableStartTime is set.
func (s *DeviceStatus) IsTimeoutExceeded(minutes float64) bool {
	if s.UnreachableStartTime == nil {
		return false
	}
	elapsed := time.Since(*s.UnreachableStartTime)
	return elapsed.Minutes() > minutes
}
