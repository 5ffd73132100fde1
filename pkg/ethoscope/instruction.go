package ethoscope

import (
	"fmt"

	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

// DeviceError is raised when an instruction is attempted from a status that
// does not permit it.
type DeviceError struct {
	Instruction string
	Current     status.Name
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("instruction %q is not allowed from status %q", e.Instruction, e.Current)
}

// allowedFrom is the static instruction → legal-origin-statuses table
// (spec §4.5). "offline" maps to the empty set: it is reserved and can
// never be user-sent.
var allowedFrom = map[string]map[status.Name]struct{}{
	"stream":        {status.Stopped: {}},
	"start":         {status.Stopped: {}},
	"start_record":  {status.Stopped: {}},
	"poweroff":      {status.Stopped: {}},
	"reboot":        {status.Stopped: {}},
	"restart":       {status.Stopped: {}},
	"dumpdb":        {status.Stopped: {}},
	"convertvideos": {status.Stopped: {}},
	"test_module":   {status.Stopped: {}},
	"stop": {
		status.Streaming: {}, status.Running: {}, status.Recording: {},
	},
	"offline": {},
}

// powerOperations are expected to close the device's connection as part of
// succeeding; the resulting transport error is swallowed by SendInstruction.
var powerOperations = map[string]struct{}{
	"poweroff": {}, "reboot": {}, "restart": {},
}

func isPowerOperation(instruction string) bool {
	_, ok := powerOperations[instruction]
	return ok
}

// ValidateInstruction checks instruction against the static allow-table for
// the given current status.
func ValidateInstruction(current status.Name, instruction string) error {
	origins, known := allowedFrom[instruction]
	if !known {
		return &DeviceError{Instruction: instruction, Current: current}
	}
	if _, ok := origins[current]; !ok {
		return &DeviceError{Instruction: instruction, Current: current}
	}
	return nil
}
