// Package device implements the per-device polling actor: one cooperative
// loop per device, each running its own independent clock under a private
// lock. There is no shared scheduler and no worker pool — per-device rate
// limiting (the busy-state backoff) is simplest when each device owns its
// own clock.
//
// Device is deliberately generic over how a poll is actually performed:
// callers supply a FetchFunc. Package ethoscope specialises Device with the
// concrete /id and /data/<id> HTTP exchange, instruction validation, and
// backup bookkeeping.
package device
