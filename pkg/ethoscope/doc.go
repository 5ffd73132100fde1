// Package ethoscope specialises a pkg/device.Device with the concrete
// /id + /data/<id> HTTP exchange, instruction validation against a static
// allow-table, and backup-progress computation across the two database
// dialects the fleet reports metadata in.
package ethoscope
