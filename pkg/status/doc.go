// Package status implements DeviceStatus, the immutable value object that
// tracks a device's disposition across polls.
//
// A DeviceStatus never mutates after construction. Each poll that observes a
// change builds a new DeviceStatus pointing back at its predecessor via
// Previous, forming a bounded chain used for interrupted-session detection
// and alert suppression.
package status
