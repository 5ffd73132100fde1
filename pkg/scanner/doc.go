// Package scanner implements the mDNS-driven device directory: a browser
// watches for _ethoscope._tcp.local. advertisements and maintains the set
// of live polling actors (package ethoscope), one per discovered device.
//
// The scanner exclusively owns the device directory. It never removes a
// device on an mDNS "remove_service" event — the directory is append-mostly
// and latches skip_scanning instead, matching the registry's policy that
// going offline does not destroy a device record.
package scanner
