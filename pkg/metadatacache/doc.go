// Package metadatacache persists one JSON document per experiment,
// capturing the device's database metadata at the moment the experiment
// was last observed. Store saves, loads, finalises, clears and lists these
// files; no other package in this module reads them, so the
// backup-percentage computation in pkg/ethoscope works only from live
// device responses and has no fallback when a device cannot be reached.
package metadatacache
