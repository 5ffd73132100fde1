// Package eventlog provides structured domain-event logging for the fleet
// controller.
//
// This package defines the Logger interface and Event types for capturing
// poll outcomes, status transitions, alert dispatches, backup-progress
// recomputations, and stream subscriber churn. It is separate from
// operational logging (slog) - event capture provides a complete
// machine-readable trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by passing a Logger implementation to
// config.New:
//
//	// For development: log to console via slog
//	var logger eventlog.Logger = eventlog.NewSlogAdapter(slog.Default())
//
//	// For production: write to a binary file
//	fileLogger, err := eventlog.NewFileLogger("/var/log/ethoscope-node/events.elog")
//
//	// Both: use MultiLogger
//	logger = eventlog.NewMultiLogger(
//	    eventlog.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with integer-keyed fields for compactness.
package eventlog
