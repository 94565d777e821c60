// interfaces.go: public collaborator interfaces for SKMV
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

// Logger defines a minimal logging interface with zero overhead.
// Implementations should use structured logging and be allocation-free.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keyvals ...interface{})

	// Info logs an info message with optional key-value pairs.
	Info(msg string, keyvals ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keyvals ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing. Used as default to avoid nil checks.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, keyvals ...interface{}) {}
func (NoOpLogger) Info(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Warn(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Error(msg string, keyvals ...interface{}) {}

// TimeProvider provides current wall-clock time for latency measurement.
// This interface allows injecting optimized time implementations.
type TimeProvider interface {
	// Now returns the current time in nanoseconds since epoch.
	// This method must be very fast and allocation-free.
	Now() int64
}

// MetricsCollector receives operation metrics from a Sketch.
// Implementations must be fast and non-blocking; they are called on the
// record path. Use this to integrate with Prometheus, DataDog, StatsD or
// other monitoring systems.
type MetricsCollector interface {
	// RecordUpdate records one Record call. accepted is true when the
	// arrival was stored or refreshed an existing slot.
	RecordUpdate(latencyNs int64, accepted bool)

	// RecordClean records one full cleaning sweep and the number of
	// slots it emptied.
	RecordClean(latencyNs int64, expired int)

	// RecordEstimate records one Estimate call.
	RecordEstimate(latencyNs int64)

	// RecordLockActivation is called when a bucket enters the lock zone.
	RecordLockActivation()

	// RecordLockResolution is called when a lock resolves (a new
	// k-minimum displaced the stale head, or the head revalidated).
	// Lock timeouts are not resolutions.
	RecordLockResolution()
}

// NoOpMetricsCollector is a collector that does nothing. Used as default
// to avoid nil checks.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordUpdate(latencyNs int64, accepted bool) {}
func (NoOpMetricsCollector) RecordClean(latencyNs int64, expired int)    {}
func (NoOpMetricsCollector) RecordEstimate(latencyNs int64)              {}
func (NoOpMetricsCollector) RecordLockActivation()                       {}
func (NoOpMetricsCollector) RecordLockResolution()                       {}

// SketchStats provides counters of sketch activity since construction.
type SketchStats struct {
	// Records is the number of Record calls.
	Records uint64

	// Duplicates is the number of arrivals that refreshed an existing slot.
	Duplicates uint64

	// Inserts is the number of arrivals stored into a slot.
	Inserts uint64

	// Rejections is the number of arrivals not stored in a slot. It
	// includes the arrivals counted in Absorbed.
	Rejections uint64

	// Absorbed is the number of arrivals that only tightened a bucket's
	// lock-zone bound.
	Absorbed uint64

	// Expirations is the number of slots emptied by cleaning.
	Expirations uint64

	// Cleans is the number of full cleaning sweeps.
	Cleans uint64

	// Estimates is the number of Estimate calls.
	Estimates uint64

	// LockActivations counts buckets entering the lock zone.
	LockActivations uint64

	// LockResolutions counts locks resolved by a new k-minimum or a
	// revalidated head.
	LockResolutions uint64

	// LockTimeouts counts locks cleared by their time bound.
	LockTimeouts uint64
}

// AcceptRatio returns the fraction of Record calls that stored an
// element or refreshed an existing slot, as a percentage (0-100).
func (s SketchStats) AcceptRatio() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.Inserts+s.Duplicates) / float64(s.Records) * 100
}
