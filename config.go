// config.go: configuration for the SKMV sketch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

import (
	"github.com/agilira/go-timecache"
)

// Config holds construction parameters for a Sketch.
//
// The core parameters (WindowSize, K, M, Delta1, Delta2) shape the
// structure and are immutable once the sketch exists; invalid values fail
// construction. The remaining fields are ambient collaborators and
// normalize to safe defaults.
type Config struct {
	// WindowSize is the sliding window length N in stream time units.
	// Must be > 0 and at most (2^Delta2 - 1) / 2, since the adjusted
	// timestamp needs 2N distinct values plus a sentinel.
	WindowSize uint64

	// K is the number of minimum-value slots per bucket. Must be >= 1.
	// Larger K lowers estimator variance at K slots of memory per
	// bucket. Default: DefaultK.
	K int

	// M is the number of buckets. Must be >= 1. Flows hash across
	// buckets; the relative error of the aggregate estimate scales as
	// roughly 1.04 / sqrt(M*K). Default: DefaultM.
	M int

	// Delta1 is the element hash width in bits, 1 to 64. The hash
	// range 2^Delta1 - 1 bounds stored hashes and doubles as the
	// empty-slot sentinel. Default: DefaultDelta1.
	Delta1 int

	// Delta2 is the adjusted-timestamp width in bits, 1 to 63.
	// Default: DefaultDelta2.
	Delta2 int

	// CleanEvery triggers a cleaning sweep from the ingestion path
	// once this much stream time has passed since the last sweep.
	// Must not exceed WindowSize. 0 leaves cleaning to the caller,
	// who must then invoke PeriodicClean at least once per window
	// length of stream progress.
	CleanEvery uint64

	// FlowSeed seeds the flow-label hash. 0 selects the built-in
	// seed. Runs with equal seeds and equal input are bit-identical.
	FlowSeed uint64

	// ElementSeed seeds the element hash. 0 selects the built-in seed.
	ElementSeed uint64

	// Logger is used for construction, cleaning and reload events.
	// If nil, NoOpLogger is used.
	Logger Logger

	// TimeProvider supplies wall-clock time for operation latency
	// metrics. Stream time always comes from record timestamps.
	// If nil, a cached system clock is used.
	TimeProvider TimeProvider

	// MetricsCollector receives operation metrics (latencies, lock
	// transitions, expirations). If nil, NoOpMetricsCollector is used
	// (zero overhead).
	MetricsCollector MetricsCollector
}

// Validate checks core parameters and normalizes ambient fields.
//
// Unlike a defaults-only normalization, core parameter violations return
// a configuration error: a sketch built on a truncated window or an
// aliasing timestamp range would be silently wrong, not merely
// suboptimal. NewSketch calls Validate automatically.
func (c *Config) Validate() error {
	if c.K == 0 {
		c.K = DefaultK
	}
	if c.M == 0 {
		c.M = DefaultM
	}
	if c.Delta1 == 0 {
		c.Delta1 = DefaultDelta1
	}
	if c.Delta2 == 0 {
		c.Delta2 = DefaultDelta2
	}

	if c.WindowSize == 0 {
		return NewErrInvalidWindowSize(c.WindowSize)
	}
	if c.K < 1 {
		return NewErrInvalidK(c.K)
	}
	if c.M < 1 {
		return NewErrInvalidM(c.M)
	}
	if c.Delta1 < 1 || c.Delta1 > 64 {
		return NewErrInvalidDelta1(c.Delta1)
	}
	if c.Delta2 < 1 || c.Delta2 > 63 {
		return NewErrInvalidDelta2(c.Delta2)
	}
	if maxWindow := ((uint64(1) << uint(c.Delta2)) - 1) / 2; c.WindowSize > maxWindow {
		return NewErrWindowTooLarge(c.WindowSize, c.Delta2)
	}
	if c.CleanEvery > c.WindowSize {
		return NewErrInvalidCleanEvery(c.CleanEvery, c.WindowSize)
	}

	if c.FlowSeed == 0 {
		c.FlowSeed = defaultFlowSeed
	}
	if c.ElementSeed == 0 {
		c.ElementSeed = defaultElementSeed
	}
	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}
	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults: a
// half-window ingestion-path cleaning interval and the built-in seeds.
func DefaultConfig() Config {
	return Config{
		WindowSize:       DefaultWindowSize,
		K:                DefaultK,
		M:                DefaultM,
		Delta1:           DefaultDelta1,
		Delta2:           DefaultDelta2,
		CleanEvery:       DefaultWindowSize / 2,
		Logger:           NoOpLogger{},
		TimeProvider:     &systemTimeProvider{},
		MetricsCollector: NoOpMetricsCollector{},
	}
}

// systemTimeProvider is the default time provider using go-timecache.
// Latency measurement sits on the record path, so it uses the cached
// clock rather than time.Now().
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
