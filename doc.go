// doc.go: package documentation for SKMV
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package skmv implements a sliding-window distinct-counting sketch.
//
// SKMV answers "how many distinct elements were observed in the last N
// time units", per flow group and aggregated, using bounded memory and a
// single pass over the stream. It extends the classical k-minimum-values
// (KMV) estimator to sliding windows with two mechanisms:
//
//   - Adjusted timestamps: arrival times are stored modulo twice the
//     window length, so each slot needs only delta2 bits of time state
//     instead of a full timestamp.
//   - A per-bucket lock zone: when a bucket's head (the largest of its k
//     minimum hashes) ages out of the window, the bucket defers the
//     rescan and instead tracks a shrinking upper bound on replacement
//     candidates until a true k-minimum arrives or the lock times out.
//
// # Quick Start
//
//	sketch, err := skmv.NewSketch(skmv.Config{
//		WindowSize: 60_000, // N, in stream time units
//		K:          64,     // slots per bucket
//		M:          64,     // buckets
//		Delta1:     32,     // hash bits
//		Delta2:     24,     // timestamp bits
//		CleanEvery: 30_000, // sweep from the ingestion path
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, r := range arrivals {
//		sketch.Record(r.FlowLabel, r.ElementID, r.Timestamp)
//	}
//	fmt.Printf("distinct in window: %.0f\n", sketch.Estimate())
//
// # Accuracy
//
// Hashes are uniform over [0, 2^Delta1 - 1), so a bucket holding the k
// smallest hashes of D distinct in-window elements estimates D as
// k * hashRange / max-of-k-minimums. The aggregate is the harmonic mean
// across non-empty buckets; its relative error is approximately
// 1.04 / sqrt(M*K) with high probability. M=64, K=64 gives about 1.6%.
//
// # Caller Contracts
//
// The sketch is deliberately single-threaded: Record, PeriodicClean and
// Estimate all mutate shared state without locking, and concurrent use
// is undefined behaviour. Wrap the sketch in your own synchronization if
// multiple goroutines must feed it.
//
// Timestamps must be non-decreasing. Out-of-order arrivals silently
// corrupt the modular time encoding; ordering is not checked at runtime.
//
// Cleaning must run at least once per window length of stream progress
// (half a window is recommended). A slot that goes unswept for more than
// twice the window aliases back into the window and silently inflates
// estimates. Set Config.CleanEvery to let Record schedule sweeps, or
// call PeriodicClean yourself.
//
// # Memory
//
// All state is allocated at construction; the record path performs no
// allocation. The logical budget is
//
//	M * (K*(Delta1+Delta2) + 1 + Delta2 + Delta1 + log2(K)) bits
//
// as reported by MemoryBudgetBits.
//
// # Determinism
//
// Both hash functions are seeded with fixed constants (overridable via
// Config). Two sketches with equal parameters fed equal streams produce
// bit-identical state and identical estimates, across runs and
// platforms.
//
// # Observability
//
// Stats returns operation counters; Bucket returns read-only bucket
// snapshots for tests and debugging. A MetricsCollector can be injected
// for latency histograms and lock-transition counters; see the otel
// subpackage for an OpenTelemetry-backed implementation.
//
// # Trace Replay
//
// ReadTrace and Replay consume the whitespace-separated text format
// "<flow_label> <element_id> <timestamp>", one record per line, with
// '#' comments and blank lines skipped.
package skmv
