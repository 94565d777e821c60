// Package skmv provides a sliding-window distinct-counting sketch.
//
// SKMV extends the classical k-minimum-values (KMV) cardinality estimator
// to time-based sliding windows. Arrival times are stored as compressed
// modular timestamps and stale bucket heads are handled lazily through a
// per-bucket lock zone, so the structure answers "how many distinct
// elements in the last N time units" in bounded memory without rescanning
// buckets on every arrival.
//
// Example usage:
//
//	sketch, err := skmv.NewSketch(skmv.Config{
//		WindowSize: 60_000,
//		K:          64,
//		M:          64,
//		Delta1:     32,
//		Delta2:     24,
//	})
//
//	sketch.Record(flowLabel, elementID, timestamp)
//	distinct := sketch.Estimate()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package skmv

const (
	// Version of the SKMV sketch library
	Version = "v0.1.0-dev"

	// DefaultWindowSize is the default sliding window length in stream time units
	DefaultWindowSize = 1_000_000

	// DefaultK is the default number of minimum-value slots per bucket
	DefaultK = 64

	// DefaultM is the default number of buckets
	DefaultM = 64

	// DefaultDelta1 is the default element hash width in bits
	DefaultDelta1 = 32

	// DefaultDelta2 is the default adjusted-timestamp width in bits
	DefaultDelta2 = 48
)
