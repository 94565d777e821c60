// at.go: adjusted-timestamp encoding for sliding-window expiry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

// adjustedTimestamp stores an arrival time reduced modulo the timestamp
// range (twice the window length). The range value itself is reserved as
// the "unset" sentinel, so any valid encoding lives in [0, tsRange).
//
// The encoding stays unambiguous only while the real age of the stored
// time is below tsRange. Entries older than that alias back into the
// window, which is why cleaning must run at least once per window length.
type adjustedTimestamp struct {
	v uint64
}

// record stores t reduced into [0, tsRange).
func (a *adjustedTimestamp) record(t, tsRange uint64) {
	a.v = t % tsRange
}

// inWindow reports whether the stored time is within window units of now.
// An unset timestamp is never in window. A zero-age timestamp is.
func (a *adjustedTimestamp) inWindow(now, window, tsRange uint64) bool {
	if a.v == tsRange {
		return false
	}
	diff := (now%tsRange + tsRange - a.v) % tsRange
	return diff < window
}

// clean resets the timestamp to the sentinel if it has aged out of the
// window. Returns true if the value was reset.
func (a *adjustedTimestamp) clean(now, window, tsRange uint64) bool {
	if a.v == tsRange {
		return false
	}
	diff := (now%tsRange + tsRange - a.v) % tsRange
	if diff >= window {
		a.v = tsRange
		return true
	}
	return false
}

// unset forces the timestamp back to the sentinel.
func (a *adjustedTimestamp) unset(tsRange uint64) {
	a.v = tsRange
}

// isSet reports whether the timestamp holds a recorded value.
func (a *adjustedTimestamp) isSet(tsRange uint64) bool {
	return a.v != tsRange
}
