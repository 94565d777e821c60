// bucket.go: bucket and entry state for the sliding KMV sketch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

// entry is a single k-minimum slot: an element hash plus its adjusted
// arrival time. A slot is empty iff its hash equals the hash range
// sentinel or its timestamp is unset; both conditions are kept in sync
// after every mutation.
type entry struct {
	h  uint64
	at adjustedTimestamp
}

// isEmpty reports whether the slot holds no element.
func (e *entry) isEmpty(hashRange, tsRange uint64) bool {
	return e.h == hashRange || e.at.v == tsRange
}

// reset returns the slot to the empty state.
func (e *entry) reset(hashRange, tsRange uint64) {
	e.h = hashRange
	e.at.unset(tsRange)
}

// bucket holds k minimum-value slots plus the lock-zone state used to
// defer head reconstruction when the current head has expired.
//
// head indexes the slot holding the largest in-window hash. While locked,
// lockMaxV is a non-increasing upper bound on hashes seen in the zone
// between the stale head and the hash range, and lockTime bounds how long
// the lock may stay active.
type bucket struct {
	entries  []entry
	lockTime adjustedTimestamp
	lockMaxV uint64
	head     int
	lock     bool
}

// EntrySnapshot is a read-only copy of one bucket slot.
type EntrySnapshot struct {
	// Hash is the stored element hash; equals the sketch's HashRange
	// for an empty slot.
	Hash uint64

	// Timestamp is the adjusted arrival time; equals the sketch's
	// TimestampRange for an empty slot.
	Timestamp uint64

	// Empty reports whether the slot holds no element.
	Empty bool

	// InWindow reports whether the slot was in window at snapshot time.
	InWindow bool
}

// BucketSnapshot is a read-only copy of one bucket, taken at the sketch's
// current time. Intended for tests and debugging.
type BucketSnapshot struct {
	// Entries are the bucket's slots in index order.
	Entries []EntrySnapshot

	// Head is the index of the slot with the largest in-window hash.
	Head int

	// Locked reports whether the bucket is in the lock zone.
	Locked bool

	// LockTime is the adjusted expiry bound of the lock; meaningful
	// only while Locked.
	LockTime uint64

	// LockMaxV is the current upper bound on lock-zone hashes;
	// meaningful only while Locked.
	LockMaxV uint64
}
