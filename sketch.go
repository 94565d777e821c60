// sketch.go: core sliding KMV sketch implementation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

import (
	"math/bits"
)

// Sketch estimates the number of distinct elements observed within a
// sliding time window, aggregated across all flows. Each flow label maps
// to one of m buckets; each bucket keeps the k smallest element hashes
// seen in window, KMV style.
//
// All state is allocated at construction and reused in place; Record and
// PeriodicClean never allocate.
//
// A Sketch is single-writer by contract: Record, PeriodicClean and
// Estimate all mutate shared state and must not be called concurrently.
// Callers must feed records in non-decreasing timestamp order and run
// PeriodicClean at least once per window length of stream progress;
// neither contract is checked at runtime.
type Sketch struct {
	// Parameters (immutable after construction)
	window    uint64 // N, sliding window length
	tsRange   uint64 // 2N, adjusted-timestamp modulus and sentinel
	hashRange uint64 // 2^delta1 - 1, max hash and empty sentinel
	k         int
	m         int
	delta1    int
	delta2    int
	flowSeed  uint64
	elemSeed  uint64

	// Stream time state
	now        uint64 // T, last observed timestamp
	lastClean  uint64
	cleanEvery uint64 // 0 = caller-scheduled cleaning

	// Bucket storage: slots is the flat backing array, each bucket
	// views its own k-slot window of it
	buckets []bucket
	slots   []entry

	// Reusable per-estimate collection buffer, capacity k
	scratch []uint64

	// Ambient collaborators
	logger  Logger
	timePrv TimeProvider
	metrics MetricsCollector

	stats SketchStats
}

// NewSketch creates a sketch from the given configuration.
// Returns a configuration error if any core parameter is out of range.
func NewSketch(config Config) (*Sketch, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Sketch{
		window:     config.WindowSize,
		tsRange:    2 * config.WindowSize,
		hashRange:  hashRangeFor(config.Delta1),
		k:          config.K,
		m:          config.M,
		delta1:     config.Delta1,
		delta2:     config.Delta2,
		flowSeed:   config.FlowSeed,
		elemSeed:   config.ElementSeed,
		cleanEvery: config.CleanEvery,
		buckets:    make([]bucket, config.M),
		slots:      make([]entry, config.M*config.K),
		scratch:    make([]uint64, 0, config.K),
		logger:     config.Logger,
		timePrv:    config.TimeProvider,
		metrics:    config.MetricsCollector,
	}

	for i := range s.buckets {
		b := &s.buckets[i]
		b.entries = s.slots[i*s.k : (i+1)*s.k]
		for j := range b.entries {
			b.entries[j].reset(s.hashRange, s.tsRange)
		}
		b.lockTime.unset(s.tsRange)
		b.lockMaxV = s.hashRange
	}

	s.logger.Info("sketch created",
		"window_size", s.window,
		"k", s.k,
		"m", s.m,
		"delta1", s.delta1,
		"delta2", s.delta2,
		"clean_every", s.cleanEvery,
		"budget_bits", s.MemoryBudgetBits(),
	)

	return s, nil
}

// Record observes one (flow, element, timestamp) arrival.
//
// The timestamp advances the sketch's stream time; out-of-order
// timestamps corrupt the window encoding and are a caller contract
// violation. When CleanEvery is configured, Record also triggers a full
// cleaning sweep once enough stream time has passed.
func (s *Sketch) Record(flowLabel, elementID, timestamp uint64) {
	start := s.timePrv.Now()
	s.stats.Records++

	s.now = timestamp
	if s.cleanEvery > 0 && s.now-s.lastClean >= s.cleanEvery {
		s.cleanAll()
	}

	b := &s.buckets[flowIndex(flowLabel, s.flowSeed, s.m)]
	hy := elementHash(elementID, s.elemSeed, s.hashRange)

	s.maintainLock(b)

	// Re-observed element: refresh its arrival time. The refresh can
	// revive a slot that had aged out, so an unlocked head must follow
	// the new maximum.
	for j := range b.entries {
		e := &b.entries[j]
		if e.h == hy && !e.isEmpty(s.hashRange, s.tsRange) {
			e.at.record(timestamp, s.tsRange)
			if !b.lock && hy > b.entries[b.head].h {
				b.head = j
			}
			s.stats.Duplicates++
			s.metrics.RecordUpdate(s.timePrv.Now()-start, true)
			return
		}
	}

	var accepted bool
	if b.lock {
		accepted = s.updateLocked(b, hy)
	} else {
		accepted = s.updateNoLock(b, hy)
	}

	if accepted {
		s.stats.Inserts++
	} else {
		s.stats.Rejections++
	}
	s.metrics.RecordUpdate(s.timePrv.Now()-start, accepted)
}

// maintainLock transitions the bucket's lock state for the current time.
//
// The lock clears when its time bound expires or when the head slot is
// back in window (a duplicate refresh or an in-place overwrite revalidated
// it). It activates when the head slot holds an element that has aged out
// of the window: the head is then known stale and the bucket starts
// tracking lock-zone candidates instead of rescanning per arrival. An
// empty head never activates the lock; an empty slot has nothing to go
// stale.
func (s *Sketch) maintainLock(b *bucket) {
	head := &b.entries[b.head]

	if b.lock {
		switch {
		case !b.lockTime.inWindow(s.now, s.window, s.tsRange):
			b.lock = false
			s.stats.LockTimeouts++
		case head.at.inWindow(s.now, s.window, s.tsRange):
			b.lock = false
			s.stats.LockResolutions++
			s.metrics.RecordLockResolution()
		}
	}

	if !b.lock && head.at.isSet(s.tsRange) && !head.at.inWindow(s.now, s.window, s.tsRange) {
		b.lock = true
		// The lock outlives the head by one window: it expires exactly
		// when the head's encoding would start aliasing.
		b.lockTime.v = (head.at.v + s.window) % s.tsRange
		b.lockMaxV = s.hashRange
		s.stats.LockActivations++
		s.metrics.RecordLockActivation()
	}
}

// updateNoLock inserts hy with a valid head. Empty slots are filled
// first, then slots whose element has aged out. With all k slots in
// window the arrival must beat the head (the largest of the k minima)
// to displace it.
func (s *Sketch) updateNoLock(b *bucket, hy uint64) bool {
	pos := -1
	for j := range b.entries {
		if b.entries[j].isEmpty(s.hashRange, s.tsRange) {
			pos = j
			break
		}
	}
	if pos < 0 {
		for j := range b.entries {
			if !b.entries[j].at.inWindow(s.now, s.window, s.tsRange) {
				pos = j
				break
			}
		}
	}

	if pos >= 0 {
		b.entries[pos].h = hy
		b.entries[pos].at.record(s.now, s.tsRange)
		if hy > b.entries[b.head].h {
			b.head = pos
		}
		return true
	}

	if hy < b.entries[b.head].h {
		b.entries[b.head].h = hy
		b.entries[b.head].at.record(s.now, s.tsRange)
		s.updateHead(b)
		return true
	}
	return false
}

// updateLocked inserts hy while the head is known stale. A true
// k-minimum lands in any aged-out slot, or displaces the head outright
// when every slot is in window, which also resolves the lock. Arrivals
// between the stale head and the current bound only shrink the bound.
func (s *Sketch) updateLocked(b *bucket, hy uint64) bool {
	headH := b.entries[b.head].h

	switch {
	case hy < headH:
		for j := range b.entries {
			if !b.entries[j].at.inWindow(s.now, s.window, s.tsRange) {
				b.entries[j].h = hy
				b.entries[j].at.record(s.now, s.tsRange)
				return true
			}
		}
		b.entries[b.head].h = hy
		b.entries[b.head].at.record(s.now, s.tsRange)
		s.updateHead(b)
		b.lock = false
		s.stats.LockResolutions++
		s.metrics.RecordLockResolution()
		return true

	case headH < hy && hy < b.lockMaxV:
		b.lockMaxV = hy
		s.stats.Absorbed++
		return false

	default:
		return false
	}
}

// updateHead rescans the bucket and points head at the slot with the
// largest in-window hash, or slot 0 when nothing is in window.
func (s *Sketch) updateHead(b *bucket) {
	best := -1
	var bestH uint64
	for j := range b.entries {
		e := &b.entries[j]
		if e.isEmpty(s.hashRange, s.tsRange) || !e.at.inWindow(s.now, s.window, s.tsRange) {
			continue
		}
		if best < 0 || e.h > bestH {
			best = j
			bestH = e.h
		}
	}
	if best < 0 {
		b.head = 0
		return
	}
	b.head = best
}

// PeriodicClean advances stream time to tNow and sweeps every bucket,
// emptying slots whose element has aged out of the window.
//
// Cleaning must run at least once per window length of stream progress:
// an uncleaned slot older than twice the window aliases back into the
// window and silently corrupts estimates. Setting Config.CleanEvery
// delegates this scheduling to Record.
func (s *Sketch) PeriodicClean(tNow uint64) {
	s.now = tNow
	s.cleanAll()
}

// PeriodicCleanBucket sweeps a single bucket at the current stream time.
// Returns an error if i is not a valid bucket index.
func (s *Sketch) PeriodicCleanBucket(i int) error {
	if i < 0 || i >= s.m {
		return NewErrBucketOutOfRange(i, s.m)
	}
	s.cleanBucket(&s.buckets[i])
	return nil
}

func (s *Sketch) cleanAll() {
	start := s.timePrv.Now()
	before := s.stats.Expirations

	s.lastClean = s.now
	for i := range s.buckets {
		s.cleanBucket(&s.buckets[i])
	}
	s.stats.Cleans++

	expired := s.stats.Expirations - before
	s.metrics.RecordClean(s.timePrv.Now()-start, int(expired)) // #nosec G115 - expired is bounded by m*k
	s.logger.Debug("cleaning sweep", "t", s.now, "expired", expired)
}

func (s *Sketch) cleanBucket(b *bucket) {
	for j := range b.entries {
		e := &b.entries[j]
		if e.at.clean(s.now, s.window, s.tsRange) {
			e.h = s.hashRange
			s.stats.Expirations++
		}
	}
	s.updateHead(b)
	s.maintainLock(b)
}

// Estimate returns the estimated number of distinct elements observed in
// window across all flows, as the harmonic mean of per-bucket KMV
// estimates. Buckets with no in-window elements are excluded. Returns 0
// when the sketch holds nothing in window.
func (s *Sketch) Estimate() float64 {
	start := s.timePrv.Now()
	s.stats.Estimates++

	effectiveM := s.m
	harmonic := 0.0

	for i := range s.buckets {
		b := &s.buckets[i]
		s.maintainLock(b)

		vals := s.scratch[:0]
		for j := range b.entries {
			e := &b.entries[j]
			if e.isEmpty(s.hashRange, s.tsRange) || !e.at.inWindow(s.now, s.window, s.tsRange) {
				continue
			}
			if b.lock && j == b.head {
				// The stale head's hash no longer reflects
				// in-window data.
				continue
			}
			vals = append(vals, e.h)
		}

		if len(vals) == 0 {
			effectiveM--
			continue
		}

		alpha := vals[0]
		for _, v := range vals[1:] {
			if v > alpha {
				alpha = v
			}
		}

		n := float64(len(vals))*float64(s.hashRange)/float64(alpha) - 1
		if n > 0 {
			harmonic += 1 / n
		}
	}

	var estimate float64
	if effectiveM > 0 && harmonic > 0 {
		estimate = float64(effectiveM) / harmonic
	}

	s.metrics.RecordEstimate(s.timePrv.Now() - start)
	return estimate
}

// CurrentTime returns the last observed stream timestamp.
func (s *Sketch) CurrentTime() uint64 { return s.now }

// WindowSize returns the sliding window length N.
func (s *Sketch) WindowSize() uint64 { return s.window }

// K returns the number of minimum-value slots per bucket.
func (s *Sketch) K() int { return s.k }

// M returns the number of buckets.
func (s *Sketch) M() int { return s.m }

// HashRange returns 2^delta1 - 1, the maximum element hash value, which
// also serves as the empty-slot sentinel.
func (s *Sketch) HashRange() uint64 { return s.hashRange }

// TimestampRange returns 2N, the adjusted-timestamp modulus, which also
// serves as the unset-timestamp sentinel.
func (s *Sketch) TimestampRange() uint64 { return s.tsRange }

// CleanEvery returns the ingestion-path cleaning interval in stream time
// units; 0 means cleaning is caller-scheduled.
func (s *Sketch) CleanEvery() uint64 { return s.cleanEvery }

// SetCleanEvery changes the ingestion-path cleaning interval. Like every
// other mutating operation it must be called from the writer only.
// Returns a configuration error if the interval exceeds the window.
func (s *Sketch) SetCleanEvery(v uint64) error {
	if v > s.window {
		return NewErrInvalidCleanEvery(v, s.window)
	}
	s.cleanEvery = v
	return nil
}

// Stats returns a copy of the sketch's operation counters.
func (s *Sketch) Stats() SketchStats { return s.stats }

// MemoryBudgetBits returns the sketch's state size in bits as derived
// from its parameters: per bucket, k slots of delta1+delta2 bits, one
// lock bit, a delta2-bit lock time, a delta1-bit lock bound, and a
// log2(k)-bit head index.
func (s *Sketch) MemoryBudgetBits() uint64 {
	headBits := 0
	if s.k > 1 {
		headBits = bits.Len(uint(s.k - 1))
	}
	perBucket := uint64(s.k)*uint64(s.delta1+s.delta2) +
		1 + uint64(s.delta2) + uint64(s.delta1) + uint64(headBits)
	return uint64(s.m) * perBucket
}

// Bucket returns a read-only snapshot of bucket i at the current stream
// time. Returns an error if i is not a valid bucket index.
func (s *Sketch) Bucket(i int) (BucketSnapshot, error) {
	if i < 0 || i >= s.m {
		return BucketSnapshot{}, NewErrBucketOutOfRange(i, s.m)
	}

	b := &s.buckets[i]
	snap := BucketSnapshot{
		Entries:  make([]EntrySnapshot, s.k),
		Head:     b.head,
		Locked:   b.lock,
		LockTime: b.lockTime.v,
		LockMaxV: b.lockMaxV,
	}
	for j := range b.entries {
		e := &b.entries[j]
		snap.Entries[j] = EntrySnapshot{
			Hash:      e.h,
			Timestamp: e.at.v,
			Empty:     e.isEmpty(s.hashRange, s.tsRange),
			InWindow:  e.at.inWindow(s.now, s.window, s.tsRange),
		}
	}
	return snap, nil
}
