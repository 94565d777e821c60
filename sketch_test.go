// sketch_test.go: unit tests for the sliding KMV sketch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package skmv

import (
	"math"
	"reflect"
	"testing"
)

// smallConfig is the shared scenario configuration: one bucket, four
// slots, 32-bit hashes, 16-bit timestamps.
func smallConfig() Config {
	return Config{
		WindowSize: 1000,
		K:          4,
		M:          1,
		Delta1:     32,
		Delta2:     16,
	}
}

func mustSketch(t *testing.T, config Config) *Sketch {
	t.Helper()
	s, err := NewSketch(config)
	if err != nil {
		t.Fatalf("NewSketch() error = %v", err)
	}
	return s
}

func mustBucket(t *testing.T, s *Sketch, i int) BucketSnapshot {
	t.Helper()
	snap, err := s.Bucket(i)
	if err != nil {
		t.Fatalf("Bucket(%d) error = %v", i, err)
	}
	return snap
}

func TestNewSketch_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantCode string
	}{
		{"zero window", Config{WindowSize: 0, K: 4, M: 1, Delta1: 32, Delta2: 16}, "SKMV_INVALID_WINDOW_SIZE"},
		{"negative k", Config{WindowSize: 100, K: -1, M: 1, Delta1: 32, Delta2: 16}, "SKMV_INVALID_K"},
		{"negative m", Config{WindowSize: 100, K: 4, M: -1, Delta1: 32, Delta2: 16}, "SKMV_INVALID_M"},
		{"delta1 too wide", Config{WindowSize: 100, K: 4, M: 1, Delta1: 65, Delta2: 16}, "SKMV_INVALID_DELTA1"},
		{"delta2 too wide", Config{WindowSize: 100, K: 4, M: 1, Delta1: 32, Delta2: 64}, "SKMV_INVALID_DELTA2"},
		{"window exceeds timestamp range", Config{WindowSize: 40000, K: 4, M: 1, Delta1: 32, Delta2: 16}, "SKMV_WINDOW_TOO_LARGE"},
		{"clean interval exceeds window", Config{WindowSize: 100, K: 4, M: 1, Delta1: 32, Delta2: 16, CleanEvery: 101}, "SKMV_INVALID_CLEAN_EVERY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSketch(tt.config)
			if err == nil {
				t.Fatal("NewSketch() expected error, got nil")
			}
			if string(GetErrorCode(err)) != tt.wantCode {
				t.Errorf("error code = %s, want %s", GetErrorCode(err), tt.wantCode)
			}
			if !IsConfigError(err) {
				t.Errorf("IsConfigError(%v) = false, want true", err)
			}
		})
	}
}

func TestNewSketch_FreshState(t *testing.T) {
	s := mustSketch(t, smallConfig())

	if s.WindowSize() != 1000 || s.TimestampRange() != 2000 {
		t.Errorf("window/range = %d/%d, want 1000/2000", s.WindowSize(), s.TimestampRange())
	}
	if s.K() != 4 || s.M() != 1 {
		t.Errorf("k/m = %d/%d, want 4/1", s.K(), s.M())
	}
	if s.HashRange() != 4294967295 {
		t.Errorf("HashRange() = %d, want 4294967295", s.HashRange())
	}

	snap := mustBucket(t, s, 0)
	if snap.Locked || snap.Head != 0 || snap.LockMaxV != s.HashRange() {
		t.Errorf("fresh bucket state: locked=%v head=%d lockMaxV=%d", snap.Locked, snap.Head, snap.LockMaxV)
	}
	for j, e := range snap.Entries {
		if !e.Empty || e.Hash != s.HashRange() || e.Timestamp != s.TimestampRange() {
			t.Errorf("slot %d not empty: %+v", j, e)
		}
	}
}

func TestSketch_MemoryBudgetBits(t *testing.T) {
	s := mustSketch(t, smallConfig())

	// 4 slots of 48 bits, 1 lock bit, 16-bit lock time, 32-bit lock
	// bound, 2-bit head index.
	want := uint64(4*48 + 1 + 16 + 32 + 2)
	if got := s.MemoryBudgetBits(); got != want {
		t.Errorf("MemoryBudgetBits() = %d, want %d", got, want)
	}
}

// Four distinct elements in an empty bucket must all be stored, and the
// estimate must land near 4.
func TestSketch_FourDistinctElements(t *testing.T) {
	s := mustSketch(t, smallConfig())

	for e := uint64(1); e <= 4; e++ {
		s.Record(1, e, 0)
	}

	snap := mustBucket(t, s, 0)
	for j, e := range snap.Entries {
		if e.Empty {
			t.Errorf("slot %d empty after four inserts", j)
		}
	}
	if snap.Locked {
		t.Error("bucket locked after plain inserts")
	}

	// Head must hold the largest in-window hash.
	var maxH uint64
	for _, e := range snap.Entries {
		if e.InWindow && e.Hash > maxH {
			maxH = e.Hash
		}
	}
	if snap.Entries[snap.Head].Hash != maxH {
		t.Errorf("head hash = %d, want max %d", snap.Entries[snap.Head].Hash, maxH)
	}

	est := s.Estimate()
	if est <= 0 || math.IsInf(est, 0) || math.IsNaN(est) {
		t.Fatalf("Estimate() = %v, want finite positive", est)
	}
	if est < 2 || est > 8 {
		t.Errorf("Estimate() = %v, want within factor 2 of 4", est)
	}
}

// Re-recording the same element must refresh its arrival time without
// growing the bucket, and an estimate after a late refresh must match a
// sketch that saw only the late arrival.
func TestSketch_DuplicateRefresh(t *testing.T) {
	s := mustSketch(t, smallConfig())
	h1 := elementHash(1, defaultElementSeed, s.HashRange())

	countMatching := func() int {
		snap := mustBucket(t, s, 0)
		n := 0
		for _, e := range snap.Entries {
			if e.Hash == h1 {
				n++
			}
		}
		return n
	}

	s.Record(1, 1, 0)
	if got := countMatching(); got != 1 {
		t.Fatalf("after first record: %d slots hold h(1), want 1", got)
	}

	s.Record(1, 1, 10)
	if got := countMatching(); got != 1 {
		t.Fatalf("after refresh: %d slots hold h(1), want 1", got)
	}
	snap := mustBucket(t, s, 0)
	if snap.Entries[0].Timestamp != 10 {
		t.Errorf("refreshed timestamp = %d, want 10", snap.Entries[0].Timestamp)
	}

	s.Record(1, 1, 2000)
	if got := countMatching(); got != 1 {
		t.Fatalf("after late refresh: %d slots hold h(1), want 1", got)
	}
	if s.CurrentTime() != 2000 {
		t.Errorf("CurrentTime() = %d, want 2000", s.CurrentTime())
	}

	fresh := mustSketch(t, smallConfig())
	fresh.Record(1, 1, 2000)
	if got, want := s.Estimate(), fresh.Estimate(); got != want {
		t.Errorf("Estimate() = %v, want %v (same as a lone late insert)", got, want)
	}
}

// A cleaning sweep past the window must empty every expired slot and
// drop the estimate to zero.
func TestSketch_CleanEmptiesExpired(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})

	s.Record(1, 1, 0)
	s.Record(1, 2, 0)
	s.PeriodicClean(150)

	snap := mustBucket(t, s, 0)
	for j, e := range snap.Entries {
		if !e.Empty {
			t.Errorf("slot %d not empty after sweep: %+v", j, e)
		}
	}
	if got := s.Estimate(); got != 0 {
		t.Errorf("Estimate() = %v, want 0", got)
	}
	if stats := s.Stats(); stats.Expirations != 2 || stats.Cleans != 1 {
		t.Errorf("stats = %+v, want 2 expirations, 1 clean", stats)
	}
}

// Element hashes with a known order, for lock-zone scenarios:
// h(110)=127740103 < h(168)=1996946633 < h(197)=2970628528 < h(174)=3327575408.
const (
	lockElemSmall = 110
	lockElemHead  = 168
	lockElemZone  = 197
	lockElemLate  = 174
)

// When the head expires and an arrival lands between the stale head and
// the hash range, the bucket must lock and track the arrival as its new
// zone bound.
func TestSketch_LockActivation(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})
	headH := elementHash(lockElemHead, defaultElementSeed, s.HashRange())
	zoneH := elementHash(lockElemZone, defaultElementSeed, s.HashRange())

	s.Record(1, lockElemHead, 0)
	s.Record(1, lockElemSmall, 60)

	snap := mustBucket(t, s, 0)
	if snap.Entries[snap.Head].Hash != headH {
		t.Fatalf("head hash = %d, want %d", snap.Entries[snap.Head].Hash, headH)
	}

	s.Record(1, lockElemZone, 101)

	snap = mustBucket(t, s, 0)
	if !snap.Locked {
		t.Fatal("bucket not locked after head expiry")
	}
	if snap.LockMaxV != zoneH {
		t.Errorf("LockMaxV = %d, want %d", snap.LockMaxV, zoneH)
	}
	if snap.LockTime != 100 {
		t.Errorf("LockTime = %d, want 100", snap.LockTime)
	}
	if stats := s.Stats(); stats.LockActivations != 1 || stats.Absorbed != 1 {
		t.Errorf("stats = %+v, want 1 activation, 1 absorbed", stats)
	}
}

// The zone bound only shrinks while the lock holds.
func TestSketch_LockMaxVMonotone(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})
	zoneH := elementHash(lockElemZone, defaultElementSeed, s.HashRange())
	lateH := elementHash(lockElemLate, defaultElementSeed, s.HashRange())

	s.Record(1, lockElemHead, 0)
	s.Record(1, lockElemSmall, 60)

	// lateH > zoneH: the larger zone arrival first, then the smaller.
	s.Record(1, lockElemLate, 101)
	snap := mustBucket(t, s, 0)
	if !snap.Locked || snap.LockMaxV != lateH {
		t.Fatalf("LockMaxV = %d, want %d", snap.LockMaxV, lateH)
	}

	s.Record(1, lockElemZone, 102)
	snap = mustBucket(t, s, 0)
	if snap.LockMaxV != zoneH {
		t.Errorf("LockMaxV = %d, want shrunk to %d", snap.LockMaxV, zoneH)
	}

	// An arrival at or above the bound must not widen it.
	s.Record(1, lockElemLate, 103)
	snap = mustBucket(t, s, 0)
	if snap.LockMaxV != zoneH {
		t.Errorf("LockMaxV = %d, bound must not grow", snap.LockMaxV)
	}
}

// A lock with no resolving arrivals must time out one window after the
// stale head expired, so an arrival one window after activation finds it
// cleared.
func TestSketch_LockTimeout(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})

	s.Record(1, lockElemHead, 0)
	s.Record(1, lockElemSmall, 60)
	s.Record(1, lockElemZone, 101)

	if snap := mustBucket(t, s, 0); !snap.Locked {
		t.Fatal("bucket not locked")
	}

	// Next arrival at t = 101 + window.
	s.Record(1, lockElemLate, 201)

	snap := mustBucket(t, s, 0)
	if snap.Locked {
		t.Error("lock survived its time bound")
	}
	if stats := s.Stats(); stats.LockTimeouts != 1 {
		t.Errorf("LockTimeouts = %d, want 1", stats.LockTimeouts)
	}
}

// A true k-minimum arriving under lock lands in the stale head's slot,
// and the revalidated head resolves the lock on the next touch.
func TestSketch_LockResolvedByMinimum(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})
	minH := elementHash(3, defaultElementSeed, s.HashRange()) // 593438941, below the stale head

	s.Record(1, lockElemHead, 0)
	s.Record(1, lockElemSmall, 60)
	s.Record(1, lockElemZone, 101)

	if snap := mustBucket(t, s, 0); !snap.Locked {
		t.Fatal("bucket not locked after head expiry")
	}

	s.Record(1, 3, 102)

	snap := mustBucket(t, s, 0)
	found := false
	for _, e := range snap.Entries {
		if e.Hash == minH && e.InWindow {
			found = true
		}
	}
	if !found {
		t.Fatal("k-minimum arrival not stored under lock")
	}

	// The insert revalidated the head slot; the next operation's lock
	// maintenance resolves the lock.
	if est := s.Estimate(); est <= 0 {
		t.Errorf("Estimate() = %v, want > 0", est)
	}
	snap = mustBucket(t, s, 0)
	if snap.Locked {
		t.Error("lock not resolved after the head slot revalidated")
	}
	if stats := s.Stats(); stats.LockResolutions != 1 {
		t.Errorf("LockResolutions = %d, want 1", stats.LockResolutions)
	}
}

// An uncleaned slot would alias back into the window once its age
// reaches twice the window; sweeping on schedule must prevent that.
func TestSketch_CleaningPreventsAliasing(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 1, M: 1, Delta1: 32, Delta2: 16})

	s.Record(1, 1, 0)
	s.PeriodicClean(100)

	snap := mustBucket(t, s, 0)
	if !snap.Entries[0].Empty {
		t.Fatal("slot not emptied at t=100")
	}

	s.PeriodicClean(200)
	s.PeriodicClean(210)

	snap = mustBucket(t, s, 0)
	if !snap.Entries[0].Empty || snap.Entries[0].InWindow {
		t.Error("slot aliased back into the window at t=210")
	}
	if got := s.Estimate(); got != 0 {
		t.Errorf("Estimate() = %v, want 0", got)
	}
}

// A recorded element must show up in the estimate immediately and be
// gone one window later once cleaning runs.
func TestSketch_RoundTrip(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})

	s.Record(7, 42, 50)
	if est := s.Estimate(); est <= 0 {
		t.Fatalf("Estimate() = %v after a record, want > 0", est)
	}

	s.PeriodicClean(150)
	if est := s.Estimate(); est != 0 {
		t.Errorf("Estimate() = %v one window later, want 0", est)
	}
}

// Rejection path: a full bucket of in-window minima drops arrivals that
// hash above its head.
func TestSketch_RejectAboveHead(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 1000, K: 2, M: 1, Delta1: 32, Delta2: 16})

	// h(14)=374658260 and h(3)=593438941 fill the bucket;
	// h(7)=4230089426 is above the head and must be dropped.
	s.Record(1, 14, 0)
	s.Record(1, 3, 0)
	before := mustBucket(t, s, 0)

	s.Record(1, 7, 0)
	after := mustBucket(t, s, 0)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("rejected arrival changed bucket state:\nbefore %+v\nafter  %+v", before, after)
	}
	if stats := s.Stats(); stats.Rejections != 1 {
		t.Errorf("Rejections = %d, want 1", stats.Rejections)
	}
}

// Displacement path: an arrival below the head replaces it and the head
// moves to the new maximum.
func TestSketch_DisplaceHead(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 1000, K: 2, M: 1, Delta1: 32, Delta2: 16})

	s.Record(1, 14, 0) // h=374658260
	s.Record(1, 3, 0)  // h=593438941, head
	s.Record(1, 110, 5) // h=127740103, displaces the head

	snap := mustBucket(t, s, 0)
	wantHashes := map[uint64]bool{374658260: true, 127740103: true}
	for j, e := range snap.Entries {
		if !wantHashes[e.Hash] {
			t.Errorf("slot %d hash = %d, want one of %v", j, e.Hash, wantHashes)
		}
	}
	if snap.Entries[snap.Head].Hash != 374658260 {
		t.Errorf("head hash = %d, want 374658260", snap.Entries[snap.Head].Hash)
	}
}

// Recording the same arrival twice must leave the same state as
// recording it once.
func TestSketch_DuplicateIdempotent(t *testing.T) {
	once := mustSketch(t, smallConfig())
	twice := mustSketch(t, smallConfig())

	once.Record(1, 5, 100)
	twice.Record(1, 5, 100)
	twice.Record(1, 5, 100)

	a := mustBucket(t, once, 0)
	b := mustBucket(t, twice, 0)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("duplicate record changed state:\nonce  %+v\ntwice %+v", a, b)
	}
}

// xorshift64 generates the deterministic mixed workloads below.
func xorshift64(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}

func driveMixed(s *Sketch, n int) {
	state := uint64(0x9e3779b97f4a7c15)
	for i := 0; i < n; i++ {
		flow := xorshift64(&state) % 16
		elem := xorshift64(&state) % 400
		t := uint64(i / 2)
		s.Record(flow, elem, t)
		if i%300 == 0 {
			s.PeriodicClean(t)
		}
	}
}

// Two sketches with identical parameters and identical input must end up
// bit-identical.
func TestSketch_Deterministic(t *testing.T) {
	config := Config{WindowSize: 1000, K: 4, M: 8, Delta1: 32, Delta2: 16}
	a := mustSketch(t, config)
	b := mustSketch(t, config)

	driveMixed(a, 5000)
	driveMixed(b, 5000)

	if ea, eb := a.Estimate(), b.Estimate(); ea != eb {
		t.Fatalf("estimates diverged: %v vs %v", ea, eb)
	}
	for i := 0; i < a.M(); i++ {
		sa := mustBucket(t, a, i)
		sb := mustBucket(t, b, i)
		if !reflect.DeepEqual(sa, sb) {
			t.Errorf("bucket %d diverged:\na %+v\nb %+v", i, sa, sb)
		}
	}
}

// After every sweep: an unlocked head holds the maximum in-window hash,
// and slot emptiness sentinels stay consistent.
func TestSketch_InvariantsUnderMixedLoad(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 1000, K: 4, M: 8, Delta1: 32, Delta2: 16})

	state := uint64(1)
	for i := 0; i < 20000; i++ {
		flow := xorshift64(&state) % 20
		elem := xorshift64(&state) % 300
		now := uint64(i / 3)
		s.Record(flow, elem, now)

		if i%50 != 0 {
			continue
		}
		s.PeriodicClean(now)

		for bi := 0; bi < s.M(); bi++ {
			snap := mustBucket(t, s, bi)

			var maxH uint64
			inWindow := 0
			for _, e := range snap.Entries {
				if (e.Hash == s.HashRange()) != (e.Timestamp == s.TimestampRange()) {
					t.Fatalf("i=%d bucket=%d: emptiness sentinels diverged: %+v", i, bi, e)
				}
				if !e.Empty && e.InWindow {
					inWindow++
					if e.Hash > maxH {
						maxH = e.Hash
					}
				}
			}

			if snap.Locked || inWindow == 0 {
				continue
			}
			if got := snap.Entries[snap.Head].Hash; got != maxH {
				t.Fatalf("i=%d bucket=%d: head hash = %d, want max %d", i, bi, got, maxH)
			}
		}
	}
}

// A static single-flow population must estimate within KMV error bounds.
func TestSketch_Accuracy(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 1_000_000, K: 512, M: 4, Delta1: 32, Delta2: 48})

	const distinct = 20000
	for e := uint64(0); e < distinct; e++ {
		s.Record(42, e, 1000)
	}

	est := s.Estimate()
	relErr := math.Abs(est-distinct) / distinct
	if relErr > 0.15 {
		t.Errorf("Estimate() = %.1f for %d distinct, relative error %.3f > 0.15", est, distinct, relErr)
	}
}

// Configured ingestion-path cleaning must sweep without explicit
// PeriodicClean calls.
func TestSketch_AutoClean(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16, CleanEvery: 50})

	s.Record(1, 14, 0)
	s.Record(1, 5, 120)

	stats := s.Stats()
	if stats.Cleans != 1 || stats.Expirations != 1 {
		t.Errorf("stats = %+v, want 1 clean and 1 expiration from the record path", stats)
	}

	snap := mustBucket(t, s, 0)
	occupied := 0
	for _, e := range snap.Entries {
		if !e.Empty {
			occupied++
		}
	}
	if occupied != 1 {
		t.Errorf("occupied slots = %d, want 1 (old element swept, new stored)", occupied)
	}
}

func TestSketch_SetCleanEvery(t *testing.T) {
	s := mustSketch(t, Config{WindowSize: 100, K: 2, M: 1, Delta1: 32, Delta2: 16})

	if err := s.SetCleanEvery(50); err != nil {
		t.Fatalf("SetCleanEvery(50) error = %v", err)
	}
	if s.CleanEvery() != 50 {
		t.Errorf("CleanEvery() = %d, want 50", s.CleanEvery())
	}

	err := s.SetCleanEvery(101)
	if err == nil {
		t.Fatal("SetCleanEvery(101) expected error")
	}
	if !IsConfigError(err) {
		t.Errorf("IsConfigError(%v) = false, want true", err)
	}
}

func TestSketch_BucketOutOfRange(t *testing.T) {
	s := mustSketch(t, smallConfig())

	if _, err := s.Bucket(1); !IsOutOfRange(err) {
		t.Errorf("Bucket(1) error = %v, want out-of-range", err)
	}
	if _, err := s.Bucket(-1); !IsOutOfRange(err) {
		t.Errorf("Bucket(-1) error = %v, want out-of-range", err)
	}
	if err := s.PeriodicCleanBucket(1); !IsOutOfRange(err) {
		t.Errorf("PeriodicCleanBucket(1) error = %v, want out-of-range", err)
	}
	if err := s.PeriodicCleanBucket(0); err != nil {
		t.Errorf("PeriodicCleanBucket(0) error = %v", err)
	}
}

func TestSketch_Stats(t *testing.T) {
	s := mustSketch(t, smallConfig())

	s.Record(1, 1, 0)
	s.Record(1, 1, 1)
	s.Record(1, 2, 2)
	s.Estimate()

	stats := s.Stats()
	if stats.Records != 3 || stats.Inserts != 2 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 3 records, 2 inserts, 1 duplicate", stats)
	}
	if stats.Estimates != 1 {
		t.Errorf("Estimates = %d, want 1", stats.Estimates)
	}
	if ratio := stats.AcceptRatio(); ratio != 100 {
		t.Errorf("AcceptRatio() = %v, want 100", ratio)
	}
}
