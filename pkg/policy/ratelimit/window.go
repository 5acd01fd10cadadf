package ratelimit

import (
	"sync"
	"time"
)

// Window counts actions over a time window. Implementations decide
// the boundary policy (sliding vs fixed); the policy engine only asks
// how many actions the window currently holds and records new ones.
//
// Time is always passed in by the caller so enforcement is
// deterministic and testable.
type Window interface {
	// Count returns the number of actions currently inside the
	// window at the given instant.
	Count(now time.Time) int64

	// Add records n actions at the given instant.
	Add(now time.Time, n int64)

	// Reset clears the window.
	Reset()
}

// SlidingWindow implements a bucketed sliding window counter.
//
// The window is divided into fixed-size buckets held in a circular
// buffer. Old buckets are pruned as time advances, so the count decays
// smoothly instead of dropping to zero at a boundary.
type SlidingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	mu         sync.Mutex
}

// bucket is a single time-stamped counter cell.
type bucket struct {
	timestamp time.Time
	value     int64
}

// NewSlidingWindow creates a sliding window counter. The bucket count
// is window/bucketSize; smaller buckets are more accurate but use more
// memory.
func NewSlidingWindow(window, bucketSize time.Duration) *SlidingWindow {
	numBuckets := int(window / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &SlidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, numBuckets),
	}
}

// Add records n actions in the bucket covering now.
func (sw *SlidingWindow) Add(now time.Time, n int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(now)
	sw.findOrCreateBucketLocked(now).value += n
}

// Count returns the number of actions inside the window at now.
func (sw *SlidingWindow) Count(now time.Time) int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(now)

	var sum int64
	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() {
			sum += sw.buckets[i].value
		}
	}
	return sum
}

// Reset clears all buckets.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	for i := range sw.buckets {
		sw.buckets[i] = bucket{}
	}
}

// pruneLocked removes buckets older than the window.
// Caller must hold the lock.
func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() && sw.buckets[i].timestamp.Before(cutoff) {
			sw.buckets[i] = bucket{}
		}
	}
}

// findOrCreateBucketLocked finds the bucket for now or claims a slot
// for it. Caller must hold the lock.
func (sw *SlidingWindow) findOrCreateBucketLocked(now time.Time) *bucket {
	bucketTime := now.Truncate(sw.bucketSize)

	for i := range sw.buckets {
		if sw.buckets[i].timestamp.Equal(bucketTime) {
			return &sw.buckets[i]
		}
	}

	// Prefer an empty slot, otherwise evict the oldest.
	targetIdx := -1
	for i := range sw.buckets {
		if sw.buckets[i].timestamp.IsZero() {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		oldestIdx := 0
		oldestTime := sw.buckets[0].timestamp
		for i := 1; i < len(sw.buckets); i++ {
			if sw.buckets[i].timestamp.Before(oldestTime) {
				oldestIdx = i
				oldestTime = sw.buckets[i].timestamp
			}
		}
		targetIdx = oldestIdx
	}

	sw.buckets[targetIdx] = bucket{timestamp: bucketTime}
	return &sw.buckets[targetIdx]
}

// FixedWindow implements a tumbling window counter: the count resets
// to zero at every window boundary. Boundaries are aligned to the
// window duration (Truncate), so all matches sharing a duration share
// boundaries.
type FixedWindow struct {
	window time.Duration

	mu    sync.Mutex
	start time.Time
	count int64
}

// NewFixedWindow creates a tumbling window counter.
func NewFixedWindow(window time.Duration) *FixedWindow {
	return &FixedWindow{window: window}
}

// Add records n actions at now, rolling the window first if a
// boundary was crossed.
func (fw *FixedWindow) Add(now time.Time, n int64) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.rollLocked(now)
	fw.count += n
}

// Count returns the actions recorded in the current window.
func (fw *FixedWindow) Count(now time.Time) int64 {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.rollLocked(now)
	return fw.count
}

// Reset clears the window.
func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.start = time.Time{}
	fw.count = 0
}

// rollLocked resets the counter when now falls past the current
// window boundary. Caller must hold the lock.
func (fw *FixedWindow) rollLocked(now time.Time) {
	start := now.Truncate(fw.window)
	if !start.Equal(fw.start) {
		fw.start = start
		fw.count = 0
	}
}
