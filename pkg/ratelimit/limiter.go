package ratelimit

import (
	"sync"
	"time"
)

// slidingWindow tracks one identifier. All fields are guarded by mu.
type slidingWindow struct {
	mu           sync.Mutex
	requests     []time.Time
	failureCount int
	blockedUntil time.Time
	lastSeen     time.Time
	// evicted is set by the sweeper once the record left the registry
	evicted bool
}

func newSlidingWindow(maxRequests int, now time.Time) *slidingWindow {
	return &slidingWindow{
		requests: make([]time.Time, 0, maxRequests),
		lastSeen: now,
	}
}

func (sw *slidingWindow) blocked(now time.Time) bool {
	return !sw.blockedUntil.IsZero() && now.Before(sw.blockedUntil)
}

// unblock moves the window back to the open state with no history
func (sw *slidingWindow) unblock() {
	sw.blockedUntil = time.Time{}
	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window. A request
// exactly one window old has expired, so waiting the advertised resetIn
// is enough.
func (sw *slidingWindow) cleanOldRequests(now time.Time, windowSize time.Duration) {
	cutoff := now.Add(-windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// idle reports whether nothing about the record can matter any more
func (sw *slidingWindow) idle(now time.Time, ttl time.Duration) bool {
	return !sw.blocked(now) && now.Sub(sw.lastSeen) > ttl
}
