// Package clock abstracts the time source so expiry and window logic can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock. time.Now carries a monotonic reading, so
// durations computed between two Now calls are immune to wall-clock jumps.
type Real struct{}

// Now returns time.Now()
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// OrReal returns c, or the real clock when c is nil
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
