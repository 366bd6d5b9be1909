package ratelimit

import (
	"math"
	"sync"
	"time"

	"igstories/pkg/clock"
	"igstories/pkg/config"
)

// DefaultCaptchaThreshold is the number of blocks after which a caller must
// solve a captcha
const DefaultCaptchaThreshold = 3

// Policy configures a Keyed limiter
type Policy struct {
	MaxRequests      int
	Window           time.Duration
	BlockDuration    time.Duration
	CaptchaThreshold int
}

// PolicyFromConfig converts a configured limit into a Policy
func PolicyFromConfig(p config.LimitPolicy) Policy {
	return Policy{
		MaxRequests:      p.MaxRequests,
		Window:           p.Window,
		BlockDuration:    p.BlockDuration,
		CaptchaThreshold: p.CaptchaThreshold,
	}
}

// Decision is the outcome of one Check
type Decision struct {
	Allowed        bool          `json:"allowed"`
	Remaining      int           `json:"remaining"`
	ResetIn        time.Duration `json:"-"`
	ResetInSeconds int           `json:"resetIn"`
	RequireCaptcha bool          `json:"requireCaptcha"`
	Blocked        bool          `json:"blocked"`
}

// Keyed is a sliding-window rate limiter with one record per identifier
type Keyed struct {
	policy Policy
	clock  clock.Clock

	mu      sync.Mutex
	records map[string]*slidingWindow

	stopCh  chan struct{}
	started sync.Once
	stopped sync.Once
}

// NewKeyed creates a limiter. A nil clock uses the wall clock.
func NewKeyed(policy Policy, c clock.Clock) *Keyed {
	if policy.CaptchaThreshold <= 0 {
		policy.CaptchaThreshold = DefaultCaptchaThreshold
	}
	return &Keyed{
		policy:  policy,
		clock:   clock.OrReal(c),
		records: make(map[string]*slidingWindow),
		stopCh:  make(chan struct{}),
	}
}

// Policy returns the limiter configuration
func (k *Keyed) Policy() Policy {
	return k.policy
}

// record returns the locked window for id, creating it when missing
func (k *Keyed) record(id string, now time.Time) *slidingWindow {
	for {
		k.mu.Lock()
		sw, ok := k.records[id]
		if !ok {
			sw = newSlidingWindow(k.policy.MaxRequests, now)
			k.records[id] = sw
		}
		k.mu.Unlock()

		sw.mu.Lock()
		if !sw.evicted {
			return sw
		}
		// swept between lookup and lock; fetch a fresh record
		sw.mu.Unlock()
	}
}

// Check registers one request from id and reports whether it may proceed
func (k *Keyed) Check(id string) Decision {
	now := k.clock.Now()
	sw := k.record(id, now)
	defer sw.mu.Unlock()

	sw.lastSeen = now

	if !sw.blockedUntil.IsZero() {
		if sw.blocked(now) {
			return k.blockedDecision(sw, now)
		}
		sw.unblock()
	}

	sw.cleanOldRequests(now, k.policy.Window)

	if len(sw.requests) >= k.policy.MaxRequests {
		sw.failureCount++
		sw.blockedUntil = now.Add(k.policy.BlockDuration)
		return k.blockedDecision(sw, now)
	}

	sw.requests = append(sw.requests, now)
	resetIn := sw.requests[0].Add(k.policy.Window).Sub(now)
	return Decision{
		Allowed:        true,
		Remaining:      k.policy.MaxRequests - len(sw.requests),
		ResetIn:        resetIn,
		ResetInSeconds: ceilSeconds(resetIn),
	}
}

func (k *Keyed) blockedDecision(sw *slidingWindow, now time.Time) Decision {
	resetIn := sw.blockedUntil.Sub(now)
	return Decision{
		Allowed:        false,
		Remaining:      0,
		ResetIn:        resetIn,
		ResetInSeconds: ceilSeconds(resetIn),
		RequireCaptcha: sw.failureCount >= k.policy.CaptchaThreshold,
		Blocked:        true,
	}
}

// ResetFailures clears escalation for id: failure count, block and window.
// Only call it after id proved it solved a captcha.
func (k *Keyed) ResetFailures(id string) {
	k.mu.Lock()
	sw, ok := k.records[id]
	k.mu.Unlock()
	if !ok {
		return
	}

	sw.mu.Lock()
	sw.failureCount = 0
	sw.unblock()
	sw.mu.Unlock()
}

// FailureCount returns how many times id has been blocked since its last reset
func (k *Keyed) FailureCount(id string) int {
	k.mu.Lock()
	sw, ok := k.records[id]
	k.mu.Unlock()
	if !ok {
		return 0
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.failureCount
}

// Len returns the number of tracked identifiers
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.records)
}

// Sweep drops records idle for longer than window plus block duration
// and returns how many were dropped
func (k *Keyed) Sweep() int {
	now := k.clock.Now()
	ttl := k.policy.Window + k.policy.BlockDuration

	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for id, sw := range k.records {
		sw.mu.Lock()
		if sw.idle(now, ttl) {
			sw.evicted = true
			delete(k.records, id)
			removed++
		}
		sw.mu.Unlock()
	}
	return removed
}

// Start launches the periodic sweep. Calling it more than once is a no-op.
func (k *Keyed) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	k.started.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					k.Sweep()
				case <-k.stopCh:
					return
				}
			}
		}()
	})
}

// Stop halts the sweep. Safe to call multiple times.
func (k *Keyed) Stop() {
	k.stopped.Do(func() {
		close(k.stopCh)
	})
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
