// Package cache holds short-lived, in-memory lookups keyed by string.
package cache

import (
	"sync"
	"time"

	"igstories/pkg/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a goroutine-safe map whose entries expire after a per-entry TTL.
// Expired entries are dropped lazily on read and periodically by the sweeper.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	clock   clock.Clock
	sweep   time.Duration
	stopCh  chan struct{}
	stopped sync.Once
	started sync.Once
}

// New creates an empty cache. A non-positive sweepInterval disables the sweeper.
func New[V any](c clock.Clock, sweepInterval time.Duration) *Cache[V] {
	return &Cache[V]{
		items:  make(map[string]entry[V]),
		clock:  clock.OrReal(c),
		sweep:  sweepInterval,
		stopCh: make(chan struct{}),
	}
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !now.Before(e.expiresAt) {
		c.mu.Lock()
		// re-check under the write lock; a concurrent Set may have refreshed it
		if cur, ok := c.items[key]; ok && !now.Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	expiresAt := c.clock.Now().Add(ttl)

	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Has reports whether key holds an unexpired value
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Size returns the number of stored entries, including expired ones
// the sweeper has not reached yet
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Purge removes every expired entry and returns how many were dropped
func (c *Cache[V]) Purge() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Start launches the background sweeper. Calling it more than once is a no-op.
func (c *Cache[V]) Start() {
	if c.sweep <= 0 {
		return
	}
	c.started.Do(func() {
		go c.sweepLoop()
	})
}

// Stop halts the sweeper. Safe to call multiple times.
func (c *Cache[V]) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stopCh:
			return
		}
	}
}
