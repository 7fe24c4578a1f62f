// Package cache provides the short-TTL snapshot cache for expensive
// full-catalog fetches shared across requests.
package cache

import (
	"sync"
	"time"
)

// Snapshot holds one fully-built value and its construction time. The slot
// is replaced atomically with a complete value, never mutated in place, so
// a cache-miss race costs at most redundant work, never corruption.
type snapshot[T any] struct {
	value   T
	builtAt time.Time
}

// TTL is a process-scoped single-slot cache with a bounded value lifetime.
// Readers share the cached value; each request that intends to mutate
// (e.g. tag backfill) must take its own copy first.
type TTL[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	snap *snapshot[T]
}

// NewTTL creates a cache with the given lifetime. now is injectable so
// tests drive expiry with a synthetic clock; pass nil for time.Now.
func NewTTL[T any](ttl time.Duration, now func() time.Time) *TTL[T] {
	if now == nil {
		now = time.Now
	}
	return &TTL[T]{ttl: ttl, now: now}
}

// Get returns the cached value if present and unexpired.
func (c *TTL[T]) Get() (T, bool) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap == nil || c.now().Sub(snap.builtAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return snap.value, true
}

// Set replaces the slot with a fully-built value.
func (c *TTL[T]) Set(value T) {
	snap := &snapshot[T]{value: value, builtAt: c.now()}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// GetOrFill returns the cached value, or builds one with fill and caches
// it. Population is deliberately not mutex-guarded across the build:
// concurrent misses may each run fill, and the last finished value wins.
func (c *TTL[T]) GetOrFill(fill func() (T, error)) (T, error) {
	if v, ok := c.Get(); ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(v)
	return v, nil
}

// Invalidate drops the cached value.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

// Reset is an alias for Invalidate, kept for callers that treat the cache
// as resettable process state.
func (c *TTL[T]) Reset() { c.Invalidate() }

// BuiltAt returns the construction time of the cached value, or false when
// the cache is empty.
func (c *TTL[T]) BuiltAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return time.Time{}, false
	}
	return c.snap.builtAt, true
}
