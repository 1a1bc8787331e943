// Package cache provides prompt caching with stampede protection and
// stale-while-revalidate support on local and Redis backends.
package cache

import (
	"time"
)

// State is the freshness state of a cache entry, derived from its
// timestamps at read time. Entries move one way: fresh, stale, expired.
type State string

const (
	// StateFresh means the entry is within its TTL window.
	StateFresh State = "fresh"

	// StateStale means the TTL has passed but the entry is still inside
	// its stale window and may be served while a refresh runs.
	StateStale State = "stale"

	// StateExpired means the stale window has also passed; the entry is
	// treated as absent.
	StateExpired State = "expired"
)

// CacheEntry represents a cached prompt payload.
//
// Entries are immutable: a refresh or set always creates a new entry with
// new freshness windows, it never mutates an existing one.
type CacheEntry struct {
	// Data is the opaque payload (typically a JSON-encoded prompt)
	Data []byte `json:"data"`

	// FreshUntil is when the entry stops being fresh
	FreshUntil time.Time `json:"fresh_until"`

	// StaleUntil is when the entry stops being servable at all.
	// Invariant: StaleUntil >= FreshUntil.
	StaleUntil time.Time `json:"stale_until"`

	// CachedAt is when the entry was created
	CachedAt time.Time `json:"cached_at"`
}

// NewCacheEntry creates an entry whose freshness windows start now.
// A staleTTL of zero collapses the stale window, turning the cache into a
// plain TTL cache for this entry.
func NewCacheEntry(data []byte, ttl, staleTTL time.Duration) *CacheEntry {
	now := time.Now()
	fresh := now.Add(ttl)
	return &CacheEntry{
		Data:       data,
		FreshUntil: fresh,
		StaleUntil: fresh.Add(staleTTL),
		CachedAt:   now,
	}
}

// State returns the freshness state at the current time.
func (e *CacheEntry) State() State {
	now := time.Now()
	if now.Before(e.FreshUntil) {
		return StateFresh
	}
	if now.Before(e.StaleUntil) {
		return StateStale
	}
	return StateExpired
}

// IsFresh returns true while the entry is within its TTL window.
func (e *CacheEntry) IsFresh() bool {
	return time.Now().Before(e.FreshUntil)
}

// IsExpired returns true once the stale window has passed.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.StaleUntil)
}

// TTL returns the time until the entry expires outright (the end of the
// stale window). Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.StaleUntil)
	if ttl < 0 {
		return 0
	}
	return ttl
}
