package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalStore is a bounded, TTL-aware, process-local store. One mutex guards
// the whole map; contention is limited to goroutines of a single process.
//
// It also carries an in-process lock table with the same set-if-absent +
// TTL semantics as the Redis tier, so the lock coordinator works
// identically on both.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	locks   map[string]time.Time
	maxSize int
}

// NewLocalStore creates a local store holding at most maxSize entries.
// When full, the entry with the earliest stale deadline is evicted first.
func NewLocalStore(maxSize int) *LocalStore {
	if maxSize <= 0 {
		panic("cache: maxSize must be > 0")
	}
	return &LocalStore{
		entries: make(map[string]*CacheEntry),
		locks:   make(map[string]time.Time),
		maxSize: maxSize,
	}
}

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
// Expired entries are removed on read.
func (s *LocalStore) Get(_ context.Context, key string) (*CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		CacheMisses.WithLabelValues(layerLocal).Inc()
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		delete(s.entries, key)
		CacheMisses.WithLabelValues(layerLocal).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerLocal, string(entry.State())).Inc()
	return entry, nil
}

// Set stores entry under key. If the store is full and key is new, the
// entry with the earliest StaleUntil is evicted first. The O(n) scan is
// acceptable for sizes in the low thousands.
func (s *LocalStore) Set(_ context.Context, key string, entry *CacheEntry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.evictEarliest()
	}
	s.entries[key] = entry
	return nil
}

// evictEarliest removes the entry whose stale window ends soonest.
// Caller must hold s.mu.
func (s *LocalStore) evictEarliest() {
	var victim string
	var earliest time.Time
	for key, entry := range s.entries {
		if victim == "" || entry.StaleUntil.Before(earliest) {
			victim = key
			earliest = entry.StaleUntil
		}
	}
	if victim != "" {
		delete(s.entries, victim)
		CacheEvictions.Inc()
	}
}

// Delete removes the entry for key.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
func (s *LocalStore) DeleteByPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Clear removes all entries and forgets all locks.
func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*CacheEntry)
	s.locks = make(map[string]time.Time)
	return nil
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (s *LocalStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// CleanupExpired sweeps expired entries and stale lock markers, returning
// the number of entries removed. Get already filters expired entries, so
// the sweep is an optimization, not a correctness requirement.
func (s *LocalStore) CleanupExpired(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.IsExpired() {
			delete(s.entries, key)
			removed++
		}
	}
	now := time.Now()
	for key, deadline := range s.locks {
		if !now.Before(deadline) {
			delete(s.locks, key)
		}
	}
	return removed
}

// AcquireLock takes the in-process lock for key if no live holder exists.
// An expired marker is treated as absent, mirroring Redis SetNX with TTL.
func (s *LocalStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if deadline, held := s.locks[key]; held && now.Before(deadline) {
		return false, nil
	}
	s.locks[key] = now.Add(ttl)
	return true, nil
}

// ReleaseLock drops the in-process lock for key.
func (s *LocalStore) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
