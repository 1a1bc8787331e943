package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the minimal storage capability a cache backend must provide.
// Implementations must be safe for concurrent use and must treat entries
// past their stale window as absent.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key string, entry *CacheEntry) error

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries owned by the store.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

// Locker is the optional locking capability of a backend. Acquisition must
// be atomic (set-if-absent with TTL), never a composed read-then-write. A
// lock exists for at most its TTL regardless of holder health, so a crashed
// holder cannot deadlock the key.
type Locker interface {
	// AcquireLock attempts to take the lock for key with a hard TTL.
	// Returns false without error when another holder has it.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the lock for key. Releasing an absent or already
	// expired lock is not an error.
	ReleaseLock(ctx context.Context, key string) error
}

// PrefixDeleter is the optional bulk-invalidation capability of a backend.
type PrefixDeleter interface {
	// DeleteByPrefix removes every entry whose key starts with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
}
