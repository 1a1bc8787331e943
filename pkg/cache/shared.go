package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all cache keys in Redis so a shared instance
// can host unrelated data.
const DefaultKeyPrefix = "promptcache:"

// scanBatchSize is the COUNT hint for SCAN-based bulk operations.
const scanBatchSize = 100

// SharedStore adapts a Redis client to the Store, Locker and PrefixDeleter
// capabilities. It keeps no in-process copy; every operation is a round
// trip through Redis atomic primitives.
//
// Entries are stored JSON-encoded with a Redis TTL spanning the full stale
// window, so stale reads remain possible until the entry expires outright.
type SharedStore struct {
	redis  *redis.Client
	prefix string
}

// NewSharedStore creates a Redis-backed store under DefaultKeyPrefix.
func NewSharedStore(redisClient *redis.Client) *SharedStore {
	return NewSharedStoreWithPrefix(redisClient, DefaultKeyPrefix)
}

// NewSharedStoreWithPrefix creates a Redis-backed store under a custom
// key prefix.
func NewSharedStoreWithPrefix(redisClient *redis.Client, prefix string) *SharedStore {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	return &SharedStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (s *SharedStore) Get(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// The Redis TTL normally expires entries first; the check covers
	// clock skew between writer and reader.
	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerRedis, string(entry.State())).Inc()
	return &entry, nil
}

// Set stores an entry with a Redis TTL covering its remaining stale
// window. Entries that have already expired are not written.
func (s *SharedStore) Set(ctx context.Context, key string, entry *CacheEntry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *SharedStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix,
// scanning in batches to avoid blocking Redis.
func (s *SharedStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := s.redis.Scan(ctx, 0, s.prefix+prefix+"*", scanBatchSize).Iterator()

	batch := make([]string, 0, scanBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := s.redis.Del(ctx, batch...).Err(); err != nil {
				CacheErrors.WithLabelValues("delete").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.redis.Del(ctx, batch...).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Clear removes all entries and lock markers under the store's namespace.
func (s *SharedStore) Clear(ctx context.Context) error {
	return s.DeleteByPrefix(ctx, "")
}

// Len counts entries under the store's namespace, excluding lock markers.
func (s *SharedStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.redis.Scan(ctx, 0, s.prefix+"*", scanBatchSize).Iterator()
	lockPrefix := s.prefix + lockKeyPrefix
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) >= len(lockPrefix) && key[:len(lockPrefix)] == lockPrefix {
			continue
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

// AcquireLock takes the distributed lock for key via a single atomic
// SET NX with TTL. Returns false without error when another process holds
// the lock.
func (s *SharedStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		CacheErrors.WithLabelValues("lock").Inc()
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// ReleaseLock drops the distributed lock for key.
func (s *SharedStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues("lock").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
