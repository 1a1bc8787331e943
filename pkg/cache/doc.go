// Package cache provides prompt caching with cache-stampede protection
// and stale-while-revalidate on local and Redis backends.
//
// The cache serves remote prompt configurations with two guarantees under
// concurrent access:
//
//   - Stampede protection: at most one cold upstream fetch per key per
//     lock window, even with many concurrent callers across processes.
//   - Stale-while-revalidate: callers never wait on a refresh while a
//     previous value is still inside its stale window; a bounded worker
//     pool revalidates in the background.
//
// # Freshness model
//
// Every entry carries two deadlines: FreshUntil and StaleUntil. State is
// derived from the clock on each read and moves one way:
//
//	FRESH   now < FreshUntil        served as-is
//	STALE   now < StaleUntil        served, refresh scheduled
//	EXPIRED otherwise               treated as a miss
//
// StaleTTL of zero collapses the stale window, giving a plain TTL cache.
//
// # Strategy selection
//
// New inspects the store's capabilities once at construction and fixes
// the strongest available strategy, in priority order:
//
//   - stale-while-revalidate: store implements Locker and StaleTTL > 0
//   - lock-protected: store implements Locker
//   - plain: anything else
//
// # Basic Usage
//
//	// Shared cache across processes
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	c, err := cache.NewShared(redisClient, cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Shutdown()
//
//	key := cache.CacheKey{Name: "welcome-email", Label: "prod"}
//	data, err := c.Fetch(ctx, key.String(), func(ctx context.Context) ([]byte, error) {
//		return fetchFromRegistry(ctx)
//	})
//
// # Locking
//
// Both tiers expose the same lock primitive: an atomic set-if-absent with
// a hard TTL (Redis SET NX, or the local lock table). The TTL bounds how
// long a crashed holder can block a key. First-fetch and refresh locks
// live in separate namespaces so a pending revalidation never blocks an
// unrelated cold fetch of the same key.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - prompt_cache_hits_total{layer,state} - Hits by tier and freshness
//   - prompt_cache_misses_total{layer} - Misses by tier
//   - prompt_cache_evictions_total - Local tier capacity evictions
//   - prompt_cache_lock_contention_total{namespace} - Lost lock races
//   - prompt_cache_refresh_total{result} - Background refresh outcomes
//   - prompt_cache_refresh_queue_drops_total - Drop-oldest queue drops
//   - prompt_cache_errors_total{operation} - Backend operation errors
package cache
