package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/promptops/registry-client/pkg/logging"
)

// ErrInvalidConfig indicates a rejected cache configuration. The wrapped
// message names the offending field.
var ErrInvalidConfig = errors.New("invalid cache configuration")

// Loader performs the actual upstream fetch on a cache miss. It may be
// invoked more than once for the same key (the stampede fallback path
// retries it) and must tolerate that.
type Loader func(ctx context.Context) ([]byte, error)

// Strategy identifies the fetch guarantee a cache provides. It is chosen
// once at construction from the backend's capabilities, strongest first.
type Strategy int

const (
	// StrategyPlain is unguarded get-or-load.
	StrategyPlain Strategy = iota

	// StrategyLocked adds cross-caller stampede protection.
	StrategyLocked

	// StrategySWR adds stale-while-revalidate on top of stampede
	// protection.
	StrategySWR
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	switch s {
	case StrategyPlain:
		return "plain"
	case StrategyLocked:
		return "locked"
	case StrategySWR:
		return "stale-while-revalidate"
	default:
		return "unknown"
	}
}

// lockPollSchedule is the bounded backoff used while waiting for another
// caller's in-flight load, roughly 350ms end to end. After the last poll
// the waiter loads directly, which self-heals a crashed lock holder.
var lockPollSchedule = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
}

// Config holds the cache configuration.
type Config struct {
	// TTL is how long entries stay fresh. Zero makes every entry
	// immediately non-fresh (cache-through mode).
	TTL time.Duration

	// StaleTTL is the grace window after TTL during which a stale entry
	// may still be served while a refresh runs. Zero disables
	// stale-while-revalidate.
	StaleTTL time.Duration

	// MaxSize bounds the local tier entry count.
	MaxSize int

	// LockTimeout is the hard TTL on stampede and refresh locks.
	LockTimeout time.Duration

	// RefreshWorkers is the background revalidation worker count.
	RefreshWorkers int

	// RefreshQueueSize bounds the pending refresh queue; overflow drops
	// the oldest queued task.
	RefreshQueueSize int

	// ShutdownGrace is how long Shutdown waits for in-flight refreshes.
	ShutdownGrace time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		TTL:              5 * time.Minute,
		StaleTTL:         15 * time.Minute,
		MaxSize:          1000,
		LockTimeout:      10 * time.Second,
		RefreshWorkers:   2,
		RefreshQueueSize: 64,
		ShutdownGrace:    5 * time.Second,
	}
}

// Validate checks the configuration, returning an ErrInvalidConfig
// wrapped error for the first violation found.
func (c Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must be >= 0 (got %v)", ErrInvalidConfig, c.TTL)
	}
	if c.StaleTTL < 0 {
		return fmt.Errorf("%w: stale_ttl must be >= 0 (got %v)", ErrInvalidConfig, c.StaleTTL)
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max_size must be > 0 (got %d)", ErrInvalidConfig, c.MaxSize)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("%w: lock_timeout must be > 0 (got %v)", ErrInvalidConfig, c.LockTimeout)
	}
	if c.RefreshWorkers <= 0 {
		return fmt.Errorf("%w: refresh_workers must be > 0 (got %d)", ErrInvalidConfig, c.RefreshWorkers)
	}
	if c.RefreshQueueSize <= 0 {
		return fmt.Errorf("%w: refresh_queue_size must be > 0 (got %d)", ErrInvalidConfig, c.RefreshQueueSize)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("%w: shutdown_grace must be > 0 (got %v)", ErrInvalidConfig, c.ShutdownGrace)
	}
	return nil
}

// Cache is the caller-facing cache façade. It wraps one store with the
// strongest fetch strategy the store's capabilities allow:
// stale-while-revalidate over a locking store with StaleTTL > 0, stampede
// protection over a locking store, plain get-or-load otherwise.
type Cache struct {
	store    Store
	locks    *LockCoordinator
	pool     *RevalidationPool
	config   Config
	logger   zerolog.Logger
	strategy Strategy
}

// New creates a cache over store. The strategy is fixed here; it never
// changes at call time.
func New(store Store, cfg Config) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		store:    store,
		config:   cfg,
		logger:   logging.NewLogger("cache"),
		strategy: StrategyPlain,
	}

	if locker, ok := store.(Locker); ok {
		c.locks = NewLockCoordinator(locker, cfg.LockTimeout, c.logger)
		c.strategy = StrategyLocked
		if cfg.StaleTTL > 0 {
			c.pool = NewRevalidationPool(cfg.RefreshWorkers, cfg.RefreshQueueSize, c.logger)
			c.strategy = StrategySWR
		}
	}

	c.logger.Debug().
		Stringer("strategy", c.strategy).
		Dur("ttl", cfg.TTL).
		Dur("stale_ttl", cfg.StaleTTL).
		Msg("Cache created")

	return c, nil
}

// NewLocal creates a cache over an in-process store bounded by
// cfg.MaxSize.
func NewLocal(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(NewLocalStore(cfg.MaxSize), cfg)
}

// NewShared creates a cache over a Redis-backed store shared across
// processes.
func NewShared(redisClient *redis.Client, cfg Config) (*Cache, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("%w: redis client cannot be nil", ErrInvalidConfig)
	}
	return New(NewSharedStore(redisClient), cfg)
}

// Strategy returns the fetch strategy selected at construction.
func (c *Cache) Strategy() Strategy {
	return c.strategy
}

// Fetch returns the cached value for key, loading it through loader when
// needed, under the strongest strategy the backend supports.
func (c *Cache) Fetch(ctx context.Context, key string, loader Loader) ([]byte, error) {
	switch c.strategy {
	case StrategySWR:
		return c.fetchStaleWhileRevalidate(ctx, key, loader)
	case StrategyLocked:
		return c.fetchWithLock(ctx, key, loader)
	default:
		return c.fetchPlain(ctx, key, loader)
	}
}

// FetchWithLock returns the cached value for key with cross-caller
// stampede protection: at most one cold upstream load per key per lock
// window. Degrades to a plain fetch when the backend cannot lock.
func (c *Cache) FetchWithLock(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if c.locks == nil {
		return c.fetchPlain(ctx, key, loader)
	}
	return c.fetchWithLock(ctx, key, loader)
}

// FetchWithStaleWhileRevalidate serves stale values instantly while a
// bounded worker pool refreshes them in the background. Degrades to
// FetchWithLock when stale-while-revalidate is disabled.
func (c *Cache) FetchWithStaleWhileRevalidate(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if c.pool == nil {
		return c.FetchWithLock(ctx, key, loader)
	}
	return c.fetchStaleWhileRevalidate(ctx, key, loader)
}

// fetchPlain is get-or-load with no concurrency guard.
func (c *Cache) fetchPlain(ctx context.Context, key string, loader Loader) ([]byte, error) {
	entry, err := c.store.Get(ctx, key)
	if err == nil {
		return entry.Data, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}
	return c.loadAndStore(ctx, key, loader)
}

// fetchWithLock implements the stampede protocol: on a miss, one caller
// wins the fetch lock and loads; the rest poll briefly for the winner's
// write and fall back to loading directly if it never lands.
func (c *Cache) fetchWithLock(ctx context.Context, key string, loader Loader) ([]byte, error) {
	entry, err := c.store.Get(ctx, key)
	if err == nil {
		return entry.Data, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	acquired, err := c.locks.AcquireFetch(ctx, key)
	if err != nil {
		// Lock backend failure: load without protection rather than fail
		// the caller.
		c.logger.Warn().Err(err).Str("key", key).Msg("Fetch lock unavailable, loading unguarded")
		return c.loadAndStore(ctx, key, loader)
	}

	if acquired {
		defer func() {
			if err := c.locks.ReleaseFetch(ctx, key); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("Failed to release fetch lock")
			}
		}()
		return c.loadAndStore(ctx, key, loader)
	}

	// Another caller is loading. Poll for its write with bounded backoff.
	for _, wait := range lockPollSchedule {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		entry, err := c.store.Get(ctx, key)
		if err == nil {
			return entry.Data, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}

	// The holder crashed or is slower than the backoff ceiling. Load
	// directly instead of waiting forever.
	c.logger.Debug().Str("key", key).Msg("Lock holder did not populate cache, loading directly")
	return c.loadAndStore(ctx, key, loader)
}

// fetchStaleWhileRevalidate serves fresh hits as-is, stale hits
// immediately with a background refresh scheduled, and loads
// synchronously only on a true miss.
func (c *Cache) fetchStaleWhileRevalidate(ctx context.Context, key string, loader Loader) ([]byte, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
		// Miss or expired: the only path that adds caller latency. The
		// load is still stampede-protected via the fetch lock namespace,
		// which is independent of the refresh namespace.
		return c.fetchWithLock(ctx, key, loader)
	}

	if entry.IsFresh() {
		return entry.Data, nil
	}

	c.scheduleRefresh(ctx, key, loader)
	return entry.Data, nil
}

// scheduleRefresh enqueues a background revalidation for key unless one
// is already in flight. Refresh failures never reach a caller.
func (c *Cache) scheduleRefresh(ctx context.Context, key string, loader Loader) {
	acquired, err := c.locks.AcquireRefresh(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Refresh lock unavailable, skipping revalidation")
		return
	}
	if !acquired {
		// Another caller already scheduled this refresh.
		return
	}

	release := func() {
		if err := c.locks.ReleaseRefresh(context.Background(), key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to release refresh lock")
		}
	}

	c.pool.Submit(&refreshTask{
		key:     key,
		abandon: release,
		run: func(taskCtx context.Context) {
			defer release()

			data, err := loader(taskCtx)
			if err != nil {
				RefreshTotal.WithLabelValues("failure").Inc()
				c.logger.Warn().Err(err).Str("key", key).Msg("Background refresh failed, keeping stale entry")
				return
			}

			entry := NewCacheEntry(data, c.config.TTL, c.config.StaleTTL)
			if err := c.store.Set(taskCtx, key, entry); err != nil {
				RefreshTotal.WithLabelValues("failure").Inc()
				c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store refreshed entry")
				return
			}

			RefreshTotal.WithLabelValues("success").Inc()
			c.logger.Debug().Str("key", key).Msg("Background refresh completed")
		},
	})
}

// loadAndStore runs the loader synchronously and caches its result.
// Loader errors propagate to the caller; store errors after a successful
// load are logged but do not fail the fetch.
func (c *Cache) loadAndStore(ctx context.Context, key string, loader Loader) ([]byte, error) {
	data, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	entry := NewCacheEntry(data, c.config.TTL, c.config.StaleTTL)
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store loaded entry")
	}
	return data, nil
}

// Set stores data under key with freshness windows starting now.
func (c *Cache) Set(ctx context.Context, key string, data []byte) error {
	return c.store.Set(ctx, key, NewCacheEntry(data, c.config.TTL, c.config.StaleTTL))
}

// Get returns the cached data for key, or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Data, nil
}

// Delete removes the entry for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// DeleteByPrefix removes every entry whose key starts with prefix, when
// the backend supports it.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) error {
	pd, ok := c.store.(PrefixDeleter)
	if !ok {
		return fmt.Errorf("store does not support prefix deletion")
	}
	return pd.DeleteByPrefix(ctx, prefix)
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Empty reports whether the cache holds no entries.
func (c *Cache) Empty(ctx context.Context) (bool, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Shutdown drains the revalidation pool, waiting up to the configured
// grace period for in-flight refreshes. Safe to call on any strategy and
// safe to call twice.
func (c *Cache) Shutdown() {
	if c.pool != nil {
		c.pool.Shutdown(c.config.ShutdownGrace)
	}
}
