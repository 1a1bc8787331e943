package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Lock key namespaces. First-fetch stampede protection and background
// refresh de-duplication use separate namespaces, so a refresh lock on a
// key never blocks a first-time fetch of the same key.
const (
	lockKeyPrefix     = "lock:"
	lockFetchPrefix   = lockKeyPrefix + "fetch:"
	lockRefreshPrefix = lockKeyPrefix + "refresh:"
)

// LockCoordinator layers keyed, TTL-bound locks on top of a backend's
// atomic set-if-absent primitive. Non-acquisition is an expected branch,
// not an error: callers either wait (stampede protection) or skip
// (refresh de-duplication).
type LockCoordinator struct {
	locker  Locker
	timeout time.Duration
	logger  zerolog.Logger
}

// NewLockCoordinator creates a coordinator issuing locks with the given
// hard timeout. The timeout is the fail-safe bound: a crashed holder's
// lock disappears after at most this long.
func NewLockCoordinator(locker Locker, timeout time.Duration, logger zerolog.Logger) *LockCoordinator {
	if locker == nil {
		panic("cache: locker cannot be nil")
	}
	return &LockCoordinator{
		locker:  locker,
		timeout: timeout,
		logger:  logger,
	}
}

// AcquireFetch attempts to take the first-fetch lock for key.
func (c *LockCoordinator) AcquireFetch(ctx context.Context, key string) (bool, error) {
	return c.acquire(ctx, lockFetchPrefix+key, "fetch")
}

// ReleaseFetch drops the first-fetch lock for key.
func (c *LockCoordinator) ReleaseFetch(ctx context.Context, key string) error {
	return c.locker.ReleaseLock(ctx, lockFetchPrefix+key)
}

// AcquireRefresh attempts to take the background-refresh lock for key.
func (c *LockCoordinator) AcquireRefresh(ctx context.Context, key string) (bool, error) {
	return c.acquire(ctx, lockRefreshPrefix+key, "refresh")
}

// ReleaseRefresh drops the background-refresh lock for key.
func (c *LockCoordinator) ReleaseRefresh(ctx context.Context, key string) error {
	return c.locker.ReleaseLock(ctx, lockRefreshPrefix+key)
}

func (c *LockCoordinator) acquire(ctx context.Context, lockKey, namespace string) (bool, error) {
	acquired, err := c.locker.AcquireLock(ctx, lockKey, c.timeout)
	if err != nil {
		return false, err
	}
	if !acquired {
		LockContention.WithLabelValues(namespace).Inc()
		c.logger.Debug().
			Str("lock_key", lockKey).
			Str("namespace", namespace).
			Msg("Lock held by another caller")
	}
	return acquired, nil
}
