package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage layer labels.
const (
	layerLocal = "local"
	layerRedis = "redis"
)

var (
	// CacheHits tracks cache hits by layer and freshness state
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_cache_hits_total",
			Help: "Total number of prompt cache hits",
		},
		[]string{"layer", "state"}, // layer: "local"|"redis"; state: "fresh"|"stale"
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_cache_misses_total",
			Help: "Total number of prompt cache misses",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks capacity evictions in the local tier
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompt_cache_evictions_total",
			Help: "Total number of entries evicted from the local cache tier",
		},
	)

	// LockContention tracks failed lock acquisitions by namespace
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_cache_lock_contention_total",
			Help: "Total number of lock acquisitions lost to another holder",
		},
		[]string{"namespace"}, // "fetch" | "refresh"
	)

	// RefreshTotal tracks background revalidation outcomes
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_cache_refresh_total",
			Help: "Total number of background refresh tasks by result",
		},
		[]string{"result"}, // "success" | "failure"
	)

	// RefreshQueueDrops tracks tasks dropped by the drop-oldest queue policy
	RefreshQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompt_cache_refresh_queue_drops_total",
			Help: "Total number of refresh tasks dropped due to a full queue",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "lock"
	)
)
