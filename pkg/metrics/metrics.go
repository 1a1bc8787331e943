// Package metrics provides the centralized Prometheus metrics registry for
// the registry client. All metrics are defined in their respective packages
// (cache, registry) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the registry client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - prompt_cache_hits_total{layer, state} (Counter): Cache hits by layer (local, redis) and freshness state (fresh, stale)
//   - prompt_cache_misses_total{layer} (Counter): Cache misses by layer
//   - prompt_cache_evictions_total (Counter): Entries evicted from the local store at capacity
//   - prompt_cache_lock_contention_total{namespace} (Counter): Lock acquisitions lost to another holder, by namespace (fetch, refresh)
//   - prompt_cache_refresh_total{result} (Counter): Background refresh outcomes (success, failure)
//   - prompt_cache_refresh_queue_drops_total (Counter): Refresh tasks dropped because the queue was full
//   - prompt_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/registry):
//   - prompt_registry_requests_total{status} (Counter): Registry API requests by HTTP status
//   - prompt_registry_request_duration_seconds (Histogram): Registry API request duration
//   - prompt_registry_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/registry):
//   - prompt_registry_retries_total{error_class} (Counter): Retry attempts by error class
//   - prompt_registry_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
