// Package registry provides the prompt registry HTTP client with
// caching, retry and error classification.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/promptops/registry-client/pkg/cache"
	"github.com/promptops/registry-client/pkg/logging"
)

// Prometheus metrics for registry client operations.
var (
	registryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prompt_registry_requests_total",
		Help: "Total registry requests by status",
	}, []string{"status"})

	registryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prompt_registry_request_duration_seconds",
		Help:    "Registry request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	registryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prompt_registry_errors_total",
		Help: "Total registry errors by class",
	}, []string{"class"})
)

// Client is the prompt registry client. All reads go through the cache;
// the HTTP layer only runs as the cache's loader.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	workspace  string
	cache      *cache.Cache
	retry      RetryConfig
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the registry endpoint, e.g. "https://registry.example.com"
	BaseURL string

	// APIKey authenticates requests (sent as a bearer token)
	APIKey string

	// Workspace scopes prompt lookups ("" for the account default)
	Workspace string

	// Redis, when set, backs the cache with a shared tier so stampede
	// protection spans processes. When nil the cache is process-local.
	Redis *redis.Client

	// Cache configures TTLs, sizing and the revalidation pool.
	Cache cache.Config

	// Retry configures transport-level retries below the cache.
	Retry RetryConfig

	// HTTPTimeout bounds a single registry request.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Cache:       cache.DefaultConfig(),
		Retry:       DefaultRetryConfig(),
		HTTPTimeout: 10 * time.Second,
	}
}

// New creates a registry client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	var (
		promptCache *cache.Cache
		err         error
	)
	if cfg.Redis != nil {
		promptCache, err = cache.NewShared(cfg.Redis, cfg.Cache)
	} else {
		promptCache, err = cache.NewLocal(cfg.Cache)
	}
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("registry-client")
	logger.Debug().
		Str("base_url", cfg.BaseURL).
		Bool("shared_cache", cfg.Redis != nil).
		Stringer("strategy", promptCache.Strategy()).
		Msg("Registry client created")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		workspace:  cfg.Workspace,
		cache:      promptCache,
		retry:      cfg.Retry,
		logger:     logger,
	}, nil
}

// GetPromptOptions selects a specific prompt variant. The zero value
// resolves the latest published version.
type GetPromptOptions struct {
	// Version pins an exact version (0 for latest)
	Version int

	// Label resolves the version carrying a release label, e.g. "prod"
	Label string
}

// GetPrompt returns the prompt by name, served from cache whenever
// possible. Synchronous registry round trips happen only on a cold or
// fully expired key; stale values are refreshed in the background.
func (c *Client) GetPrompt(ctx context.Context, name string, opts GetPromptOptions) (*Prompt, error) {
	if name == "" {
		return nil, fmt.Errorf("prompt name is required")
	}

	key := cache.CacheKey{
		Workspace: c.workspace,
		Name:      name,
		Version:   opts.Version,
		Label:     opts.Label,
	}

	data, err := c.cache.Fetch(ctx, key.String(), func(ctx context.Context) ([]byte, error) {
		return c.fetchPrompt(ctx, name, opts)
	})
	if err != nil {
		return nil, err
	}

	var prompt Prompt
	if err := json.Unmarshal(data, &prompt); err != nil {
		return nil, fmt.Errorf("unmarshal prompt: %w", err)
	}
	return &prompt, nil
}

// fetchPrompt performs the actual registry round trip with retries. It
// runs as the cache loader, on the calling goroutine for cold keys and
// on a revalidation worker for stale ones.
func (c *Client) fetchPrompt(ctx context.Context, name string, opts GetPromptOptions) ([]byte, error) {
	endpoint := c.baseURL + "/api/prompts/" + url.PathEscape(name)

	query := url.Values{}
	if c.workspace != "" {
		query.Set("workspace", c.workspace)
	}
	if opts.Version > 0 {
		query.Set("version", strconv.Itoa(opts.Version))
	}
	if opts.Label != "" {
		query.Set("label", opts.Label)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body []byte
	err := retryWithBackoff(ctx, c.retry, func() (time.Duration, error) {
		data, retryAfter, err := c.doRequest(ctx, endpoint)
		if err != nil {
			return retryAfter, err
		}
		body = data
		return 0, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("prompt", name).Msg("Registry request failed")
		return nil, err
	}
	return body, nil
}

// doRequest performs one GET against the registry, classifying failures.
// The second return value is the server's Retry-After hint, when any.
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	registryRequestDuration.WithLabelValues("get_prompt").Observe(time.Since(start).Seconds())
	if err != nil {
		registryErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, 0, &RegistryError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	registryRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("read response body: %w", err)
		}
		return body, 0, nil
	}

	errorClass := classifyStatus(resp.StatusCode)
	registryErrorsTotal.WithLabelValues(string(errorClass)).Inc()

	regErr := &RegistryError{
		StatusCode: resp.StatusCode,
		ErrorClass: errorClass,
		Message:    http.StatusText(resp.StatusCode),
	}
	if resp.StatusCode == http.StatusNotFound {
		regErr.Err = ErrPromptNotFound
	}

	var retryAfter time.Duration
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return nil, retryAfter, regErr
}

// InvalidatePrompt drops every cached variant (all versions and labels)
// of the named prompt.
func (c *Client) InvalidatePrompt(ctx context.Context, name string) error {
	key := cache.CacheKey{Workspace: c.workspace, Name: name}
	return c.cache.DeleteByPrefix(ctx, key.Prefix())
}

// ClearCache drops every cached prompt.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// Cache exposes the underlying cache, primarily for introspection in
// tests and operational tooling.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Close drains the cache's revalidation pool.
func (c *Client) Close() {
	c.cache.Shutdown()
}
