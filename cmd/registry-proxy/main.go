// Command registry-proxy is a caching HTTP proxy in front of a prompt
// registry. It serves prompts from the shared Redis cache tier with
// stampede protection and stale-while-revalidate, exposing Prometheus
// metrics and a health endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/promptops/registry-client/pkg/logging"
	"github.com/promptops/registry-client/pkg/registry"
)

// proxyConfig is loaded from the environment.
type proxyConfig struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	RegistryURL string        `env:"REGISTRY_URL,required"`
	APIKey      string        `env:"REGISTRY_API_KEY,required"`
	Workspace   string        `env:"REGISTRY_WORKSPACE"`
	TTL         time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	StaleTTL    time.Duration `env:"CACHE_STALE_TTL" envDefault:"15m"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool          `env:"LOG_PRETTY" envDefault:"false"`
}

func main() {
	var cfg proxyConfig
	if err := env.Parse(&cfg); err != nil {
		logging.Setup(logging.DefaultConfig())
		fallbackLogger := logging.NewLogger("registry-proxy")
		fallbackLogger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("registry-proxy")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis")

	clientCfg := registry.DefaultConfig(cfg.RegistryURL, cfg.APIKey)
	clientCfg.Workspace = cfg.Workspace
	clientCfg.Redis = redisClient
	clientCfg.Cache.TTL = cfg.TTL
	clientCfg.Cache.StaleTTL = cfg.StaleTTL

	client, err := registry.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create registry client")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/prompts/", promptHandler(client))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting registry proxy")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown failed")
	}
	client.Close() // drains the revalidation pool
	logger.Info().Msg("Shutdown complete")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// promptHandler serves GET /prompts/{name}?version=&label= from the
// cached registry client.
func promptHandler(client *registry.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/prompts/")
		if name == "" || strings.Contains(name, "/") {
			http.Error(w, "prompt name required", http.StatusBadRequest)
			return
		}

		opts := registry.GetPromptOptions{
			Label: r.URL.Query().Get("label"),
		}
		if v := r.URL.Query().Get("version"); v != "" {
			version, err := strconv.Atoi(v)
			if err != nil || version < 0 {
				http.Error(w, "invalid version", http.StatusBadRequest)
				return
			}
			opts.Version = version
		}

		prompt, err := client.GetPrompt(r.Context(), name, opts)
		if err != nil {
			if errors.Is(err, registry.ErrPromptNotFound) {
				http.Error(w, "prompt not found", http.StatusNotFound)
				return
			}
			http.Error(w, "upstream registry error", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(prompt)
	}
}
