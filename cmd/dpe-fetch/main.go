// Command dpe-fetch caches the DPE records of one filter in a CSV file.
// When the file already exists it is loaded instead and no request is sent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dpe-analyse/dpe-client/internal/config"
	"github.com/dpe-analyse/dpe-client/pkg/cache"
	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/logging"
	"github.com/dpe-analyse/dpe-client/pkg/metrics"
	"github.com/dpe-analyse/dpe-client/pkg/pagination"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "", "YAML config file (default: dpe.yaml in . or ./configs)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 2
	}
	logging.Setup(cfg.LoggingSetup())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(cfg.Redis.Options())
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Str("address", cfg.Redis.Address).Msg("Failed to connect to Redis")
			return 1
		}
		log.Info().Str("address", cfg.Redis.Address).Msg("Connected to Redis")
	}

	if cfg.Metrics.Address != "" {
		srv := newServer(cfg.Metrics.Address)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer srv.Close()
		log.Info().Str("address", cfg.Metrics.Address).Msg("Serving /metrics and /health")
	}

	if _, err := run(ctx, cfg, redisClient, uuid.NewString()); err != nil {
		log.Error().Err(err).Msg("Fetch run failed")
		return 1
	}
	return 0
}

// run ensures the configured filter is cached. redisClient may be nil.
func run(ctx context.Context, cfg *config.Config, redisClient *redis.Client, runID string) (*cache.Outcome, error) {
	logger := logging.WithRun(logging.NewLogger("dpe-fetch"), runID)

	dpeClient, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		return nil, fmt.Errorf("create DPE client: %w", err)
	}
	defer dpeClient.Close()

	policy, err := cfg.CachePolicy()
	if err != nil {
		return nil, err
	}
	var store *cache.ManifestStore
	if redisClient != nil {
		store = cache.NewManifestStore(redisClient)
	}
	gate, err := cache.NewGate(cache.GateConfig{
		Dir:    cfg.CacheDir(),
		Policy: policy,
		Store:  store,
		RunID:  runID,
	})
	if err != nil {
		return nil, err
	}

	driver := pagination.NewDriver(dpeClient, cfg.PaginationConfig())
	key := cfg.CacheKey()
	logger.Info().
		Str("field", key.Field).
		Str("value", key.Value).
		Str("policy", policy.Name).
		Str("path", gate.Path(key)).
		Msg("Fetch run started")

	outcome, err := gate.Ensure(ctx, key, func(ctx context.Context, key cache.Key) *pagination.Result {
		return driver.Run(ctx, dpeClient.Endpoint(), dpeClient.Filter(key.Field, key.Value))
	})
	if err != nil {
		return outcome, err
	}

	event := logger.Info().
		Bool("cache_hit", outcome.Hit).
		Bool("written", outcome.Written).
		Int("records", outcome.Table.Len()).
		Str("path", outcome.Path)
	if r := outcome.Result; r != nil {
		event = event.
			Int("pages", r.Pages).
			Str("stop", string(r.Stop)).
			Dur("duration", r.Duration)
	}
	event.Msg("Fetch run finished")

	return outcome, nil
}

func newServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
