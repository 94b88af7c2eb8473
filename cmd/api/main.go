// Package main is the entry point for the feed API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/sparkfeed/internal/auth"
	"github.com/onnwee/sparkfeed/internal/config"
	"github.com/onnwee/sparkfeed/internal/db"
	"github.com/onnwee/sparkfeed/internal/event"
	"github.com/onnwee/sparkfeed/internal/feed"
	"github.com/onnwee/sparkfeed/internal/health"
	"github.com/onnwee/sparkfeed/internal/middleware"
	"github.com/onnwee/sparkfeed/internal/profile"
	"github.com/onnwee/sparkfeed/internal/ranking"
	"github.com/onnwee/sparkfeed/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "optional YAML config file")
	issueToken := flag.String("issue-token", "", "print an access token for this viewer id and exit")
	flag.Parse()

	if *help {
		fmt.Println("Sparkfeed API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil {
		fmt.Fprintln(os.Stderr, errs[0])
		os.Exit(1)
	}
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	if *issueToken != "" {
		tokens, err := newTokenService(cfg)
		if err != nil {
			logger.Error("failed to create token service", "error", err)
			os.Exit(1)
		}
		token, err := tokens.IssueAccessToken(*issueToken)
		if err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tp.IsEnabled() {
		logger.Info("tracing enabled", "exporter", cfg.TracingExporter, "endpoint", cfg.OTLPEndpoint)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	pg, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// Calibration problems fall back to defaults; the server still starts.
	opts, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("using default ranking calibration", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	feedMetrics := feed.NewMetrics()
	if err := feedMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register feed metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	tokens, err := newTokenService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	service := feed.NewService(
		profile.NewPostgresRepository(pg, logger),
		participantStore(pg, rdb, cfg.ParticipantCacheTTL, logger),
		ranking.NewPipeline(opts),
		feed.WithMetrics(feedMetrics),
		feed.WithLogger(logger),
	)

	checkers := []health.Checker{health.NewDBChecker(pg)}
	var rateStore middleware.RateLimitStore
	if rdb != nil {
		checkers = append(checkers, health.NewRedisChecker(rdb))
		rateStore = middleware.NewRedisRateLimitStore(rdb, httpMetrics, logger)
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		mem.StartCleanup(ctx, time.Minute)
		rateStore = mem
	}

	rateLimit := middleware.DefaultFeedLimit()
	rateLimit.RequestsPerWindow = cfg.RateLimitFeedPerMinute

	server := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: newHandler(deps{
			feed:        service,
			tokens:      tokens,
			checkers:    checkers,
			rateStore:   rateStore,
			rateLimit:   rateLimit,
			httpMetrics: httpMetrics,
			registry:    registry,
			logger:      logger,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server, logger)
}

func newTokenService(cfg *config.Config) (*auth.TokenService, error) {
	return auth.NewTokenService(auth.Config{
		Secret:         cfg.JWTSecret,
		PreviousSecret: cfg.JWTSecretPrevious,
		Issuer:         cfg.JWTIssuer,
	})
}

// participantStore reads participants from Postgres, through the Redis
// cache when one is configured.
func participantStore(pg *sql.DB, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) event.ParticipantStore {
	store := event.NewPostgresStore(pg)
	if rdb == nil {
		return store
	}
	return event.NewCachedStore(store, rdb, ttl, logger)
}

// serve runs server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return <-errCh
}
