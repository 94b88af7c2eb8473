// Package main is the entry point for the profile importer. It loads
// JSON-lines profile, compatibility and event participant records into
// Postgres and invalidates the participant cache for touched events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/sparkfeed/internal/config"
	"github.com/onnwee/sparkfeed/internal/db"
	"github.com/onnwee/sparkfeed/internal/event"
	"github.com/onnwee/sparkfeed/internal/importer"
	"github.com/onnwee/sparkfeed/internal/middleware"
	"github.com/onnwee/sparkfeed/internal/profile"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "optional YAML config file")
	input := flag.String("file", "-", "JSON-lines input file, or - for stdin")
	migrate := flag.Bool("migrate", false, "apply migrations before importing")
	migrationsDir := flag.String("migrations", "migrations", "migrations directory used with -migrate")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address while importing")
	flag.Parse()

	if *help {
		fmt.Println("Sparkfeed Profile Importer")
		fmt.Println()
		fmt.Println("Usage: importer [options] < records.jsonl")
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

	// The importer never issues tokens.
	var fatal []error
	for _, err := range errs {
		if !errors.Is(err, config.ErrMissingJWTSecret) {
			fatal = append(fatal, err)
		}
	}
	if len(fatal) > 0 {
		for _, err := range fatal {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := importer.NewMetrics()
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	if err := run(ctx, cfg, logger, metrics, *input, *migrate, *migrationsDir); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *importer.Metrics, input string, migrate bool, migrationsDir string) error {
	pg, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	if migrate {
		applied, err := db.ApplyMigrations(ctx, pg, os.DirFS(migrationsDir))
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", len(applied))
	}

	opts := []importer.Option{importer.WithLogger(logger), importer.WithMetrics(metrics)}
	if cfg.RedisURL != "" {
		client, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			// Cached sets expire on their own; import anyway.
			logger.Warn("redis unavailable, participant cache will not be invalidated", "error", err)
		} else {
			defer client.Close()
			participants := event.NewPostgresStore(pg)
			opts = append(opts, importer.WithInvalidator(
				event.NewCachedStore(participants, client, cfg.ParticipantCacheTTL, logger)))
		}
	}

	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	im := importer.New(profile.NewPostgresRepository(pg, logger), event.NewPostgresStore(pg), opts...)
	stats, err := im.Run(ctx, r)
	if err != nil {
		return err
	}
	logger.Info("import complete",
		"lines", stats.Lines,
		"imported", stats.Imported,
		"skipped", stats.Skipped,
		"events", len(stats.Events))
	return nil
}
