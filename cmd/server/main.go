package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/config"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/enhance"
	"github.com/krwhynot/CRM-sub001/internal/importer"
	"github.com/krwhynot/CRM-sub001/internal/logging"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
	"github.com/krwhynot/CRM-sub001/internal/store"
	"github.com/krwhynot/CRM-sub001/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"batch_size", cfg.Import.BatchSize,
		"enhancer_enabled", cfg.Enhancer.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	cat := catalog.Organization()
	if err := store.EnsureSchema(ctx, pool); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Optional external mapping service
	var suggester enhance.Suggester = enhance.NopSuggester{}
	if cfg.Enhancer.Enabled {
		suggester = enhance.NewClient(
			cfg.Enhancer.APIKey,
			cfg.Enhancer.Model,
			cfg.Enhancer.BaseURL,
			enhance.WithTimeout(cfg.Enhancer.Timeout),
			enhance.WithMaxSampleRows(cfg.Enhancer.MaxSampleRows),
			enhance.WithHTTPClient(&http.Client{Timeout: cfg.Enhancer.Timeout + time.Second}),
		)
		slog.Info("mapping enhancer enabled", "model", cfg.Enhancer.Model)
	}

	service := importer.NewService(
		store.NewPostgres(pool, cat),
		cat,
		suggester,
		importer.Config{
			BatchSize:       cfg.Import.BatchSize,
			BatchPause:      cfg.Import.BatchPause,
			AutoAccept:      cfg.Mapper.AutoAccept,
			EnhancerTrigger: cfg.Mapper.EnhancerTrigger,
			MaxConcurrent:   cfg.Enhancer.MaxConcurrent,
			MaxSampleRows:   cfg.Enhancer.MaxSampleRows,
			MaxActiveRuns:   cfg.Import.MaxActiveRuns,
			RunTimeout:      cfg.Import.RunTimeout,
			Retention:       cfg.Import.Retention,
			Matcher:         mapper.Config{CandidateFloor: cfg.Mapper.CandidateFloor},
			ParseOptions: csvio.Options{
				MaxBytes:       cfg.Import.MaxFileSize,
				HeaderScanRows: cfg.Import.HeaderScanRows,
				SampleValues:   cfg.Import.SampleValues,
			},
		},
		slog.Default(),
	)

	slog.Info("catalogue loaded",
		"entity", cat.Entity,
		"version", cat.Version,
		"fields", len(cat.Fields),
	)

	// Create server with config
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let in-flight import runs reach a batch boundary before exit.
		if err := service.Drain(shutdownCtx); err != nil {
			slog.Warn("shutdown with runs still active", "active", service.ActiveRuns())
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
