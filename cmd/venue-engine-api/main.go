// Package main provides the Venue Engine API server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/retrieval"
	"github.com/corner-places/venue-engine/internal/storage"
)

func main() {
	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("vector", cfg.Vector.Adapter).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting Venue Engine API")

	metrics := observability.NewMetrics(cfg.Observability.ServiceName)

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	repos := storage.NewRepositories(db)

	vectors, err := storage.OpenVectorStore(ctx, cfg.Vector, db, logger)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer vectors.Close()

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return err
	}

	var client cache.Client
	if cfg.Retrieval.CacheResults {
		client, err = cache.Open(cfg.Cache)
		if err != nil {
			// Search still works uncached.
			logger.Warn().Err(err).Str("driver", cfg.Cache.Driver).Msg("Cache unavailable, serving uncached")
			client = nil
		} else {
			defer client.Close()
		}
	}

	searcher := retrieval.NewSearcher(logger, metrics, embedder, vectors, repos.Places, client, retrieval.ExtractorFrom(cfg, logger),
		retrieval.SearcherConfigFrom(cfg))

	if notifier, ok := client.(cache.Notifier); ok && searcher.Cache() != nil {
		go func() {
			if err := searcher.Cache().WatchInvalidations(ctx, notifier); err != nil {
				logger.Warn().Err(err).Msg("Stopped watching cache invalidations")
			}
		}()
	}

	appCfg := DefaultAppConfig()
	if cfg.Server.RequestTimeout > 0 {
		appCfg.RequestTimeout = cfg.Server.RequestTimeout
	}
	appCfg.SearchRateLimit = cfg.Server.SearchRateLimit
	appCfg.SearchBurst = cfg.Server.SearchBurst

	router := NewRouter(logger, Services{
		Searcher: searcher,
		Places:   repos.Places,
		Reviews:  repos.Reviews,
		DB:       db,
		Metrics:  metrics,
	}, appCfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return serveErr
}
