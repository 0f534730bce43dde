// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/corner-places/venue-engine/cmd/venue-engine-api/handlers"
	"github.com/corner-places/venue-engine/cmd/venue-engine-api/middleware"
	"github.com/corner-places/venue-engine/internal/observability"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services holds the dependencies the routes are built from.
type Services struct {
	Searcher handlers.Searcher
	Places   handlers.PlaceReader
	Reviews  handlers.ReviewReader
	DB       Pinger
	Metrics  *observability.Metrics
}

// AppConfig holds application configuration.
type AppConfig struct {
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	SearchRateLimit float64
	SearchBurst     int
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, svc Services, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger, svc.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"venue-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if svc.DB != nil {
			if err := svc.DB.PingContext(r.Context()); err != nil {
				logger.Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", svc.Metrics.Handler())

	searchHandler := handlers.NewSearchHandler(logger, svc.Searcher)
	venueHandler := handlers.NewVenueHandler(logger, svc.Places, svc.Reviews)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.SearchRateLimit, cfg.SearchBurst))
			r.Get("/", searchHandler.Get)
			r.Post("/", searchHandler.Post)
		})

		r.Route("/venues", func(r chi.Router) {
			r.Get("/", venueHandler.List)
			r.Get("/{cornerPlaceID}", venueHandler.Get)
		})
	})

	return r
}
