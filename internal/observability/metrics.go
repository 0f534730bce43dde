package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus registry and the pipeline collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	venuesReconciled    *prometheus.CounterVec
	venuesPersisted     *prometheus.CounterVec
	embeddingsGenerated *prometheus.CounterVec
	embeddingRetries    prometheus.Counter
	embeddingTokens     prometheus.Counter
	searchDuration      *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewMetrics creates an isolated registry labelled with the service name.
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, registry)

	m := &Metrics{
		Registry: registry,
		venuesReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venues_reconciled_total",
			Help: "Venues processed by the reconciler, by outcome.",
		}, []string{"status"}),
		venuesPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venues_persisted_total",
			Help: "Venues written to the record store, by outcome.",
		}, []string{"status"}),
		embeddingsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embeddings_generated_total",
			Help: "Embedding generation attempts per venue, by outcome.",
		}, []string{"status"}),
		embeddingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedding_retries_total",
			Help: "Retried calls to the embedding service.",
		}),
		embeddingTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedding_tokens_total",
			Help: "Tokens reported by the embedding service.",
		}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Latency of location-aware searches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"fallback"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.venuesReconciled,
		m.venuesPersisted,
		m.embeddingsGenerated,
		m.embeddingRetries,
		m.embeddingTokens,
		m.searchDuration,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// VenueReconciled records one reconciler outcome ("ok" or "failed").
func (m *Metrics) VenueReconciled(status string) {
	if m == nil {
		return
	}
	m.venuesReconciled.WithLabelValues(status).Inc()
}

// VenuePersisted records one store outcome.
func (m *Metrics) VenuePersisted(status string) {
	if m == nil {
		return
	}
	m.venuesPersisted.WithLabelValues(status).Inc()
}

// EmbeddingGenerated records one per-venue embedding outcome.
func (m *Metrics) EmbeddingGenerated(status string) {
	if m == nil {
		return
	}
	m.embeddingsGenerated.WithLabelValues(status).Inc()
}

// EmbeddingRetried counts a retry against the embedding service.
func (m *Metrics) EmbeddingRetried() {
	if m == nil {
		return
	}
	m.embeddingRetries.Inc()
}

// TokensUsed adds reported token usage.
func (m *Metrics) TokensUsed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingTokens.Add(float64(n))
}

// ObserveSearch records search latency; fallback names the widest stage reached.
func (m *Metrics) ObserveSearch(fallback string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.WithLabelValues(fallback).Observe(d.Seconds())
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
