// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Ingestion Metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Total number of events persisted by the ingestion endpoints",
		},
		[]string{"kind"}, // "pageview", "click"
	)

	// Enrichment Metrics
	EnrichmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_outcomes_total",
			Help: "Total number of enrichment tasks by terminal outcome",
		},
		[]string{"outcome"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Duration of a single enrichment task",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	EnrichmentScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_scheduled_total",
			Help: "Total number of enrichment tasks handed to the queue",
		},
		[]string{"result"}, // "published", "deferred", "dropped", "failed"
	)

	// Geolocation Metrics
	GeoProviderLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_provider_lookups_total",
			Help: "Total number of geo provider lookups",
		},
		[]string{"provider", "result"}, // result: "success", "failure"
	)

	GeoProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geo_provider_lookup_duration_seconds",
			Help:    "Duration of geo provider lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	GeoDatabaseAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geo_local_database_age_seconds",
			Help: "Age of the local geo database file based on its modification time",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "geo", "geo_l1", "analytics"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_write_failures_total",
			Help: "Total number of failed cache writes",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (TTL expiry)",
		},
		[]string{"cache_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Retention Metrics
	RetentionRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_rows_deleted_total",
			Help: "Total number of event rows removed by the retention job",
		},
		[]string{"table"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEnrichment records the terminal outcome of one enrichment task.
func RecordEnrichment(outcome string, duration time.Duration) {
	EnrichmentOutcomes.WithLabelValues(outcome).Inc()
	EnrichmentDuration.Observe(duration.Seconds())
}

// RecordGeoLookup records one provider lookup.
func RecordGeoLookup(provider string, ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	GeoProviderLookups.WithLabelValues(provider, result).Inc()
	GeoProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup records a hit or miss for cacheType.
func RecordCacheLookup(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}
