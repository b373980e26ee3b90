// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package metrics provides Prometheus metrics for the ingestion and enrichment
pipeline.

All collectors are registered on the default registry through promauto and
are exposed at /metrics by the API router:

	curl http://localhost:8080/metrics

# Available Metrics

API:
  - api_requests_total{method, endpoint, status_code}
  - api_request_duration_seconds{method, endpoint}
  - api_active_requests
  - api_rate_limit_hits_total{endpoint}

Ingestion and enrichment:
  - events_ingested_total{kind}
  - enrichment_scheduled_total{result}
  - enrichment_outcomes_total{outcome}
  - enrichment_duration_seconds

Geolocation:
  - geo_provider_lookups_total{provider, result}
  - geo_provider_lookup_duration_seconds{provider}
  - geo_local_database_age_seconds

Caches:
  - cache_hits_total{cache_type}, cache_misses_total{cache_type}
  - cache_write_failures_total{cache_type}
  - cache_entries{cache_type}, cache_evictions_total{cache_type}

Circuit breaker (remote provider):
  - circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total{name, result}
  - circuit_breaker_state_transitions_total{name, from_state, to_state}

# Example Alert

	- alert: GeoProviderFailing
	  expr: rate(geo_provider_lookups_total{result="failure"}[5m])
	        / rate(geo_provider_lookups_total[5m]) > 0.5
	  for: 10m
*/
package metrics
