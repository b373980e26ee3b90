// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package api is the HTTP surface of Dashmark, routed with chi.

Endpoints:

	GET  /health/live                  process is up
	GET  /health/ready                 database ping and geo provider status
	GET  /metrics                      Prometheus exposition
	POST /api/v1/ingest/pageview       {"path": "/", "userAgent": "..."} -> 201 {"eventId": "..."}
	POST /api/v1/ingest/click          {"itemId": "...", "itemKind": "bookmark"} -> 201 {"success": true}
	GET  /api/v1/analytics/time-series ?period&startDate&endDate&type&groupBy&downsampleThreshold
	GET  /api/v1/analytics/geo         ?period&startDate&endDate&level&limit
	GET  /api/v1/analytics/heatmap     ?period&startDate&endDate&type
	GET  /api/v1/analytics/top-items   ?period&startDate&endDate&type&limit

Every JSON response uses the models.APIResponse envelope. Validation
failures are 400 with code VALIDATION_ERROR and per-field details.

Ingestion is rate limited per client IP with httprate and returns as soon
as the event is stored; geo enrichment runs later on the enrichment queue.
Analytics responses are cached in memory for analytics.cache_ttl and may be
guarded by a bearer token (see package auth).

Global middleware order:

	RequestID -> RealIP -> Recoverer -> security headers -> CORS -> Prometheus
*/
package api
