// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package middleware provides request ID propagation and Prometheus
instrumentation for the HTTP API.

Both are written as http.HandlerFunc decorators and adapted to chi's
func(http.Handler) http.Handler form by the api package:

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chiMiddleware(middleware.PrometheusMetrics))

RequestID honours an upstream X-Request-ID when it is short and printable,
otherwise it generates a UUID. The ID is echoed in the response and placed
in the logging context together with a fresh correlation ID, so every log
line written through logging.Ctx carries both.

PrometheusMetrics labels requests by chi route pattern rather than raw path,
keeping label cardinality bounded for routes with parameters.
*/
package middleware
