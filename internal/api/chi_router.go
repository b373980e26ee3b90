// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/dashmark/internal/auth"
	"github.com/tomtom215/dashmark/internal/middleware"
)

// Router binds handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	auth          *auth.Middleware
}

// NewRouter creates a router. A nil authMiddleware leaves analytics open.
func NewRouter(handler *Handler, chiMw *ChiMiddleware, authMiddleware *auth.Middleware) *Router {
	if chiMw == nil {
		chiMw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMw,
		auth:          authMiddleware,
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(APISecurityHeaders())
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered
	r.Use(chiMiddleware(middleware.PrometheusMetrics))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Post("/pageview", router.handler.IngestPageview)
		r.Post("/click", router.handler.IngestClick)
	})

	r.Route("/api/v1/analytics", func(r chi.Router) {
		if router.auth != nil {
			r.Use(router.auth.Authenticate)
		}
		r.Use(chimiddleware.Compress(5, "application/json"))
		r.Get("/time-series", router.handler.AnalyticsTimeSeries)
		r.Get("/geo", router.handler.AnalyticsGeo)
		r.Get("/heatmap", router.handler.AnalyticsHeatmap)
		r.Get("/top-items", router.handler.AnalyticsTopItems)
	})

	return r
}
