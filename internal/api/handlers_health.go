// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/dashmark/internal/geoip"
)

const readinessTimeout = 2 * time.Second

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDown     = "unhealthy"
)

// ReadinessReport is the body of GET /health/ready.
type ReadinessReport struct {
	Status             string         `json:"status"`
	DatabaseConnected  bool           `json:"database_connected"`
	Providers          []geoip.Health `json:"providers"`
	EnrichmentInFlight int64          `json:"enrichment_in_flight"`
	Uptime             float64        `json:"uptime_seconds"`
}

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports 503 when the database is unreachable. A geo provider
// that is not ready only degrades the status, since ingestion still works
// and events stay unenriched.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	report := ReadinessReport{
		Status:    StatusHealthy,
		Providers: []geoip.Health{},
		Uptime:    time.Since(h.startTime).Seconds(),
	}

	report.DatabaseConnected = h.db != nil && h.db.Ping(ctx) == nil

	if h.providers != nil {
		if hs := h.providers.Health(); hs != nil {
			report.Providers = hs
		}
		for _, p := range report.Providers {
			if !p.Ready {
				report.Status = StatusDegraded
			}
		}
	}
	if h.queue != nil {
		report.EnrichmentInFlight = h.queue.InFlight()
	}

	status := http.StatusOK
	if !report.DatabaseConnected {
		report.Status = StatusDown
		status = http.StatusServiceUnavailable
	}
	respondSuccess(w, status, report)
}
