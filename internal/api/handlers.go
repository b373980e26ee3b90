// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"context"
	"time"

	"github.com/tomtom215/dashmark/internal/analytics"
	"github.com/tomtom215/dashmark/internal/cache"
	"github.com/tomtom215/dashmark/internal/geoip"
	"github.com/tomtom215/dashmark/internal/models"
)

// Ingester records raw events.
type Ingester interface {
	RecordPageview(ctx context.Context, path, userAgent, ip string) (string, error)
	RecordClick(ctx context.Context, itemID, kind, name string, at time.Time) (*models.ClickEvent, error)
}

// AnalyticsService answers the chart queries.
type AnalyticsService interface {
	TimeSeries(ctx context.Context, q analytics.TimeSeriesQuery) (*models.TimeSeries, error)
	Geo(ctx context.Context, q analytics.GeoQuery) (*models.GeoBreakdown, error)
	Heatmap(ctx context.Context, q analytics.HeatmapQuery) (*models.Heatmap, error)
	TopItems(ctx context.Context, q analytics.TopItemsQuery) (*models.TopItems, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderHealth reports the status of the configured geo providers.
type ProviderHealth interface {
	Health() []geoip.Health
}

// QueueStats exposes enrichment backlog for the readiness report.
type QueueStats interface {
	InFlight() int64
}

// Dependencies groups what the handlers need. Only Ingest and Analytics
// are required.
type Dependencies struct {
	Ingest    Ingester
	Analytics AnalyticsService
	DB        Pinger
	Providers ProviderHealth
	Queue     QueueStats
	Cache     *cache.Cache
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_ingest.go: pageview and click ingestion
//   - handlers_analytics.go: chart endpoints, via AnalyticsQueryExecutor
//   - handlers_health.go: liveness and readiness
type Handler struct {
	ingest    Ingester
	analytics AnalyticsService
	db        Pinger
	providers ProviderHealth
	queue     QueueStats
	cache     *cache.Cache
	startTime time.Time
}

// NewHandler creates a handler from deps.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		ingest:    deps.Ingest,
		analytics: deps.Analytics,
		db:        deps.DB,
		providers: deps.Providers,
		queue:     deps.Queue,
		cache:     deps.Cache,
		startTime: time.Now(),
	}
}
