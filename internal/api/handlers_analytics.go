// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"context"
	"net/http"

	"github.com/tomtom215/dashmark/internal/analytics"
	"github.com/tomtom215/dashmark/internal/validation"
)

// AnalyticsParams is the union of analytics query string parameters. Each
// endpoint reads the subset it needs; the service applies the remaining
// per-endpoint rules.
type AnalyticsParams struct {
	Period              string `json:"period" validate:"omitempty,oneof=hour day week month year custom"`
	StartDate           string `json:"startDate" validate:"omitempty,ymd"`
	EndDate             string `json:"endDate" validate:"omitempty,ymd"`
	Type                string `json:"type" validate:"omitempty,oneof=pageviews clicks bookmarks services"`
	GroupBy             string `json:"groupBy" validate:"omitempty,oneof=hour day week month"`
	Level               string `json:"level" validate:"omitempty,oneof=country city"`
	DownsampleThreshold int    `json:"downsampleThreshold" validate:"gte=0,lte=100000"`
	Limit               int    `json:"limit" validate:"gte=0"`
}

func (p AnalyticsParams) rangeQuery() analytics.RangeQuery {
	return analytics.RangeQuery{Period: p.Period, StartDate: p.StartDate, EndDate: p.EndDate}
}

// parseAnalyticsParams reads and validates the query string, answering 400
// itself on failure.
func parseAnalyticsParams(w http.ResponseWriter, r *http.Request) (AnalyticsParams, bool) {
	q := r.URL.Query()
	p := AnalyticsParams{
		Period:    q.Get("period"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Type:      q.Get("type"),
		GroupBy:   q.Get("groupBy"),
		Level:     q.Get("level"),
	}

	var verr *validation.RequestValidationError
	if p.DownsampleThreshold, verr = getIntParam(r, "downsampleThreshold"); verr != nil {
		respondAPIError(w, http.StatusBadRequest, toModelError(verr))
		return p, false
	}
	if p.Limit, verr = getIntParam(r, "limit"); verr != nil {
		respondAPIError(w, http.StatusBadRequest, toModelError(verr))
		return p, false
	}

	if apiErr := validateRequest(&p); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return p, false
	}
	return p, true
}

// AnalyticsTimeSeries handles GET /api/v1/analytics/time-series.
func (h *Handler) AnalyticsTimeSeries(w http.ResponseWriter, r *http.Request) {
	p, ok := parseAnalyticsParams(w, r)
	if !ok {
		return
	}
	query := analytics.TimeSeriesQuery{
		RangeQuery:          p.rangeQuery(),
		Type:                p.Type,
		GroupBy:             p.GroupBy,
		DownsampleThreshold: p.DownsampleThreshold,
	}
	NewAnalyticsQueryExecutor(h).Execute(w, r, "AnalyticsTimeSeries", query,
		func(ctx context.Context) (interface{}, error) {
			return h.analytics.TimeSeries(ctx, query)
		})
}

// AnalyticsGeo handles GET /api/v1/analytics/geo.
func (h *Handler) AnalyticsGeo(w http.ResponseWriter, r *http.Request) {
	p, ok := parseAnalyticsParams(w, r)
	if !ok {
		return
	}
	query := analytics.GeoQuery{
		RangeQuery: p.rangeQuery(),
		Level:      p.Level,
		Limit:      p.Limit,
	}
	NewAnalyticsQueryExecutor(h).Execute(w, r, "AnalyticsGeo", query,
		func(ctx context.Context) (interface{}, error) {
			return h.analytics.Geo(ctx, query)
		})
}

// AnalyticsHeatmap handles GET /api/v1/analytics/heatmap.
func (h *Handler) AnalyticsHeatmap(w http.ResponseWriter, r *http.Request) {
	p, ok := parseAnalyticsParams(w, r)
	if !ok {
		return
	}
	query := analytics.HeatmapQuery{
		RangeQuery: p.rangeQuery(),
		Type:       p.Type,
	}
	NewAnalyticsQueryExecutor(h).Execute(w, r, "AnalyticsHeatmap", query,
		func(ctx context.Context) (interface{}, error) {
			return h.analytics.Heatmap(ctx, query)
		})
}

// AnalyticsTopItems handles GET /api/v1/analytics/top-items.
func (h *Handler) AnalyticsTopItems(w http.ResponseWriter, r *http.Request) {
	p, ok := parseAnalyticsParams(w, r)
	if !ok {
		return
	}
	query := analytics.TopItemsQuery{
		RangeQuery: p.rangeQuery(),
		Type:       p.Type,
		Limit:      p.Limit,
	}
	NewAnalyticsQueryExecutor(h).Execute(w, r, "AnalyticsTopItems", query,
		func(ctx context.Context) (interface{}, error) {
			return h.analytics.TopItems(ctx, query)
		})
}
