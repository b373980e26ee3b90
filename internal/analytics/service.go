// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package analytics turns stored pageviews and clicks into chart-ready
// aggregates: time series, geographic breakdowns, a weekday-by-hour heatmap
// and ranked items with trends.
//
// Timestamps are stored in UTC. Time series and the pageview heatmap are
// read at minute or hour granularity and folded into buckets of the
// configured timezone here; click heatmaps use the hour and weekday stored
// with each click.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/downsample"
	"github.com/tomtom215/dashmark/internal/models"
	"github.com/tomtom215/dashmark/internal/validation"
)

// HeatmapCells is the size of the weekday by hour grid.
const HeatmapCells = 7 * 24

// Defaults applied when a query leaves a field empty.
const (
	DefaultDownsampleThreshold = 150
	DefaultLimit               = 10
	DefaultMaxLimit            = 100
)

// Store is the aggregate query surface of the database.
type Store interface {
	CountEventsByBucket(ctx context.Context, src database.EventSource, granularity string, start, end time.Time) ([]models.TimeBucket, error)
	GeoBreakdown(ctx context.Context, level string, start, end time.Time, limit int) ([]models.GeoLocationStat, error)
	ClickHeatmapCounts(ctx context.Context, src database.EventSource, start, end time.Time) ([]models.HeatmapCell, error)
	TopItemClicks(ctx context.Context, src database.EventSource, prevStart, curStart, curEnd time.Time, limit int) ([]models.ItemClickCount, error)
}

// Options tunes the service.
type Options struct {
	DownsampleThreshold int
	MaxLimit            int
	Location            *time.Location
}

// Service answers analytics queries.
type Service struct {
	store Store
	opts  Options
	now   func() time.Time
}

// NewService returns a Service over store. Zero options take defaults.
func NewService(store Store, opts Options) *Service {
	if opts.DownsampleThreshold <= 0 {
		opts.DownsampleThreshold = DefaultDownsampleThreshold
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{store: store, opts: opts, now: time.Now}
}

// TimeSeriesQuery selects a counted series.
type TimeSeriesQuery struct {
	RangeQuery
	Type                string `json:"type"`
	GroupBy             string `json:"groupBy,omitempty"`
	DownsampleThreshold int    `json:"downsampleThreshold,omitempty"`
}

// GeoQuery selects a geographic breakdown.
type GeoQuery struct {
	RangeQuery
	Level string `json:"level"`
	Limit int    `json:"limit"`
}

// HeatmapQuery selects a weekday by hour grid.
type HeatmapQuery struct {
	RangeQuery
	Type string `json:"type"`
}

// TopItemsQuery selects the most clicked items.
type TopItemsQuery struct {
	RangeQuery
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

var datasetLabels = map[database.EventSource]string{
	database.SourcePageviews: "Pageviews",
	database.SourceClicks:    "Clicks",
	database.SourceBookmarks: "Bookmark clicks",
	database.SourceServices:  "Service clicks",
}

// TimeSeries returns one zero-filled dataset of event counts per bucket,
// downsampled to the requested threshold.
func (s *Service) TimeSeries(ctx context.Context, q TimeSeriesQuery) (*models.TimeSeries, error) {
	src, err := parseSource(q.Type, database.SourcePageviews, false)
	if err != nil {
		return nil, err
	}
	w, err := ResolveWindow(q.RangeQuery, s.now(), s.opts.Location)
	if err != nil {
		return nil, err
	}
	bucket := w.Bucket
	if q.GroupBy != "" {
		if !ValidGroupBy(q.GroupBy) {
			return nil, validation.NewFieldError("groupBy", "oneof", "groupBy must be one of: hour day week month")
		}
		bucket = q.GroupBy
	}

	granularity := database.GranularityQuarterHour
	if bucket == BucketMinute {
		granularity = database.GranularityMinute
	}
	rows, err := s.store.CountEventsByBucket(ctx, src, granularity, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("time series: %w", err)
	}

	series := foldSeries(rows, w, bucket)

	threshold := q.DownsampleThreshold
	if threshold <= 0 {
		threshold = s.opts.DownsampleThreshold
	}
	series = downsample.Series(series, threshold)

	out := &models.TimeSeries{
		Labels:   make([]string, len(series)),
		Datasets: []models.Dataset{{Label: datasetLabels[src], Data: make([]float64, len(series))}},
	}
	for i, p := range series {
		out.Labels[i] = formatLabel(p.Date, bucket)
		out.Datasets[0].Data[i] = p.Count
	}
	return out, nil
}

// foldSeries maps UTC rows onto local buckets covering the window, filling
// gaps with zero. Rows must be no coarser than a quarter hour.
func foldSeries(rows []models.TimeBucket, w Window, bucket string) []downsample.SeriesPoint {
	counts := make(map[int64]float64, len(rows))
	for _, r := range rows {
		key := truncate(r.Start.In(w.Location), bucket).Unix()
		counts[key] += float64(r.Count)
	}

	var series []downsample.SeriesPoint
	for t := truncate(w.Start.In(w.Location), bucket); t.Before(w.End); t = nextBucket(t, bucket) {
		series = append(series, downsample.SeriesPoint{Date: t, Count: counts[t.Unix()]})
	}
	return series
}

// Geo groups enriched pageviews by country or city.
func (s *Service) Geo(ctx context.Context, q GeoQuery) (*models.GeoBreakdown, error) {
	level := q.Level
	if level == "" {
		level = database.GeoLevelCountry
	}
	if level != database.GeoLevelCountry && level != database.GeoLevelCity {
		return nil, validation.NewFieldError("level", "oneof", "level must be one of: country city")
	}
	w, err := ResolveWindow(q.RangeQuery, s.now(), s.opts.Location)
	if err != nil {
		return nil, err
	}

	locations, err := s.store.GeoBreakdown(ctx, level, w.Start, w.End, s.limit(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("geo breakdown: %w", err)
	}
	out := &models.GeoBreakdown{Locations: locations}
	if out.Locations == nil {
		out.Locations = []models.GeoLocationStat{}
	}
	for _, l := range out.Locations {
		out.Total += l.Count
	}
	return out, nil
}

// Heatmap returns exactly HeatmapCells cells ordered by weekday (0 is
// Sunday) then hour, with empty cells set to zero.
func (s *Service) Heatmap(ctx context.Context, q HeatmapQuery) (*models.Heatmap, error) {
	src, err := parseSource(q.Type, database.SourcePageviews, false)
	if err != nil {
		return nil, err
	}
	w, err := ResolveWindow(q.RangeQuery, s.now(), s.opts.Location)
	if err != nil {
		return nil, err
	}

	var grid [7][24]int64
	if src == database.SourcePageviews {
		rows, err := s.store.CountEventsByBucket(ctx, src, database.GranularityQuarterHour, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("heatmap: %w", err)
		}
		for _, r := range rows {
			local := r.Start.In(w.Location)
			grid[local.Weekday()][local.Hour()] += r.Count
		}
	} else {
		cells, err := s.store.ClickHeatmapCounts(ctx, src, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("heatmap: %w", err)
		}
		for _, c := range cells {
			if c.DayOfWeek < 0 || c.DayOfWeek > 6 || c.Hour < 0 || c.Hour > 23 {
				continue
			}
			grid[c.DayOfWeek][c.Hour] += c.Value
		}
	}

	return buildHeatmap(&grid), nil
}

func buildHeatmap(grid *[7][24]int64) *models.Heatmap {
	out := &models.Heatmap{Data: make([]models.HeatmapCell, 0, HeatmapCells)}
	for dow := 0; dow < 7; dow++ {
		for hour := 0; hour < 24; hour++ {
			v := grid[dow][hour]
			out.Data = append(out.Data, models.HeatmapCell{Hour: hour, DayOfWeek: dow, Value: v})
			if v > out.MaxValue {
				out.MaxValue = v
			}
		}
	}
	return out
}

// TopItems ranks clicked items in the window and compares each against the
// preceding window of equal length.
func (s *Service) TopItems(ctx context.Context, q TopItemsQuery) (*models.TopItems, error) {
	src, err := parseSource(q.Type, database.SourceClicks, true)
	if err != nil {
		return nil, err
	}
	w, err := ResolveWindow(q.RangeQuery, s.now(), s.opts.Location)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.TopItemClicks(ctx, src, w.PrevStart, w.Start, w.End, s.limit(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("top items: %w", err)
	}
	out := &models.TopItems{Items: make([]models.TopItem, len(rows))}
	for i, r := range rows {
		out.Items[i] = models.TopItem{
			ID:     r.ItemID,
			Kind:   r.ItemKind,
			Name:   r.Name,
			Clicks: r.Current,
			Trend:  Trend(r.Previous, r.Current),
		}
	}
	return out, nil
}

func (s *Service) limit(requested int) int {
	switch {
	case requested <= 0:
		if DefaultLimit > s.opts.MaxLimit {
			return s.opts.MaxLimit
		}
		return DefaultLimit
	case requested > s.opts.MaxLimit:
		return s.opts.MaxLimit
	}
	return requested
}

func parseSource(t string, def database.EventSource, clicksOnly bool) (database.EventSource, error) {
	if t == "" {
		return def, nil
	}
	src := database.EventSource(t)
	if !src.Valid() || (clicksOnly && src == database.SourcePageviews) {
		msg := "type must be one of: pageviews clicks bookmarks services"
		if clicksOnly {
			msg = "type must be one of: clicks bookmarks services"
		}
		return "", validation.NewFieldError("type", "oneof", msg)
	}
	return src, nil
}
