// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package models

import "time"

// TimeBucket is one raw (start, count) row from a bucketed count query.
type TimeBucket struct {
	Start time.Time
	Count int64
}

// TimeSeries is chart-ready output: one label per point, one dataset per
// series.
type TimeSeries struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// GeoLocationStat is one country or city group.
type GeoLocationStat struct {
	CountryCode string   `json:"country_code"`
	CountryName string   `json:"country_name,omitempty"`
	City        string   `json:"city,omitempty"`
	Region      string   `json:"region,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Count       int64    `json:"count"`
}

type GeoBreakdown struct {
	Locations []GeoLocationStat `json:"locations"`
	Total     int64             `json:"total"`
}

// HeatmapCell is one (dayOfWeek, hour) cell. DayOfWeek 0 is Sunday.
type HeatmapCell struct {
	Hour      int   `json:"hour"`
	DayOfWeek int   `json:"dayOfWeek"`
	Value     int64 `json:"value"`
}

type Heatmap struct {
	Data     []HeatmapCell `json:"data"`
	MaxValue int64         `json:"maxValue"`
}

// ItemClickCount is the raw per-item click count for the current and the
// preceding window.
type ItemClickCount struct {
	ItemID   string
	ItemKind string
	Name     string
	Current  int64
	Previous int64
}

// TopItem is one ranked item with its trend in percent.
type TopItem struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Name   string  `json:"name"`
	Clicks int64   `json:"clicks"`
	Trend  float64 `json:"trend"`
}

type TopItems struct {
	Items []TopItem `json:"items"`
}
