// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dashmark/internal/models"
)

func insertClick(t *testing.T, db *DB, itemID, kind string, at time.Time) {
	t.Helper()
	ev := models.NewClickEvent(uuid.NewString(), itemID, kind, at, time.UTC)
	if err := db.InsertClick(ctxT(t), &ev); err != nil {
		t.Fatalf("InsertClick() error = %v", err)
	}
}

func enrichedPageview(t *testing.T, db *DB, at time.Time, loc *models.Location) {
	t.Helper()
	id := insertPageview(t, db, "/", "203.0.113.1", uuid.NewString(), at)
	if err := db.MarkPageviewEnriched(ctxT(t), id, loc); err != nil {
		t.Fatal(err)
	}
}

func TestCountEventsByBucket(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	insertPageview(t, db, "/", "1.1.1.1", "a", base.Add(5*time.Minute))
	insertPageview(t, db, "/", "1.1.1.1", "a", base.Add(50*time.Minute))
	insertPageview(t, db, "/", "1.1.1.1", "a", base.Add(2*time.Hour+time.Minute))
	insertPageview(t, db, "/", "1.1.1.1", "a", base.Add(-time.Minute)) // before window

	got, err := db.CountEventsByBucket(ctxT(t), SourcePageviews, GranularityHour, base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("CountEventsByBucket() error = %v", err)
	}
	want := []models.TimeBucket{
		{Start: base, Count: 2},
		{Start: base.Add(2 * time.Hour), Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d buckets, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || got[i].Count != want[i].Count {
			t.Errorf("bucket %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	minutes, err := db.CountEventsByBucket(ctxT(t), SourcePageviews, GranularityMinute, base, base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(minutes) != 2 {
		t.Errorf("minute buckets = %d, want 2", len(minutes))
	}

	quarters, err := db.CountEventsByBucket(ctxT(t), SourcePageviews, GranularityQuarterHour, base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	wantQuarters := []time.Time{base, base.Add(45 * time.Minute), base.Add(2 * time.Hour)}
	if len(quarters) != len(wantQuarters) {
		t.Fatalf("quarter-hour buckets = %+v, want starts %v", quarters, wantQuarters)
	}
	for i, start := range wantQuarters {
		if !quarters[i].Start.Equal(start) || quarters[i].Count != 1 {
			t.Errorf("quarter bucket %d = %+v, want %v = 1", i, quarters[i], start)
		}
	}

	if _, err := db.CountEventsByBucket(ctxT(t), SourcePageviews, "fortnight", base, base); err == nil {
		t.Error("expected error for unsupported granularity")
	}
	if _, err := db.CountEventsByBucket(ctxT(t), EventSource("nope"), GranularityHour, base, base); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestCountEventsByBucket_ClickKinds(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	insertClick(t, db, "b1", models.ItemKindBookmark, base.Add(time.Minute))
	insertClick(t, db, "b2", models.ItemKindBookmark, base.Add(2*time.Minute))
	insertClick(t, db, "s1", models.ItemKindService, base.Add(3*time.Minute))

	tests := []struct {
		src  EventSource
		want int64
	}{
		{SourceClicks, 3},
		{SourceBookmarks, 2},
		{SourceServices, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.src), func(t *testing.T) {
			got, err := db.CountEventsByBucket(ctxT(t), tt.src, GranularityHour, base, base.Add(time.Hour))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Count != tt.want {
				t.Errorf("buckets = %+v, want single bucket with %d", got, tt.want)
			}
		})
	}
}

func TestGeoBreakdown(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()
	start, end := now.Add(-time.Hour), now.Add(time.Hour)

	us := func(city string, lat, lon float64) *models.Location {
		return &models.Location{CountryCode: "US", CountryName: strPtr("United States"), City: strPtr(city), Latitude: f64Ptr(lat), Longitude: f64Ptr(lon)}
	}
	enrichedPageview(t, db, now, us("Austin", 30, -97))
	enrichedPageview(t, db, now, us("Austin", 32, -99))
	enrichedPageview(t, db, now, us("Boston", 42, -71))
	enrichedPageview(t, db, now, &models.Location{CountryCode: "DE", CountryName: strPtr("Germany"), Latitude: f64Ptr(51), Longitude: f64Ptr(10)})
	enrichedPageview(t, db, now, &models.Location{CountryCode: models.UnknownCountry})
	enrichedPageview(t, db, now, nil)                       // private or failed lookup
	insertPageview(t, db, "/", "8.8.8.8", "pending", now) // not yet enriched

	countries, err := db.GeoBreakdown(ctxT(t), GeoLevelCountry, start, end, 10)
	if err != nil {
		t.Fatalf("GeoBreakdown(country) error = %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("countries = %+v, want US and DE", countries)
	}
	if countries[0].CountryCode != "US" || countries[0].Count != 3 || countries[0].CountryName != "United States" {
		t.Errorf("first country = %+v", countries[0])
	}
	if countries[0].Latitude == nil || math.Abs(*countries[0].Latitude-(30.0+32.0+42.0)/3) > 1e-9 {
		t.Errorf("US avg latitude = %v", countries[0].Latitude)
	}
	if countries[0].City != "" {
		t.Errorf("country level should not carry a city, got %q", countries[0].City)
	}

	cities, err := db.GeoBreakdown(ctxT(t), GeoLevelCity, start, end, 10)
	if err != nil {
		t.Fatalf("GeoBreakdown(city) error = %v", err)
	}
	if len(cities) != 2 {
		t.Fatalf("cities = %+v, want Austin and Boston", cities)
	}
	if cities[0].City != "Austin" || cities[0].Count != 2 || *cities[0].Longitude != -98 {
		t.Errorf("first city = %+v", cities[0])
	}

	limited, err := db.GeoBreakdown(ctxT(t), GeoLevelCountry, start, end, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d rows", len(limited))
	}

	if _, err := db.GeoBreakdown(ctxT(t), "planet", start, end, 10); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestClickHeatmapCounts(t *testing.T) {
	db := setupTestDB(t)
	// 2026-04-05 is a Sunday
	sunday9 := time.Date(2026, 4, 5, 9, 15, 0, 0, time.UTC)

	insertClick(t, db, "b1", models.ItemKindBookmark, sunday9)
	insertClick(t, db, "b1", models.ItemKindBookmark, sunday9.Add(10*time.Minute))
	insertClick(t, db, "s1", models.ItemKindService, sunday9.Add(24*time.Hour+2*time.Hour))

	cells, err := db.ClickHeatmapCounts(ctxT(t), SourceClicks, sunday9.Add(-time.Hour), sunday9.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ClickHeatmapCounts() error = %v", err)
	}
	want := []models.HeatmapCell{
		{DayOfWeek: 0, Hour: 9, Value: 2},
		{DayOfWeek: 1, Hour: 11, Value: 1},
	}
	if len(cells) != len(want) {
		t.Fatalf("cells = %+v, want %+v", cells, want)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d = %+v, want %+v", i, cells[i], want[i])
		}
	}

	services, err := db.ClickHeatmapCounts(ctxT(t), SourceServices, sunday9.Add(-time.Hour), sunday9.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].Value != 1 {
		t.Errorf("service cells = %+v", services)
	}

	if _, err := db.ClickHeatmapCounts(ctxT(t), SourcePageviews, sunday9, sunday9); err == nil {
		t.Error("expected error for pageview source")
	}
}

func TestTopItemClicks(t *testing.T) {
	db := setupTestDB(t)
	curEnd := time.Now().UTC()
	curStart := curEnd.Add(-7 * 24 * time.Hour)
	prevStart := curStart.Add(-7 * 24 * time.Hour)

	if err := db.UpsertItem(ctxT(t), models.DashboardItem{ID: "b1", Kind: models.ItemKindBookmark, Name: "Grafana"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertItem(ctxT(t), models.DashboardItem{ID: "b1", Kind: models.ItemKindBookmark, Name: "Grafana Cloud"}); err != nil {
		t.Fatal(err)
	}

	inCur := curStart.Add(time.Hour)
	inPrev := prevStart.Add(time.Hour)
	for i := 0; i < 3; i++ {
		insertClick(t, db, "b1", models.ItemKindBookmark, inCur)
	}
	for i := 0; i < 2; i++ {
		insertClick(t, db, "b1", models.ItemKindBookmark, inPrev)
	}
	insertClick(t, db, "b2", models.ItemKindBookmark, inCur)
	insertClick(t, db, "b3", models.ItemKindBookmark, inPrev) // no current clicks
	insertClick(t, db, "s1", models.ItemKindService, inCur)
	insertClick(t, db, "s1", models.ItemKindService, inCur)

	items, err := db.TopItemClicks(ctxT(t), SourceBookmarks, prevStart, curStart, curEnd, 10)
	if err != nil {
		t.Fatalf("TopItemClicks() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v, want b1 and b2", items)
	}
	if items[0].ItemID != "b1" || items[0].Name != "Grafana Cloud" || items[0].Current != 3 || items[0].Previous != 2 {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].ItemID != "b2" || items[1].Name != "b2" || items[1].Current != 1 || items[1].Previous != 0 {
		t.Errorf("second item = %+v", items[1])
	}

	all, err := db.TopItemClicks(ctxT(t), SourceClicks, prevStart, curStart, curEnd, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ItemID != "b1" || all[1].ItemID != "s1" {
		t.Errorf("all kinds top 2 = %+v", all)
	}
}
