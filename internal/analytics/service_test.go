// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/models"
	"github.com/tomtom215/dashmark/internal/validation"
)

type stubStore struct {
	buckets  []models.TimeBucket
	geo      []models.GeoLocationStat
	clickMap []models.HeatmapCell
	items    []models.ItemClickCount
	err      error

	gotSource      database.EventSource
	gotGranularity string
	gotStart       time.Time
	gotEnd         time.Time
	gotPrevStart   time.Time
	gotLimit       int
	gotLevel       string
}

func (s *stubStore) CountEventsByBucket(_ context.Context, src database.EventSource, granularity string, start, end time.Time) ([]models.TimeBucket, error) {
	s.gotSource, s.gotGranularity, s.gotStart, s.gotEnd = src, granularity, start, end
	return s.buckets, s.err
}

func (s *stubStore) GeoBreakdown(_ context.Context, level string, start, end time.Time, limit int) ([]models.GeoLocationStat, error) {
	s.gotLevel, s.gotStart, s.gotEnd, s.gotLimit = level, start, end, limit
	return s.geo, s.err
}

func (s *stubStore) ClickHeatmapCounts(_ context.Context, src database.EventSource, start, end time.Time) ([]models.HeatmapCell, error) {
	s.gotSource, s.gotStart, s.gotEnd = src, start, end
	return s.clickMap, s.err
}

func (s *stubStore) TopItemClicks(_ context.Context, src database.EventSource, prevStart, curStart, curEnd time.Time, limit int) ([]models.ItemClickCount, error) {
	s.gotSource, s.gotPrevStart, s.gotStart, s.gotEnd, s.gotLimit = src, prevStart, curStart, curEnd, limit
	return s.items, s.err
}

func newTestService(store Store, loc *time.Location, now time.Time) *Service {
	svc := NewService(store, Options{Location: loc})
	svc.now = func() time.Time { return now }
	return svc
}

func assertValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if got := verr.Errors()[0].Field(); got != field {
		t.Errorf("field = %q, want %q", got, field)
	}
}

func TestTimeSeries_ZeroFilledHourly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubStore{buckets: []models.TimeBucket{
		{Start: time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC), Count: 5},
		{Start: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), Count: 2},
	}}
	svc := newTestService(store, time.UTC, now)

	ts, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{RangeQuery: RangeQuery{Period: PeriodDay}})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}

	if store.gotGranularity != database.GranularityQuarterHour || store.gotSource != database.SourcePageviews {
		t.Errorf("queried %s at %s", store.gotSource, store.gotGranularity)
	}
	if len(ts.Labels) != 24 || len(ts.Datasets) != 1 || len(ts.Datasets[0].Data) != 24 {
		t.Fatalf("got %d labels, %d datasets", len(ts.Labels), len(ts.Datasets))
	}
	if ts.Labels[0] != "2026-03-09 12:00" || ts.Labels[23] != "2026-03-10 11:00" {
		t.Errorf("labels = %s .. %s", ts.Labels[0], ts.Labels[23])
	}
	data := ts.Datasets[0].Data
	if data[1] != 5 || data[23] != 2 || data[0] != 0 || data[12] != 0 {
		t.Errorf("data = %v", data)
	}
	if ts.Datasets[0].Label != "Pageviews" {
		t.Errorf("dataset label = %q", ts.Datasets[0].Label)
	}
}

func TestTimeSeries_FoldsIntoLocalDays(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubStore{buckets: []models.TimeBucket{
		{Start: time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC), Count: 4}, // 23:00 on the 9th locally
		{Start: time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), Count: 3}, // 01:00 on the 10th locally
		{Start: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), Count: 1},
	}}
	svc := newTestService(store, loc, now)

	ts, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{RangeQuery: RangeQuery{Period: PeriodWeek}, Type: "clicks"})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	if len(ts.Labels) != 8 {
		t.Fatalf("len(labels) = %d, want 8 (%v)", len(ts.Labels), ts.Labels)
	}
	last := len(ts.Labels) - 1
	if ts.Labels[last] != "2026-03-10" || ts.Datasets[0].Data[last] != 4 {
		t.Errorf("last bucket %s = %v, want 2026-03-10 = 4", ts.Labels[last], ts.Datasets[0].Data[last])
	}
	if ts.Labels[last-1] != "2026-03-09" || ts.Datasets[0].Data[last-1] != 4 {
		t.Errorf("bucket %s = %v, want 2026-03-09 = 4", ts.Labels[last-1], ts.Datasets[0].Data[last-1])
	}
	if ts.Datasets[0].Label != "Clicks" {
		t.Errorf("dataset label = %q", ts.Datasets[0].Label)
	}
}

func TestHalfHourOffsetZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	now := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	// 00:15 on Friday 2026-01-02 in Kolkata
	store := &stubStore{buckets: []models.TimeBucket{
		{Start: time.Date(2026, 1, 1, 18, 45, 0, 0, time.UTC), Count: 1},
	}}
	svc := newTestService(store, loc, now)

	ts, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{RangeQuery: RangeQuery{Period: PeriodWeek}})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	counts := make(map[string]float64, len(ts.Labels))
	for i, label := range ts.Labels {
		counts[label] = ts.Datasets[0].Data[i]
	}
	if counts["2026-01-02"] != 1 || counts["2026-01-01"] != 0 {
		t.Errorf("2026-01-01 = %v, 2026-01-02 = %v, want 0 and 1", counts["2026-01-01"], counts["2026-01-02"])
	}

	hm, err := svc.Heatmap(context.Background(), HeatmapQuery{RangeQuery: RangeQuery{Period: PeriodWeek}})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if got := hm.Data[int(time.Friday)*24].Value; got != 1 {
		t.Errorf("Friday 00:00 = %d, want 1", got)
	}
	if got := hm.Data[int(time.Thursday)*24+23].Value; got != 0 {
		t.Errorf("Thursday 23:00 = %d, want 0", got)
	}
	if store.gotGranularity != database.GranularityQuarterHour {
		t.Errorf("granularity = %s, want quarter_hour", store.gotGranularity)
	}
}

func TestTimeSeries_MinuteBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 30, 0, time.UTC)
	store := &stubStore{}
	svc := newTestService(store, time.UTC, now)

	ts, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{RangeQuery: RangeQuery{Period: PeriodHour}})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	if store.gotGranularity != database.GranularityMinute {
		t.Errorf("granularity = %s, want minute", store.gotGranularity)
	}
	if len(ts.Labels) != 61 || ts.Labels[0] != "11:00" || ts.Labels[60] != "12:00" {
		t.Errorf("labels = %d (%s .. %s)", len(ts.Labels), ts.Labels[0], ts.Labels[len(ts.Labels)-1])
	}
}

func TestTimeSeries_Downsampled(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubStore{}
	svc := newTestService(store, time.UTC, now)

	ts, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{
		RangeQuery: RangeQuery{Period: PeriodYear},
		GroupBy:    BucketHour,
	})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	if len(ts.Labels) != DefaultDownsampleThreshold {
		t.Errorf("len = %d, want default threshold %d", len(ts.Labels), DefaultDownsampleThreshold)
	}

	ts, err = svc.TimeSeries(context.Background(), TimeSeriesQuery{
		RangeQuery:          RangeQuery{Period: PeriodYear},
		GroupBy:             BucketDay,
		DownsampleThreshold: 40,
	})
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	if len(ts.Labels) != 40 || len(ts.Datasets[0].Data) != 40 {
		t.Errorf("len = %d, want 40", len(ts.Labels))
	}
}

func TestTimeSeries_Invalid(t *testing.T) {
	svc := newTestService(&stubStore{}, time.UTC, fixedNow)

	_, err := svc.TimeSeries(context.Background(), TimeSeriesQuery{Type: "sessions"})
	assertValidationField(t, err, "type")

	_, err = svc.TimeSeries(context.Background(), TimeSeriesQuery{GroupBy: "minute"})
	assertValidationField(t, err, "groupBy")

	_, err = svc.TimeSeries(context.Background(), TimeSeriesQuery{RangeQuery: RangeQuery{Period: "decade"}})
	assertValidationField(t, err, "period")
}

func TestGeo(t *testing.T) {
	lat := 30.0
	store := &stubStore{geo: []models.GeoLocationStat{
		{CountryCode: "US", CountryName: "United States", Latitude: &lat, Count: 5},
		{CountryCode: "DE", CountryName: "Germany", Count: 3},
	}}
	svc := newTestService(store, time.UTC, fixedNow)

	got, err := svc.Geo(context.Background(), GeoQuery{Limit: 500})
	if err != nil {
		t.Fatalf("Geo() error = %v", err)
	}
	if got.Total != 8 || len(got.Locations) != 2 {
		t.Errorf("Geo() = %+v, want total 8 over 2 locations", got)
	}
	if store.gotLevel != database.GeoLevelCountry || store.gotLimit != DefaultMaxLimit {
		t.Errorf("level=%s limit=%d, want country/%d", store.gotLevel, store.gotLimit, DefaultMaxLimit)
	}

	store.geo = nil
	got, err = svc.Geo(context.Background(), GeoQuery{Level: database.GeoLevelCity})
	if err != nil {
		t.Fatalf("Geo() error = %v", err)
	}
	if got.Locations == nil || got.Total != 0 || store.gotLimit != DefaultLimit {
		t.Errorf("empty Geo() = %+v, limit %d", got, store.gotLimit)
	}

	_, err = svc.Geo(context.Background(), GeoQuery{Level: "continent"})
	assertValidationField(t, err, "level")
}

func TestHeatmap_Pageviews(t *testing.T) {
	store := &stubStore{buckets: []models.TimeBucket{
		{Start: time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC), Count: 4}, // Sunday
		{Start: time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), Count: 7}, // Monday
		{Start: time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), Count: 1}, // Monday a week earlier
	}}
	svc := newTestService(store, time.UTC, fixedNow)

	hm, err := svc.Heatmap(context.Background(), HeatmapQuery{})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if len(hm.Data) != HeatmapCells {
		t.Fatalf("len = %d, want %d", len(hm.Data), HeatmapCells)
	}
	for i, c := range hm.Data {
		if c.DayOfWeek != i/24 || c.Hour != i%24 {
			t.Fatalf("cell %d = (%d,%d), out of order", i, c.DayOfWeek, c.Hour)
		}
	}
	if hm.Data[10].Value != 4 || hm.Data[24+23].Value != 8 {
		t.Errorf("cells = %d, %d, want 4, 8", hm.Data[10].Value, hm.Data[24+23].Value)
	}
	if hm.MaxValue != 8 {
		t.Errorf("MaxValue = %d, want 8", hm.MaxValue)
	}
	if store.gotGranularity != database.GranularityQuarterHour {
		t.Errorf("granularity = %s", store.gotGranularity)
	}
}

func TestHeatmap_ClicksUseStoredBuckets(t *testing.T) {
	store := &stubStore{clickMap: []models.HeatmapCell{
		{DayOfWeek: 6, Hour: 22, Value: 3},
		{DayOfWeek: 0, Hour: 0, Value: 1},
		{DayOfWeek: 9, Hour: 1, Value: 50},
	}}
	svc := newTestService(store, time.UTC, fixedNow)

	hm, err := svc.Heatmap(context.Background(), HeatmapQuery{Type: "bookmarks"})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if store.gotSource != database.SourceBookmarks {
		t.Errorf("source = %s", store.gotSource)
	}
	if len(hm.Data) != HeatmapCells || hm.Data[6*24+22].Value != 3 || hm.Data[0].Value != 1 {
		t.Errorf("unexpected grid")
	}
	if hm.MaxValue != 3 {
		t.Errorf("MaxValue = %d, want 3 (out of range cells ignored)", hm.MaxValue)
	}
}

func TestHeatmap_Empty(t *testing.T) {
	svc := newTestService(&stubStore{}, time.UTC, fixedNow)
	hm, err := svc.Heatmap(context.Background(), HeatmapQuery{Type: "services"})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if len(hm.Data) != HeatmapCells || hm.MaxValue != 0 {
		t.Errorf("empty heatmap = %d cells, max %d", len(hm.Data), hm.MaxValue)
	}
}

func TestTopItems(t *testing.T) {
	store := &stubStore{items: []models.ItemClickCount{
		{ItemID: "a", ItemKind: "bookmark", Name: "Grafana", Current: 15, Previous: 10},
		{ItemID: "b", ItemKind: "service", Name: "b", Current: 5, Previous: 0},
		{ItemID: "c", ItemKind: "bookmark", Name: "Wiki", Current: 5, Previous: 10},
	}}
	svc := newTestService(store, time.UTC, fixedNow)

	got, err := svc.TopItems(context.Background(), TopItemsQuery{RangeQuery: RangeQuery{Period: PeriodDay}, Limit: 3})
	if err != nil {
		t.Fatalf("TopItems() error = %v", err)
	}
	want := []struct {
		id     string
		clicks int64
		trend  float64
	}{{"a", 15, 50}, {"b", 5, 100}, {"c", 5, -50}}
	for i, w := range want {
		it := got.Items[i]
		if it.ID != w.id || it.Clicks != w.clicks || it.Trend != w.trend {
			t.Errorf("item %d = %+v, want %+v", i, it, w)
		}
	}

	if store.gotSource != database.SourceClicks || store.gotLimit != 3 {
		t.Errorf("source=%s limit=%d", store.gotSource, store.gotLimit)
	}
	if !store.gotStart.Equal(fixedNow.Add(-24*time.Hour)) || !store.gotPrevStart.Equal(fixedNow.Add(-48*time.Hour)) {
		t.Errorf("windows prev=%v cur=%v", store.gotPrevStart, store.gotStart)
	}

	_, err = svc.TopItems(context.Background(), TopItemsQuery{Type: "pageviews"})
	assertValidationField(t, err, "type")
}

func TestService_StoreErrorsWrapped(t *testing.T) {
	boom := errors.New("connection lost")
	svc := newTestService(&stubStore{err: boom}, time.UTC, fixedNow)
	ctx := context.Background()

	if _, err := svc.TimeSeries(ctx, TimeSeriesQuery{}); !errors.Is(err, boom) {
		t.Errorf("TimeSeries error = %v", err)
	}
	if _, err := svc.Geo(ctx, GeoQuery{}); !errors.Is(err, boom) {
		t.Errorf("Geo error = %v", err)
	}
	if _, err := svc.Heatmap(ctx, HeatmapQuery{}); !errors.Is(err, boom) {
		t.Errorf("Heatmap error = %v", err)
	}
	if _, err := svc.TopItems(ctx, TopItemsQuery{}); !errors.Is(err, boom) {
		t.Errorf("TopItems error = %v", err)
	}
}
