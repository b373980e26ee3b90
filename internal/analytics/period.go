// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package analytics

import (
	"fmt"
	"time"

	"github.com/tomtom215/dashmark/internal/validation"
)

// Named periods.
const (
	PeriodHour   = "hour"
	PeriodDay    = "day"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"

	DefaultPeriod = PeriodWeek
)

// Bucket sizes for time series.
const (
	BucketMinute = "minute"
	BucketHour   = "hour"
	BucketDay    = "day"
	BucketWeek   = "week"
	BucketMonth  = "month"
)

// Custom ranges up to these lengths use hourly and daily buckets; longer
// ones are bucketed by month.
const (
	customHourlyMax = 2 * 24 * time.Hour
	customDailyMax  = 180 * 24 * time.Hour
)

// RangeQuery names the window an analytics query covers.
type RangeQuery struct {
	Period    string `json:"period"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// Window is a resolved [Start, End) range, its equal-length predecessor
// starting at PrevStart, and the default bucket size for charting it.
type Window struct {
	Start     time.Time
	End       time.Time
	PrevStart time.Time
	Bucket    string
	Location  *time.Location
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// ResolveWindow turns q into a concrete window ending at now. Custom dates
// are calendar days in loc, both inclusive.
func ResolveWindow(q RangeQuery, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	period := q.Period
	if period == "" {
		period = DefaultPeriod
	}

	var (
		start  time.Time
		end    = now
		bucket string
	)
	switch period {
	case PeriodHour:
		start, bucket = now.Add(-time.Hour), BucketMinute
	case PeriodDay:
		start, bucket = now.Add(-24*time.Hour), BucketHour
	case PeriodWeek:
		start, bucket = now.AddDate(0, 0, -7), BucketDay
	case PeriodMonth:
		start, bucket = now.AddDate(0, 0, -30), BucketDay
	case PeriodYear:
		start, bucket = now.AddDate(0, 0, -365), BucketMonth
	case PeriodCustom:
		var err error
		if start, end, err = customRange(q, loc); err != nil {
			return Window{}, err
		}
		switch span := end.Sub(start); {
		case span <= customHourlyMax:
			bucket = BucketHour
		case span <= customDailyMax:
			bucket = BucketDay
		default:
			bucket = BucketMonth
		}
	default:
		return Window{}, validation.NewFieldError("period", "oneof",
			"period must be one of: hour day week month year custom")
	}

	return Window{
		Start:     start,
		End:       end,
		PrevStart: start.Add(-end.Sub(start)),
		Bucket:    bucket,
		Location:  loc,
	}, nil
}

func customRange(q RangeQuery, loc *time.Location) (time.Time, time.Time, error) {
	if q.StartDate == "" || q.EndDate == "" {
		return time.Time{}, time.Time{}, validation.NewFieldError("startDate", "required",
			"startDate and endDate are required for a custom period")
	}
	start, err := time.ParseInLocation(validation.DateLayout, q.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, validation.NewFieldError("startDate", "ymd",
			"startDate must be a date in YYYY-MM-DD format")
	}
	last, err := time.ParseInLocation(validation.DateLayout, q.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, validation.NewFieldError("endDate", "ymd",
			"endDate must be a date in YYYY-MM-DD format")
	}
	if last.Before(start) {
		return time.Time{}, time.Time{}, validation.NewFieldError("endDate", "gtefield",
			fmt.Sprintf("endDate %s is before startDate %s", q.EndDate, q.StartDate))
	}
	return start, last.AddDate(0, 0, 1), nil
}

// ValidGroupBy reports whether g may override a window's bucket.
func ValidGroupBy(g string) bool {
	switch g {
	case BucketHour, BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// truncate returns the start of the bucket containing t, in t's location.
// Weeks start on Monday.
func truncate(t time.Time, bucket string) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch bucket {
	case BucketMinute:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
	case BucketHour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case BucketDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case BucketWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case BucketMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	return t
}

// nextBucket returns the start of the bucket after the one starting at t.
func nextBucket(t time.Time, bucket string) time.Time {
	switch bucket {
	case BucketMinute:
		return t.Add(time.Minute)
	case BucketHour:
		return truncate(t.Add(time.Hour), BucketHour)
	case BucketDay:
		return t.AddDate(0, 0, 1)
	case BucketWeek:
		return t.AddDate(0, 0, 7)
	case BucketMonth:
		return t.AddDate(0, 1, 0)
	}
	return t.Add(time.Hour)
}

var labelLayouts = map[string]string{
	BucketMinute: "15:04",
	BucketHour:   "2006-01-02 15:00",
	BucketDay:    "2006-01-02",
	BucketWeek:   "2006-01-02",
	BucketMonth:  "2006-01",
}

func formatLabel(t time.Time, bucket string) string {
	if layout, ok := labelLayouts[bucket]; ok {
		return t.Format(layout)
	}
	return t.Format(time.RFC3339)
}
