// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package models

import (
	"testing"
	"time"
)

func TestNewClickEvent_DerivesBucketsInLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2026-03-07 (Saturday) 20:30 UTC is 2026-03-08 (Sunday) 05:30 in JST
	at := time.Date(2026, 3, 7, 20, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		loc      *time.Location
		hour     int
		dow      int
		dom      int
		clicked  time.Time
		itemKind string
	}{
		{"utc", time.UTC, 20, int(time.Saturday), 7, at, ItemKindBookmark},
		{"jst", tokyo, 5, int(time.Sunday), 8, at, ItemKindService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewClickEvent("c1", "item-1", tt.itemKind, at, tt.loc)
			if ev.HourOfDay != tt.hour || ev.DayOfWeek != tt.dow || ev.DayOfMonth != tt.dom {
				t.Errorf("buckets = (%d,%d,%d), want (%d,%d,%d)",
					ev.HourOfDay, ev.DayOfWeek, ev.DayOfMonth, tt.hour, tt.dow, tt.dom)
			}
			if !ev.ClickedAt.Equal(tt.clicked) {
				t.Errorf("ClickedAt = %v, want %v", ev.ClickedAt, tt.clicked)
			}
			if ev.ItemKind != tt.itemKind || ev.ItemID != "item-1" || ev.ID != "c1" {
				t.Errorf("unexpected identity fields: %+v", ev)
			}
		})
	}
}

func TestNewClickEvent_NilLocationUsesLocal(t *testing.T) {
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	ev := NewClickEvent("c1", "i", ItemKindBookmark, at, nil)
	if want := at.In(time.Local).Hour(); ev.HourOfDay != want {
		t.Errorf("HourOfDay = %d, want %d", ev.HourOfDay, want)
	}
}

func TestGeoCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	e := &GeoCacheEntry{ExpiresAt: now}

	if !e.Expired(now) {
		t.Error("entry expiring exactly now should be expired")
	}
	if e.Expired(now.Add(-time.Second)) {
		t.Error("entry should be valid before its expiry")
	}
	if !e.Expired(now.Add(time.Second)) {
		t.Error("entry should be expired after its expiry")
	}
}
