// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package models holds the persisted records and API payloads shared by the
// database, enrichment and HTTP layers.
package models

import (
	"time"
)

// UnknownCountry is stored when a provider answers but cannot name a
// country.
const UnknownCountry = "XX"

// Click item kinds.
const (
	ItemKindBookmark = "bookmark"
	ItemKindService  = "service"
)

// Location is a resolved geo lookup. Only CountryCode is mandatory, it
// holds UnknownCountry when the provider could not resolve one.
type Location struct {
	CountryCode string   `json:"country_code"`
	CountryName *string  `json:"country_name,omitempty"`
	City        *string  `json:"city,omitempty"`
	Region      *string  `json:"region,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Timezone    *string  `json:"timezone,omitempty"`
}

// PageviewEvent is one recorded page view.
//
// Enriched=false implies Geo is nil. Once Enriched is true the row is never
// enriched again; Geo stays nil when the IP was private, enrichment was
// disabled or the lookup failed.
type PageviewEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"-"`
	IPHash    string    `json:"ip_hash"`
	Geo       *Location `json:"geo,omitempty"`
	Enriched  bool      `json:"enriched"`
	CreatedAt time.Time `json:"created_at"`
}

// ClickEvent is an immutable click on a bookmark or service. The hour and
// day fields are derived from ClickedAt in the recording server's timezone.
type ClickEvent struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	ItemKind   string    `json:"item_kind"`
	ClickedAt  time.Time `json:"clicked_at"`
	HourOfDay  int       `json:"hour_of_day"`
	DayOfWeek  int       `json:"day_of_week"`
	DayOfMonth int       `json:"day_of_month"`
}

// NewClickEvent derives the bucket fields from at, interpreted in loc.
func NewClickEvent(id, itemID, kind string, at time.Time, loc *time.Location) ClickEvent {
	if loc == nil {
		loc = time.Local
	}
	local := at.In(loc)
	return ClickEvent{
		ID:         id,
		ItemID:     itemID,
		ItemKind:   kind,
		ClickedAt:  at,
		HourOfDay:  local.Hour(),
		DayOfWeek:  int(local.Weekday()),
		DayOfMonth: local.Day(),
	}
}

// GeoCacheEntry is a cached lookup for one hashed IP.
type GeoCacheEntry struct {
	IPHash    string    `json:"ip_hash"`
	Location  Location  `json:"location"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer usable at now.
func (e *GeoCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// DashboardItem is the slice of the bookmark/service catalog the analytics
// layer needs to label top items.
type DashboardItem struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}
