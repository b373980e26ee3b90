// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"database/sql"

	"github.com/tomtom215/dashmark/internal/models"
)

// geoColumns is the nullable column set shared by pageview_events and
// geo_cache.
type geoColumns struct {
	countryCode sql.NullString
	countryName sql.NullString
	city        sql.NullString
	region      sql.NullString
	latitude    sql.NullFloat64
	longitude   sql.NullFloat64
	timezone    sql.NullString
}

func newGeoColumns(loc *models.Location) geoColumns {
	if loc == nil {
		return geoColumns{}
	}
	return geoColumns{
		countryCode: sql.NullString{String: loc.CountryCode, Valid: true},
		countryName: nullString(loc.CountryName),
		city:        nullString(loc.City),
		region:      nullString(loc.Region),
		latitude:    nullFloat(loc.Latitude),
		longitude:   nullFloat(loc.Longitude),
		timezone:    nullString(loc.Timezone),
	}
}

// args returns the columns as bind parameters in declaration order, with
// NULLs as untyped nil.
func (g geoColumns) args() []interface{} {
	return []interface{}{
		nullableArg(g.countryCode.String, g.countryCode.Valid),
		nullableArg(g.countryName.String, g.countryName.Valid),
		nullableArg(g.city.String, g.city.Valid),
		nullableArg(g.region.String, g.region.Valid),
		nullableArg(g.latitude.Float64, g.latitude.Valid),
		nullableArg(g.longitude.Float64, g.longitude.Valid),
		nullableArg(g.timezone.String, g.timezone.Valid),
	}
}

func nullableArg(v interface{}, valid bool) interface{} {
	if !valid {
		return nil
	}
	return v
}

// location returns nil when no country code was stored.
func (g geoColumns) location() *models.Location {
	if !g.countryCode.Valid {
		return nil
	}
	return &models.Location{
		CountryCode: g.countryCode.String,
		CountryName: stringPtr(g.countryName),
		City:        stringPtr(g.city),
		Region:      stringPtr(g.region),
		Latitude:    floatPtr(g.latitude),
		Longitude:   floatPtr(g.longitude),
		Timezone:    stringPtr(g.timezone),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
