// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/dashmark/internal/models"
)

// Geo breakdown levels.
const (
	GeoLevelCountry = "country"
	GeoLevelCity    = "city"
)

// GeoBreakdown groups enriched pageviews in [start, end) by country or city,
// averaging coordinates per group, ordered by count descending. Rows with no
// country or the unknown sentinel are left out since they cannot be placed.
func (db *DB) GeoBreakdown(ctx context.Context, level string, start, end time.Time, limit int) ([]models.GeoLocationStat, error) {
	var groupCols, cityFilter string
	switch level {
	case GeoLevelCountry:
		groupCols = "country_code"
	case GeoLevelCity:
		groupCols = "country_code, city, region"
		cityFilter = " AND city IS NOT NULL"
	default:
		return nil, fmt.Errorf("unsupported geo level %q", level)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cityCols := "NULL, NULL"
	if level == GeoLevelCity {
		cityCols = "city, region"
	}

	query := fmt.Sprintf(`
		SELECT country_code,
		       MAX(country_name) AS country_name,
		       %s,
		       AVG(latitude) AS avg_lat,
		       AVG(longitude) AS avg_lon,
		       COUNT(*) AS cnt
		FROM pageview_events
		WHERE enriched = TRUE
		  AND country_code IS NOT NULL
		  AND country_code <> ?
		  AND created_at >= ? AND created_at < ?%s
		GROUP BY %s
		ORDER BY cnt DESC, country_code
		LIMIT ?`, cityCols, cityFilter, groupCols)
	args := []interface{}{models.UnknownCountry, start.UTC(), end.UTC(), limit}

	stats, err := queryAndScan(ctx, db.conn, query, args, func(rows *sql.Rows) (models.GeoLocationStat, error) {
		var (
			s                         models.GeoLocationStat
			countryName, city, region sql.NullString
			lat, lon                  sql.NullFloat64
		)
		if err := rows.Scan(&s.CountryCode, &countryName, &city, &region, &lat, &lon, &s.Count); err != nil {
			return s, err
		}
		s.CountryName = countryName.String
		s.City = city.String
		s.Region = region.String
		s.Latitude = floatPtr(lat)
		s.Longitude = floatPtr(lon)
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query geo breakdown: %w", err)
	}
	return stats, nil
}
