// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/dashmark/internal/models"
)

const upsertMaxAttempts = 3

// GetGeoCacheEntry returns the cached lookup for ipHash. Missing and expired
// entries both yield ErrNotFound.
func (db *DB) GetGeoCacheEntry(ctx context.Context, ipHash string, now time.Time) (*models.GeoCacheEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT ip_hash, country_code, country_name, city, region,
		       latitude, longitude, timezone, provider, created_at, expires_at
		FROM geo_cache
		WHERE ip_hash = ? AND expires_at > ?`, ipHash, now.UTC())

	var (
		e   models.GeoCacheEntry
		geo geoColumns
	)
	err := row.Scan(&e.IPHash, &geo.countryCode, &geo.countryName, &geo.city, &geo.region,
		&geo.latitude, &geo.longitude, &geo.timezone, &e.Provider, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geo cache entry: %w", err)
	}

	if loc := geo.location(); loc != nil {
		e.Location = *loc
	}
	return &e, nil
}

// UpsertGeoCacheEntry inserts or fully replaces the entry for e.IPHash,
// resetting created_at and expires_at. Concurrent writers for the same hash
// race at the storage layer and the last write wins; DuckDB transaction
// conflicts are retried briefly.
func (db *DB) UpsertGeoCacheEntry(ctx context.Context, e *models.GeoCacheEntry) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	loc := e.Location
	if loc.CountryCode == "" {
		loc.CountryCode = models.UnknownCountry
	}
	args := []interface{}{e.IPHash}
	args = append(args, newGeoColumns(&loc).args()...)
	args = append(args, e.Provider, e.CreatedAt.UTC(), e.ExpiresAt.UTC())

	var lastErr error
	for attempt := 0; attempt < upsertMaxAttempts; attempt++ {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO geo_cache (ip_hash, country_code, country_name, city, region,
			                       latitude, longitude, timezone, provider, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ip_hash) DO UPDATE SET
				country_code = EXCLUDED.country_code,
				country_name = EXCLUDED.country_name,
				city = EXCLUDED.city,
				region = EXCLUDED.region,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				timezone = EXCLUDED.timezone,
				provider = EXCLUDED.provider,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at`, args...)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransactionConflict(err) {
			break
		}
		select {
		case <-time.After(time.Millisecond << attempt):
		case <-ctx.Done():
			return fmt.Errorf("upsert geo cache entry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("failed to upsert geo cache entry: %w", lastErr)
}

// PurgeExpiredGeoCache removes entries whose expiry is at or before now.
// Reads already ignore expired rows; this only reclaims space.
func (db *DB) PurgeExpiredGeoCache(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM geo_cache WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge geo cache: %w", err)
	}
	return res.RowsAffected()
}

func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update")
}
