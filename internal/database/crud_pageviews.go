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
	"time"

	"github.com/tomtom215/dashmark/internal/models"
)

// InsertPageview stores a freshly ingested, unenriched pageview. Geo fields
// are always written as NULL regardless of ev.Geo.
func (db *DB) InsertPageview(ctx context.Context, ev *models.PageviewEvent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO pageview_events (id, path, user_agent, ip_address, ip_hash, enriched, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
		ev.ID, ev.Path, nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.IPAddress), ev.IPHash, ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pageview: %w", err)
	}
	return nil
}

// GetPageview returns the pageview with the given id or ErrNotFound.
func (db *DB) GetPageview(ctx context.Context, id string) (*models.PageviewEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, user_agent, ip_address, ip_hash,
		       country_code, country_name, city, region, latitude, longitude, timezone,
		       enriched, created_at
		FROM pageview_events
		WHERE id = ?`, id)

	var (
		ev        models.PageviewEvent
		userAgent sql.NullString
		ipAddress sql.NullString
		geo       geoColumns
	)
	err := row.Scan(&ev.ID, &ev.Path, &userAgent, &ipAddress, &ev.IPHash,
		&geo.countryCode, &geo.countryName, &geo.city, &geo.region,
		&geo.latitude, &geo.longitude, &geo.timezone,
		&ev.Enriched, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pageview %s: %w", id, err)
	}

	ev.UserAgent = userAgent.String
	ev.IPAddress = ipAddress.String
	ev.Geo = geo.location()
	return &ev, nil
}

// MarkPageviewEnriched sets enriched=true and writes loc (nil leaves all geo
// columns NULL). Only unenriched rows are touched, so a second call returns
// ErrAlreadyEnriched instead of overwriting.
func (db *DB) MarkPageviewEnriched(ctx context.Context, id string, loc *models.Location) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	args := append(newGeoColumns(loc).args(), id)
	res, err := db.conn.ExecContext(ctx, `
		UPDATE pageview_events
		SET enriched = TRUE,
		    country_code = ?, country_name = ?, city = ?, region = ?,
		    latitude = ?, longitude = ?, timezone = ?
		WHERE id = ? AND enriched = FALSE`, args...)
	if err != nil {
		return fmt.Errorf("failed to update pageview %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pageview_events WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check pageview %s: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyEnriched
}

// ListPendingPageviews returns ids of pageviews created before the cutoff
// that still await enrichment, oldest first. Used to requeue work lost with
// the in-memory queue on a restart.
func (db *DB) ListPendingPageviews(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ids, err := queryAndScan(ctx, db.conn,
		`SELECT id FROM pageview_events WHERE enriched = FALSE AND created_at < ? ORDER BY created_at LIMIT ?`,
		[]interface{}{before.UTC(), limit},
		func(rows *sql.Rows) (string, error) {
			var id string
			err := rows.Scan(&id)
			return id, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending pageviews: %w", err)
	}
	return ids, nil
}

// PurgeEventsBefore deletes events older than cutoff from a retention
// managed table (pageview_events or click_events).
func (db *DB) PurgeEventsBefore(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	var column string
	switch table {
	case TablePageviews:
		column = "created_at"
	case TableClicks:
		column = "clicked_at"
	default:
		return 0, fmt.Errorf("table %q is not retention managed", table)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table, column), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", table, err)
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
