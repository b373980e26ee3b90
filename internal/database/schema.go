// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"context"
	"fmt"
)

// Table names. Timestamps are stored as UTC TIMESTAMP values.
const (
	TablePageviews = "pageview_events"
	TableClicks    = "click_events"
	TableGeoCache  = "geo_cache"
	TableItems     = "dashboard_items"
)

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pageview_events (
			id VARCHAR PRIMARY KEY,
			path VARCHAR NOT NULL,
			user_agent VARCHAR,
			ip_address VARCHAR,
			ip_hash VARCHAR NOT NULL,
			country_code VARCHAR,
			country_name VARCHAR,
			city VARCHAR,
			region VARCHAR,
			latitude DOUBLE,
			longitude DOUBLE,
			timezone VARCHAR,
			enriched BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS click_events (
			id VARCHAR PRIMARY KEY,
			item_id VARCHAR NOT NULL,
			item_kind VARCHAR NOT NULL,
			clicked_at TIMESTAMP NOT NULL,
			hour_of_day INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			day_of_month INTEGER NOT NULL
		)`,
		// ip_hash is UNIQUE so that upserts resolve as ON CONFLICT updates.
		`CREATE TABLE IF NOT EXISTS geo_cache (
			ip_hash VARCHAR NOT NULL UNIQUE,
			country_code VARCHAR NOT NULL,
			country_name VARCHAR,
			city VARCHAR,
			region VARCHAR,
			latitude DOUBLE,
			longitude DOUBLE,
			timezone VARCHAR,
			provider VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dashboard_items (
			id VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
	}
}

func indexCreationQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_pageview_events_created_at ON pageview_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_click_events_clicked_at ON click_events(clicked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_click_events_item ON click_events(item_kind, item_id)`,
	}
}

func (db *DB) createSchema(ctx context.Context) error {
	for _, q := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, q := range indexCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
