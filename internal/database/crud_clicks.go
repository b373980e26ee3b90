// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/dashmark/internal/models"
)

// InsertClick stores an immutable click event with its precomputed buckets.
func (db *DB) InsertClick(ctx context.Context, ev *models.ClickEvent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO click_events (id, item_id, item_kind, clicked_at, hour_of_day, day_of_week, day_of_month)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ItemID, ev.ItemKind, ev.ClickedAt.UTC(), ev.HourOfDay, ev.DayOfWeek, ev.DayOfMonth,
	)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}
	return nil
}

// UpsertItem records the display name of a bookmark or service so top-item
// queries can label it. The catalog itself is owned elsewhere; this is the
// hook it syncs names through.
func (db *DB) UpsertItem(ctx context.Context, item models.DashboardItem) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO dashboard_items (id, kind, name) VALUES (?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET name = EXCLUDED.name`,
		item.ID, item.Kind, item.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s/%s: %w", item.Kind, item.ID, err)
	}
	return nil
}
