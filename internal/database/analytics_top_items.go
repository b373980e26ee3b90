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

// TopItemClicks ranks items by clicks in [curStart, curEnd) and also counts
// their clicks in [prevStart, curStart). Items with no clicks in the current
// window are not returned. Names fall back to the item id when the catalog
// has no entry.
func (db *DB) TopItemClicks(ctx context.Context, src EventSource, prevStart, curStart, curEnd time.Time, limit int) ([]models.ItemClickCount, error) {
	if src == SourcePageviews {
		return nil, fmt.Errorf("top items are only defined for click sources")
	}
	spec, err := src.spec()
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT c.item_id,
		       c.item_kind,
		       COALESCE(MAX(i.name), c.item_id) AS name,
		       COUNT(*) FILTER (WHERE c.clicked_at >= ?) AS cur,
		       COUNT(*) FILTER (WHERE c.clicked_at < ?) AS prev
		FROM click_events c
		LEFT JOIN dashboard_items i ON i.id = c.item_id AND i.kind = c.item_kind
		WHERE c.clicked_at >= ? AND c.clicked_at < ?`
	args := []interface{}{curStart.UTC(), curStart.UTC(), prevStart.UTC(), curEnd.UTC()}
	if spec.predicate != "" {
		query += " AND c." + spec.predicate
		args = append(args, spec.args...)
	}
	query += `
		GROUP BY c.item_id, c.item_kind
		HAVING COUNT(*) FILTER (WHERE c.clicked_at >= ?) > 0
		ORDER BY cur DESC, c.item_id
		LIMIT ?`
	args = append(args, curStart.UTC(), limit)

	items, err := queryAndScan(ctx, db.conn, query, args, func(rows *sql.Rows) (models.ItemClickCount, error) {
		var it models.ItemClickCount
		err := rows.Scan(&it.ItemID, &it.ItemKind, &it.Name, &it.Current, &it.Previous)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query top items: %w", err)
	}
	return items, nil
}
