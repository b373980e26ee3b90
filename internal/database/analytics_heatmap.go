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

// ClickHeatmapCounts returns click counts per (day_of_week, hour_of_day)
// using the buckets captured at insert time. Only non-empty cells are
// returned; zero filling is the caller's job.
func (db *DB) ClickHeatmapCounts(ctx context.Context, src EventSource, start, end time.Time) ([]models.HeatmapCell, error) {
	if src == SourcePageviews {
		return nil, fmt.Errorf("pageviews have no stored hour buckets, use CountEventsByBucket")
	}
	spec, err := src.spec()
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT day_of_week, hour_of_day, COUNT(*) AS cnt
		FROM click_events
		WHERE clicked_at >= ? AND clicked_at < ?`
	args := []interface{}{start.UTC(), end.UTC()}
	if spec.predicate != "" {
		query += " AND " + spec.predicate
		args = append(args, spec.args...)
	}
	query += " GROUP BY day_of_week, hour_of_day ORDER BY day_of_week, hour_of_day"

	cells, err := queryAndScan(ctx, db.conn, query, args, func(rows *sql.Rows) (models.HeatmapCell, error) {
		var c models.HeatmapCell
		err := rows.Scan(&c.DayOfWeek, &c.Hour, &c.Value)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query click heatmap: %w", err)
	}
	return cells, nil
}
