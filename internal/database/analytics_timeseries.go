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

// Raw bucket granularities. Stored timestamps are UTC, so timezone aware
// buckets (hour, day, week, month) are folded from quarter-hour rows by the
// analytics layer. Every UTC offset in use is a whole number of quarter
// hours, which keeps that fold exact for zones such as Asia/Kolkata.
const (
	GranularityMinute      = "minute"
	GranularityQuarterHour = "quarter_hour"
	GranularityHour        = "hour"
)

var bucketExprs = map[string]string{
	GranularityMinute:      "DATE_TRUNC('minute', %s)",
	GranularityQuarterHour: "time_bucket(INTERVAL 15 MINUTE, %s)",
	GranularityHour:        "DATE_TRUNC('hour', %s)",
}

// CountEventsByBucket counts events of src in [start, end) grouped into
// granularity buckets. Empty buckets are omitted.
func (db *DB) CountEventsByBucket(ctx context.Context, src EventSource, granularity string, start, end time.Time) ([]models.TimeBucket, error) {
	expr, ok := bucketExprs[granularity]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity %q", granularity)
	}
	spec, err := src.spec()
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s AS bucket, COUNT(*) AS cnt
		FROM %s
		WHERE %s >= ? AND %s < ?`,
		fmt.Sprintf(expr, spec.tsColumn), spec.table, spec.tsColumn, spec.tsColumn)
	args := []interface{}{start.UTC(), end.UTC()}
	if spec.predicate != "" {
		query += " AND " + spec.predicate
		args = append(args, spec.args...)
	}
	query += " GROUP BY bucket ORDER BY bucket"

	buckets, err := queryAndScan(ctx, db.conn, query, args, func(rows *sql.Rows) (models.TimeBucket, error) {
		var b models.TimeBucket
		if err := rows.Scan(&b.Start, &b.Count); err != nil {
			return b, err
		}
		b.Start = b.Start.UTC()
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", src, granularity, err)
	}
	return buckets, nil
}
