// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// EventSource selects which events an aggregate query counts.
type EventSource string

const (
	SourcePageviews EventSource = "pageviews"
	SourceClicks    EventSource = "clicks" // bookmark and service clicks together
	SourceBookmarks EventSource = "bookmarks"
	SourceServices  EventSource = "services"
)

// Valid reports whether s is a known source.
func (s EventSource) Valid() bool {
	switch s {
	case SourcePageviews, SourceClicks, SourceBookmarks, SourceServices:
		return true
	}
	return false
}

// sourceSpec is the table, timestamp column and extra predicate for a
// source. The predicate and its args are appended with AND.
type sourceSpec struct {
	table     string
	tsColumn  string
	predicate string
	args      []interface{}
}

func (s EventSource) spec() (sourceSpec, error) {
	switch s {
	case SourcePageviews:
		return sourceSpec{table: TablePageviews, tsColumn: "created_at"}, nil
	case SourceClicks:
		return sourceSpec{table: TableClicks, tsColumn: "clicked_at"}, nil
	case SourceBookmarks:
		return sourceSpec{table: TableClicks, tsColumn: "clicked_at", predicate: "item_kind = ?", args: []interface{}{"bookmark"}}, nil
	case SourceServices:
		return sourceSpec{table: TableClicks, tsColumn: "clicked_at", predicate: "item_kind = ?", args: []interface{}{"service"}}, nil
	default:
		return sourceSpec{}, fmt.Errorf("unknown event source %q", s)
	}
}

// scanFunc scans a single row into T.
type scanFunc[T any] func(*sql.Rows) (T, error)

// queryAndScan runs query and scans every row with scan.
func queryAndScan[T any](ctx context.Context, db *sql.DB, query string, args []interface{}, scan scanFunc[T]) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
