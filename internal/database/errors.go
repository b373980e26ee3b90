// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package database

import (
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a row does not exist. For the geo cache
	// it is also returned for expired entries.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyEnriched is returned when an enrichment update targets a
	// pageview that has already been enriched.
	ErrAlreadyEnriched = errors.New("pageview already enriched")
)

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
