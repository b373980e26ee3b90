// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package analytics

import "math"

// Trend is the percentage change from prev to cur, rounded to one decimal.
// Growth from zero counts as +100% and zero to zero as 0%.
func Trend(prev, cur int64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 100
	}
	pct := float64(cur-prev) / float64(prev) * 100
	return math.Round(pct*10) / 10
}
