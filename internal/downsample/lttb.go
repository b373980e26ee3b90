// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package downsample reduces chart series to an on-screen point budget with
// Largest-Triangle-Three-Buckets, keeping peaks and valleys that stride
// sampling would drop.
package downsample

import (
	"math"
	"time"
)

// Point is one (x, y) sample.
type Point struct {
	X float64
	Y float64
}

// LTTB returns at most threshold points selected from points. Inputs with
// no more than threshold points are returned as-is (same slice). For
// threshold < 3 only the first and last points are kept.
func LTTB(points []Point, threshold int) []Point {
	n := len(points)
	if n <= threshold || n == 0 {
		return points
	}
	if threshold < 3 {
		if n == 1 {
			return []Point{points[0]}
		}
		return []Point{points[0], points[n-1]}
	}

	sampled := make([]Point, 0, threshold)
	sampled = append(sampled, points[0])

	// bucket i holds points [bucketStart(i), bucketStart(i+1)); integer
	// division keeps every interior point in exactly one bucket
	buckets := threshold - 2
	bucketStart := func(i int) int { return i*(n-2)/buckets + 1 }
	a := 0

	for i := 0; i < buckets; i++ {
		rangeStart, rangeEnd := bucketStart(i), bucketStart(i+1)

		// centroid of the next bucket; the last bucket looks at the final point
		var avgX, avgY float64
		if i == buckets-1 {
			avgX, avgY = points[n-1].X, points[n-1].Y
		} else {
			avgStart, avgEnd := rangeEnd, bucketStart(i+2)
			for _, p := range points[avgStart:avgEnd] {
				avgX += p.X
				avgY += p.Y
			}
			count := float64(avgEnd - avgStart)
			avgX /= count
			avgY /= count
		}

		pa := points[a]
		maxArea := -1.0
		next := rangeStart
		for j := rangeStart; j < rangeEnd; j++ {
			area := math.Abs((pa.X-avgX)*(points[j].Y-pa.Y)-(pa.X-points[j].X)*(avgY-pa.Y)) * 0.5
			if area > maxArea {
				maxArea = area
				next = j
			}
		}

		sampled = append(sampled, points[next])
		a = next
	}

	return append(sampled, points[n-1])
}

// SeriesPoint is a dated count as produced by the bucket queries.
type SeriesPoint struct {
	Date  time.Time
	Count float64
}

// SeriesToPoints maps a series onto (index, count) points.
func SeriesToPoints(series []SeriesPoint) []Point {
	out := make([]Point, len(series))
	for i, s := range series {
		out[i] = Point{X: float64(i), Y: s.Count}
	}
	return out
}

// PointsToSeries maps LTTB output back onto the original series using the
// point index. Points whose index is outside series are skipped.
func PointsToSeries(series []SeriesPoint, points []Point) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(points))
	for _, p := range points {
		idx := int(p.X)
		if idx < 0 || idx >= len(series) {
			continue
		}
		out = append(out, series[idx])
	}
	return out
}

// Series downsamples a dated series to threshold points.
func Series(series []SeriesPoint, threshold int) []SeriesPoint {
	if len(series) <= threshold {
		return series
	}
	return PointsToSeries(series, LTTB(SeriesToPoints(series), threshold))
}
