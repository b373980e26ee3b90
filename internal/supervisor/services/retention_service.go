// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package services

import (
	"context"
	"time"

	"github.com/tomtom215/dashmark/internal/config"
	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
)

// geoCacheTable labels geo cache purges in the retention metric.
const geoCacheTable = "geo_cache"

// Purger deletes aged rows. Satisfied by *database.DB.
type Purger interface {
	PurgeEventsBefore(ctx context.Context, table string, cutoff time.Time) (int64, error)
	PurgeExpiredGeoCache(ctx context.Context, now time.Time) (int64, error)
}

// RetentionService periodically deletes events older than their configured
// retention and geo cache rows past their expiry. The first sweep runs at
// start.
type RetentionService struct {
	purger   Purger
	cfg      config.RetentionConfig
	interval time.Duration
	now      func() time.Time
}

// NewRetentionService returns the job. An interval of zero means six hours.
func NewRetentionService(purger Purger, cfg config.RetentionConfig) *RetentionService {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &RetentionService{
		purger:   purger,
		cfg:      cfg,
		interval: interval,
		now:      time.Now,
	}
}

// Serve implements suture.Service.
func (s *RetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and retried on the
// next tick.
func (s *RetentionService) RunOnce(ctx context.Context) {
	now := s.now()

	for _, job := range []struct {
		table string
		days  int
	}{
		{database.TablePageviews, s.cfg.PageviewDays},
		{database.TableClicks, s.cfg.ClickDays},
	} {
		if job.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -job.days)
		n, err := s.purger.PurgeEventsBefore(ctx, job.table, cutoff)
		if err != nil {
			logging.Warn().Err(err).Str("table", job.table).Msg("Retention purge failed")
			continue
		}
		s.record(job.table, n)
	}

	n, err := s.purger.PurgeExpiredGeoCache(ctx, now)
	if err != nil {
		logging.Warn().Err(err).Msg("Geo cache purge failed")
		return
	}
	s.record(geoCacheTable, n)
}

func (s *RetentionService) record(table string, n int64) {
	if n == 0 {
		return
	}
	metrics.RetentionRowsDeleted.WithLabelValues(table).Add(float64(n))
	logging.Info().Str("table", table).Int64("rows", n).Msg("Retention purge removed rows")
}

func (s *RetentionService) String() string {
	return "retention"
}
