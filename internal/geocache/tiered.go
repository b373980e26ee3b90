// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package geocache is the lookup cache consulted before any geo provider
// call. DuckDB is the source of truth; an optional badger tier sits in
// front of it. Expiration is lazy: an entry past its expiry reads as a miss
// and is overwritten by the next successful lookup.
package geocache

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
	"github.com/tomtom215/dashmark/internal/models"
)

// DefaultTTL is how long a lookup stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// ErrMiss is returned when no usable entry exists, whether the row is
// absent or expired.
var ErrMiss = errors.New("geo cache miss")

// Store is the persistent cache table.
type Store interface {
	GetGeoCacheEntry(ctx context.Context, ipHash string, now time.Time) (*models.GeoCacheEntry, error)
	UpsertGeoCacheEntry(ctx context.Context, entry *models.GeoCacheEntry) error
}

// Tiered reads through the optional L1 tier to the Store and writes to
// both.
type Tiered struct {
	store Store
	l1    *BadgerTier
	ttl   time.Duration
	now   func() time.Time
}

// New returns a cache over store. l1 may be nil; ttl <= 0 uses DefaultTTL.
func New(store Store, l1 *BadgerTier, ttl time.Duration) *Tiered {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tiered{store: store, l1: l1, ttl: ttl, now: time.Now}
}

// TTL returns the expiration window applied by Put.
func (c *Tiered) TTL() time.Duration { return c.ttl }

// Get returns the unexpired entry for ipHash or ErrMiss.
func (c *Tiered) Get(ctx context.Context, ipHash string) (*models.GeoCacheEntry, error) {
	now := c.now()

	if c.l1 != nil {
		entry, err := c.l1.Get(ipHash)
		switch {
		case err == nil && !entry.Expired(now):
			metrics.RecordCacheLookup("geo_l1", true)
			return entry, nil
		case err != nil && !errors.Is(err, errL1Miss):
			logging.Warn().Err(err).Msg("Geo cache L1 read failed")
		}
		metrics.RecordCacheLookup("geo_l1", false)
	}

	entry, err := c.store.GetGeoCacheEntry(ctx, ipHash, now)
	if errors.Is(err, database.ErrNotFound) {
		metrics.RecordCacheLookup("geo", false)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup("geo", true)

	if c.l1 != nil {
		if err := c.l1.Set(entry, now); err != nil {
			logging.Warn().Err(err).Msg("Geo cache L1 backfill failed")
		}
	}
	return entry, nil
}

// Put upserts loc for ipHash with a fresh expiration and returns the stored
// entry. Only the DuckDB write can fail the call; the L1 write is best
// effort.
func (c *Tiered) Put(ctx context.Context, ipHash string, loc models.Location, provider string) (*models.GeoCacheEntry, error) {
	now := c.now().UTC()
	entry := &models.GeoCacheEntry{
		IPHash:    ipHash,
		Location:  loc,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.UpsertGeoCacheEntry(ctx, entry); err != nil {
		metrics.CacheWriteFailures.WithLabelValues("geo").Inc()
		return entry, err
	}
	if c.l1 != nil {
		if err := c.l1.Set(entry, now); err != nil {
			metrics.CacheWriteFailures.WithLabelValues("geo_l1").Inc()
			logging.Warn().Err(err).Msg("Geo cache L1 write failed")
		}
	}
	return entry, nil
}
