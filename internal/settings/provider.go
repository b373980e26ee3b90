// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package settings

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/dashmark/internal/logging"
)

// Provider caches a Snapshot from a Source for ttl.
type Provider struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	current  Snapshot
	loaded   bool
	stale    bool
	loadedAt time.Time
}

// NewProvider returns a Provider that re-reads source at most once per ttl.
// A ttl of zero re-reads on every call.
func NewProvider(source Source, ttl time.Duration) *Provider {
	return &Provider{source: source, ttl: ttl, now: time.Now}
}

// Current returns the cached snapshot while it is younger than the TTL,
// otherwise reloads it. When a reload fails the last good snapshot is kept
// and returned; the error is only returned if nothing was ever loaded.
func (p *Provider) Current(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.loaded && !p.stale && p.ttl > 0 && now.Sub(p.loadedAt) < p.ttl {
		return p.current, nil
	}

	snap, err := p.source.Load(ctx)
	if err != nil {
		if p.loaded {
			logging.Warn().Err(err).Time("last_loaded", p.loadedAt).Msg("Settings reload failed, keeping previous snapshot")
			// retry on the next TTL boundary, not on every call
			p.loadedAt = now
			p.stale = false
			return p.current, nil
		}
		return Snapshot{}, err
	}

	if p.loaded && snap.GeoProvider != p.current.GeoProvider {
		logging.Info().Str("from", p.current.GeoProvider).Str("to", snap.GeoProvider).Msg("Geo provider changed")
	}
	p.current = snap
	p.loaded = true
	p.stale = false
	p.loadedAt = now
	return snap, nil
}

// Invalidate forces the next Current call to reload.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
}
