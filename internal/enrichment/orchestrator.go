// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package enrichment attaches geographic data to recorded pageviews after
// the ingest request has returned.
//
// Each pageview is enriched at most once. Whatever happens (private address,
// disabled settings, cache hit, provider success or failure) the event ends
// with enriched=true, and failed lookups are never retried. Nothing in this
// package returns an error to the code that scheduled the work; failures are
// logged and counted.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/geocache"
	"github.com/tomtom215/dashmark/internal/geoip"
	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
	"github.com/tomtom215/dashmark/internal/models"
	"github.com/tomtom215/dashmark/internal/settings"
)

// Outcome is the terminal branch an enrichment took.
type Outcome string

const (
	OutcomeMissing         Outcome = "missing"
	OutcomeAlreadyEnriched Outcome = "already_enriched"
	OutcomePrivateSkip     Outcome = "private_skip"
	OutcomeDisabled        Outcome = "disabled"
	OutcomeCacheHit        Outcome = "cache_hit"
	OutcomeProviderSuccess Outcome = "provider_success"
	OutcomeProviderFailure Outcome = "provider_failure"
	OutcomeUpdateFailed    Outcome = "update_failed"
)

// EventStore reads and finalizes pageviews.
type EventStore interface {
	GetPageview(ctx context.Context, id string) (*models.PageviewEvent, error)
	MarkPageviewEnriched(ctx context.Context, id string, loc *models.Location) error
}

// Cache is the geo lookup cache.
type Cache interface {
	Get(ctx context.Context, ipHash string) (*models.GeoCacheEntry, error)
	Put(ctx context.Context, ipHash string, loc models.Location, provider string) (*models.GeoCacheEntry, error)
}

// SettingsReader yields the settings snapshot for one enrichment.
type SettingsReader interface {
	Current(ctx context.Context) (settings.Snapshot, error)
}

// ProviderSelector picks the provider for a snapshot.
type ProviderSelector interface {
	Active(snap settings.Snapshot) (geoip.Provider, error)
}

// CacheWriteError wraps a failed cache upsert. It never fails the
// enrichment; the looked-up location is still applied to the event.
type CacheWriteError struct {
	IPHash string
	Err    error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("geo cache write for %s: %v", e.IPHash, e.Err)
}

func (e *CacheWriteError) Unwrap() error { return e.Err }

// Orchestrator runs the enrichment state machine for one pageview.
type Orchestrator struct {
	events   EventStore
	cache    Cache
	settings SettingsReader
	selector ProviderSelector
}

// NewOrchestrator wires the collaborators.
func NewOrchestrator(events EventStore, cache Cache, settings SettingsReader, selector ProviderSelector) *Orchestrator {
	return &Orchestrator{events: events, cache: cache, settings: settings, selector: selector}
}

// Enrich resolves and stores the location for pageview eventID and reports
// which branch was taken. It never returns an error and never panics on
// collaborator errors.
func (o *Orchestrator) Enrich(ctx context.Context, eventID string) Outcome {
	start := time.Now()
	outcome := o.enrich(ctx, eventID)
	metrics.RecordEnrichment(string(outcome), time.Since(start))
	return outcome
}

func (o *Orchestrator) enrich(ctx context.Context, eventID string) Outcome {
	log := logging.Ctx(ctx).With().Str("event_id", eventID).Logger()

	ev, err := o.events.GetPageview(ctx, eventID)
	if errors.Is(err, database.ErrNotFound) {
		log.Debug().Msg("Pageview gone before enrichment")
		return OutcomeMissing
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load pageview for enrichment")
		return OutcomeUpdateFailed
	}
	if ev.Enriched {
		return OutcomeAlreadyEnriched
	}

	if geoip.IsPrivate(ev.IPAddress) {
		return o.finish(ctx, ev, nil, OutcomePrivateSkip)
	}

	provider, err := o.activeProvider(ctx)
	if err != nil {
		var cfgErr *settings.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Debug().Err(err).Msg("Enrichment skipped")
		} else {
			log.Warn().Err(err).Msg("Enrichment settings unavailable")
		}
		return o.finish(ctx, ev, nil, OutcomeDisabled)
	}

	entry, err := o.cache.Get(ctx, ev.IPHash)
	switch {
	case err == nil:
		loc := entry.Location
		return o.finish(ctx, ev, &loc, OutcomeCacheHit)
	case !errors.Is(err, geocache.ErrMiss):
		log.Warn().Err(err).Msg("Geo cache read failed, falling through to provider")
	}

	lookupStart := time.Now()
	res := provider.Lookup(ctx, ev.IPAddress)
	metrics.RecordGeoLookup(provider.Name(), res.OK(), time.Since(lookupStart))
	if !res.OK() {
		perr := res.Err
		if perr == nil {
			perr = &geoip.ProviderError{Provider: provider.Name(), Reason: "empty result"}
		}
		log.Warn().Err(perr).Str("provider", provider.Name()).Msg("Geo lookup failed")
		return o.finish(ctx, ev, nil, OutcomeProviderFailure)
	}

	loc := *res.Location
	if _, err := o.cache.Put(ctx, ev.IPHash, loc, provider.Name()); err != nil {
		cwErr := &CacheWriteError{IPHash: ev.IPHash, Err: err}
		log.Warn().Err(cwErr).Msg("Geo cache write failed")
	}
	return o.finish(ctx, ev, &loc, OutcomeProviderSuccess)
}

func (o *Orchestrator) activeProvider(ctx context.Context) (geoip.Provider, error) {
	snap, err := o.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	return o.selector.Active(snap)
}

// finish marks the event enriched with loc (nil for no geo data).
func (o *Orchestrator) finish(ctx context.Context, ev *models.PageviewEvent, loc *models.Location, outcome Outcome) Outcome {
	err := o.events.MarkPageviewEnriched(ctx, ev.ID, loc)
	switch {
	case err == nil:
		return outcome
	case errors.Is(err, database.ErrAlreadyEnriched):
		// a concurrent task for the same event got there first
		return OutcomeAlreadyEnriched
	case errors.Is(err, database.ErrNotFound):
		return OutcomeMissing
	default:
		logging.Ctx(ctx).Error().Err(err).Str("event_id", ev.ID).Str("outcome", string(outcome)).Msg("Failed to store enrichment result")
		return OutcomeUpdateFailed
	}
}
