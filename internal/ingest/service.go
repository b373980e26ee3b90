// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package ingest records pageviews and clicks on the request path.
//
// A pageview is persisted synchronously with enriched=false and then handed
// to the enrichment scheduler; the caller never waits on geo lookups. Clicks
// are stored once with their hour, weekday and day-of-month precomputed and
// are never updated.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
	"github.com/tomtom215/dashmark/internal/models"
	"github.com/tomtom215/dashmark/internal/validation"
)

// Store persists raw events.
type Store interface {
	InsertPageview(ctx context.Context, ev *models.PageviewEvent) error
	InsertClick(ctx context.Context, ev *models.ClickEvent) error
}

// ItemCatalog records display names for clicked items. A Store that also
// implements it has names upserted when a click carries one.
type ItemCatalog interface {
	UpsertItem(ctx context.Context, item models.DashboardItem) error
}

// Scheduler queues a pageview for enrichment without blocking.
type Scheduler interface {
	Schedule(eventID string)
}

// IPHasher produces the stored identifier for a client address.
type IPHasher interface {
	Hash(ip string) string
}

// Service is the ingestion entry point used by the HTTP handlers.
type Service struct {
	store     Store
	catalog   ItemCatalog
	scheduler Scheduler
	hasher    IPHasher
	location  *time.Location
	now       func() time.Time
	newID     func() string
}

// NewService builds a Service. loc is the timezone click buckets are
// computed in; nil means the process local zone. scheduler may be nil when
// enrichment is not running, in which case pageviews stay unenriched until
// the next startup requeue.
func NewService(store Store, scheduler Scheduler, hasher IPHasher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	catalog, _ := store.(ItemCatalog)
	return &Service{
		store:     store,
		catalog:   catalog,
		scheduler: scheduler,
		hasher:    hasher,
		location:  loc,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RecordPageview stores a pageview and schedules its enrichment. It returns
// once the row is written.
func (s *Service) RecordPageview(ctx context.Context, path, userAgent, ip string) (string, error) {
	if path == "" {
		return "", validation.NewFieldError("path", "required", "path is required")
	}

	ev := &models.PageviewEvent{
		ID:        s.newID(),
		Path:      path,
		UserAgent: userAgent,
		IPAddress: ip,
		IPHash:    s.hasher.Hash(ip),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertPageview(ctx, ev); err != nil {
		return "", fmt.Errorf("record pageview: %w", err)
	}
	metrics.EventsIngested.WithLabelValues("pageview").Inc()

	if s.scheduler != nil {
		s.scheduler.Schedule(ev.ID)
	}
	logging.Ctx(ctx).Debug().Str("event_id", ev.ID).Str("path", path).Msg("Pageview recorded")
	return ev.ID, nil
}

// RecordClick stores a click on a bookmark or service. A zero at means now.
// A non-empty name refreshes the item's display name; failing to store it
// does not fail the click.
func (s *Service) RecordClick(ctx context.Context, itemID, kind, name string, at time.Time) (*models.ClickEvent, error) {
	if itemID == "" {
		return nil, validation.NewFieldError("itemId", "required", "itemId is required")
	}
	if kind != models.ItemKindBookmark && kind != models.ItemKindService {
		return nil, validation.NewFieldError("itemKind", "oneof", "itemKind must be one of: bookmark service")
	}
	if at.IsZero() {
		at = s.now()
	}

	ev := models.NewClickEvent(s.newID(), itemID, kind, at, s.location)
	if err := s.store.InsertClick(ctx, &ev); err != nil {
		return nil, fmt.Errorf("record click: %w", err)
	}
	metrics.EventsIngested.WithLabelValues("click").Inc()

	if name != "" && s.catalog != nil {
		item := models.DashboardItem{ID: itemID, Kind: kind, Name: name}
		if err := s.catalog.UpsertItem(ctx, item); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("item_id", itemID).Msg("Failed to store item name")
		}
	}
	return &ev, nil
}
