// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geocache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/models"
)

// memStore mimics the DuckDB geo_cache table: one row per hash, expired rows
// read as not found.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]models.GeoCacheEntry
	gets     int
	upserts  int
	failNext error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.GeoCacheEntry)}
}

func (m *memStore) GetGeoCacheEntry(_ context.Context, hash string, now time.Time) (*models.GeoCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	e, ok := m.rows[hash]
	if !ok || !e.ExpiresAt.After(now) {
		return nil, database.ErrNotFound
	}
	return &e, nil
}

func (m *memStore) UpsertGeoCacheEntry(_ context.Context, e *models.GeoCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.upserts++
	m.rows[e.IPHash] = *e
	return nil
}

func strPtr(s string) *string { return &s }

func openL1(t *testing.T) *BadgerTier {
	t.Helper()
	l1, err := OpenInMemoryBadgerTier()
	if err != nil {
		t.Fatalf("OpenInMemoryBadgerTier() error = %v", err)
	}
	t.Cleanup(func() { _ = l1.Close() })
	return l1
}

func TestTiered_MissPutHit(t *testing.T) {
	store := newMemStore()
	c := New(store, nil, 0)
	ctx := context.Background()

	if _, err := c.Get(ctx, "h1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() on empty cache error = %v, want ErrMiss", err)
	}

	before := time.Now()
	entry, err := c.Put(ctx, "h1", models.Location{CountryCode: "US", City: strPtr("Austin")}, "remote-api")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	wantExpiry := before.Add(DefaultTTL)
	if d := entry.ExpiresAt.Sub(wantExpiry); d < 0 || d > time.Minute {
		t.Errorf("ExpiresAt = %v, want about %v", entry.ExpiresAt, wantExpiry)
	}

	got, err := c.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Location.CountryCode != "US" || *got.Location.City != "Austin" || got.Provider != "remote-api" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestTiered_ExpiredReadsAsMiss(t *testing.T) {
	store := newMemStore()
	c := New(store, nil, time.Hour)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	if _, err := c.Put(ctx, "h1", models.Location{CountryCode: "FR"}, "local-db"); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(59 * time.Minute)
	if _, err := c.Get(ctx, "h1"); err != nil {
		t.Errorf("Get() before expiry error = %v", err)
	}
	clock = clock.Add(time.Minute)
	if _, err := c.Get(ctx, "h1"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() at expiry error = %v, want ErrMiss", err)
	}
}

func TestTiered_PutFailure(t *testing.T) {
	store := newMemStore()
	store.failNext = errors.New("conflict")
	c := New(store, nil, 0)

	entry, err := c.Put(context.Background(), "h1", models.Location{CountryCode: "US"}, "p")
	if err == nil {
		t.Fatal("Put() should surface the store error")
	}
	if entry == nil || entry.Location.CountryCode != "US" {
		t.Error("Put() should still return the built entry")
	}
}

func TestTiered_L1ServesRepeatReads(t *testing.T) {
	store := newMemStore()
	c := New(store, openL1(t), 0)
	ctx := context.Background()

	if _, err := c.Put(ctx, "h1", models.Location{CountryCode: "JP"}, "local-db"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "h1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Location.CountryCode != "JP" {
			t.Errorf("CountryCode = %q", got.Location.CountryCode)
		}
	}
	if store.gets != 0 {
		t.Errorf("store reads = %d, want 0 with a warm L1", store.gets)
	}
}

func TestTiered_L1Backfill(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.rows["h1"] = models.GeoCacheEntry{
		IPHash: "h1", Location: models.Location{CountryCode: "BR"}, Provider: "remote-api",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	c := New(store, openL1(t), 0)
	ctx := context.Background()

	if _, err := c.Get(ctx, "h1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "h1"); err != nil {
		t.Fatal(err)
	}
	if store.gets != 1 {
		t.Errorf("store reads = %d, want 1 after backfill", store.gets)
	}
}

func TestBadgerTier_SkipsExpiredAndClosed(t *testing.T) {
	l1 := openL1(t)
	now := time.Now()

	expired := &models.GeoCacheEntry{IPHash: "old", ExpiresAt: now.Add(-time.Second)}
	if err := l1.Set(expired, now); err != nil {
		t.Fatal(err)
	}
	if _, err := l1.Get("old"); !errors.Is(err, errL1Miss) {
		t.Errorf("expired entry should not be written, Get() error = %v", err)
	}

	if err := l1.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l1.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := l1.Get("anything"); !errors.Is(err, errL1Miss) {
		t.Errorf("Get() after Close error = %v", err)
	}
}
