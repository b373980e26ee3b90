// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geocache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/models"
)

const keyPrefix = "geo:"

// errL1Miss is returned by BadgerTier.Get when the key is absent or its
// TTL has elapsed.
var errL1Miss = errors.New("geo l1 miss")

// BadgerTier is an in-process key/value tier in front of the DuckDB cache.
// Entries carry a native badger TTL matching their expiration, so expired
// keys disappear without a sweep.
type BadgerTier struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerTier opens (or creates) the tier at path.
func OpenBadgerTier(path string) (*BadgerTier, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create geo cache directory: %w", err)
	}
	opts := badger.DefaultOptions(path)
	opts.NumCompactors = 2
	opts.Logger = nil
	return openBadger(opts, path)
}

// OpenInMemoryBadgerTier opens a tier that lives only in memory.
func OpenInMemoryBadgerTier() (*BadgerTier, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts, ":memory:")
}

func openBadger(opts badger.Options, label string) (*BadgerTier, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", label).Msg("Geo cache L1 tier opened")
	return &BadgerTier{db: db}, nil
}

// Get returns the entry stored for hash.
func (b *BadgerTier) Get(hash string) (*models.GeoCacheEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errL1Miss
	}

	var entry models.GeoCacheEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errL1Miss
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set stores entry with a TTL of expiresAt - now. Entries that are already
// expired are not written.
func (b *BadgerTier) Set(entry *models.GeoCacheEntry, now time.Time) error {
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal geo cache entry: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+entry.IPHash), data).WithTTL(ttl))
	})
}

// Close closes the underlying database. It is safe to call more than once.
func (b *BadgerTier) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
