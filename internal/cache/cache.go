// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package cache holds analytics responses in memory for a short TTL so
// dashboards polling the same range do not re-run the aggregate queries.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashmark/internal/metrics"
)

// Entry is a cached value and its deadline.
type Entry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Cache is a thread-safe TTL cache. When maxEntries is reached the entry
// closest to expiry is evicted to make room.
type Cache struct {
	name       string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a cache named name (used as the metrics label). A
// maxEntries of zero means unbounded. cleanupInterval <= 0 disables the
// background sweep; expired entries are then only dropped on access.
func New(name string, ttl time.Duration, maxEntries int, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		name:       name,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]Entry),
		stop:       make(chan struct{}),
	}
	c.stats.LastCleanup = c.now()
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// TTL returns the default time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.ExpiresAt) {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		metrics.RecordCacheLookup(c.name, true)
		return entry.Data, true
	}

	c.mu.Lock()
	if ok {
		// re-check under the write lock, a Set may have refreshed it
		if cur, still := c.entries[key]; still && !c.now().Before(cur.ExpiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
			metrics.CacheEvictions.WithLabelValues(c.name).Inc()
			c.updateSizeLocked()
		}
	}
	c.stats.Misses++
	c.mu.Unlock()
	metrics.RecordCacheLookup(c.name, false)
	return nil, false
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key for ttl.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = Entry{Data: value, ExpiresAt: c.now().Add(ttl)}
	c.updateSizeLocked()
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
		c.updateSizeLocked()
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]Entry)
	c.updateSizeLocked()
}

// GetStats returns a copy of the counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) cleanup() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted int64
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.stats.Evictions += evicted
	c.stats.LastCleanup = now
	metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(evicted))
	c.updateSizeLocked()
}

func (c *Cache) evictOneLocked() {
	var (
		victim   string
		earliest time.Time
	)
	for key, entry := range c.entries {
		if victim == "" || entry.ExpiresAt.Before(earliest) {
			victim, earliest = key, entry.ExpiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.stats.Evictions++
		metrics.CacheEvictions.WithLabelValues(c.name).Inc()
	}
}

func (c *Cache) updateSizeLocked() {
	c.stats.TotalKeys = int64(len(c.entries))
	metrics.CacheSize.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

// GenerateKey builds a compact key from a method name and its parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}
