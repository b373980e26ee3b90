// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geoip

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
	"github.com/tomtom215/dashmark/internal/models"
)

// ProviderLocalDB is the name reported by LocalProvider.
const ProviderLocalDB = "local-db"

// statInterval bounds how often Lookup checks the file for replacement.
const statInterval = 30 * time.Second

// LocalProvider resolves addresses from a MaxMind-format city database on
// disk. The file is reopened when its modification time changes, so an
// external updater can replace it without a restart.
type LocalProvider struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	reader    *geoip2.Reader
	modTime   time.Time
	lastStat  time.Time
	openError error
}

// NewLocalProvider returns a provider for the database at path. The file is
// opened lazily on the first lookup; a missing file is not an error here.
// maxAge of zero disables the staleness check in Health.
func NewLocalProvider(path string, maxAge time.Duration) *LocalProvider {
	return &LocalProvider{path: path, maxAge: maxAge, now: time.Now}
}

func (p *LocalProvider) Name() string { return ProviderLocalDB }

// Path returns the configured database path.
func (p *LocalProvider) Path() string { return p.path }

// Lookup resolves ip against the database.
func (p *LocalProvider) Lookup(_ context.Context, ip string) (res Result) {
	defer guard(ProviderLocalDB, &res)

	parsed := net.ParseIP(normalizeIPAddress(ip))
	if parsed == nil {
		return failure(ProviderLocalDB, ReasonInvalidIP, nil)
	}

	if reason, err := p.ensureOpen(); err != nil {
		return failure(ProviderLocalDB, reason, err)
	}

	p.mu.RLock()
	record, err := p.reader.City(parsed)
	p.mu.RUnlock()
	if err != nil {
		return failure(ProviderLocalDB, ReasonMalformedDB, err)
	}

	loc, ok := locationFromCity(record)
	if !ok {
		return failure(ProviderLocalDB, ReasonNotFound, nil)
	}
	return success(loc)
}

// ensureOpen opens the reader on first use and reopens it when the file has
// been replaced. It returns a failure reason alongside any error.
func (p *LocalProvider) ensureOpen() (string, error) {
	now := p.now()

	p.mu.RLock()
	fresh := p.reader != nil && now.Sub(p.lastStat) < statInterval
	p.mu.RUnlock()
	if fresh {
		return "", nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	p.lastStat = now
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// keep serving from an already open reader if the file is
			// briefly absent during a replace
			if p.reader != nil {
				return "", nil
			}
			return ReasonMissingFile, err
		}
		return ReasonMissingFile, err
	}

	if p.reader != nil && info.ModTime().Equal(p.modTime) {
		return "", nil
	}

	reader, err := geoip2.Open(p.path)
	if err != nil {
		p.openError = err
		if p.reader != nil {
			logging.Warn().Err(err).Str("path", p.path).Msg("Replacement geo database failed to open, keeping previous")
			return "", nil
		}
		return ReasonMalformedDB, err
	}

	if p.reader != nil {
		if cerr := p.reader.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close previous geo database")
		}
		logging.Info().Str("path", p.path).Time("modified", info.ModTime()).Msg("Reloaded local geo database")
	}
	p.reader = reader
	p.modTime = info.ModTime()
	p.openError = nil
	return "", nil
}

// Health reports whether the database file exists, can be opened, and is
// younger than the configured maximum age.
func (p *LocalProvider) Health() Health {
	h := Health{Provider: ProviderLocalDB, Extra: map[string]any{"path": p.path}}

	info, err := os.Stat(p.path)
	if err != nil {
		h.Detail = ReasonMissingFile
		return h
	}

	age := p.now().Sub(info.ModTime())
	metrics.GeoDatabaseAge.Set(age.Seconds())
	h.Extra["modified"] = info.ModTime().UTC()
	h.Extra["age_hours"] = int64(age.Hours())

	if reason, err := p.ensureOpen(); err != nil {
		h.Detail = reason
		return h
	}

	p.mu.RLock()
	if p.reader != nil {
		md := p.reader.Metadata()
		h.Extra["build_epoch"] = time.Unix(int64(md.BuildEpoch), 0).UTC()
		h.Extra["database_type"] = md.DatabaseType
	}
	if p.openError != nil {
		h.Extra["reload_error"] = p.openError.Error()
	}
	p.mu.RUnlock()

	h.Ready = true
	if p.maxAge > 0 && age > p.maxAge {
		h.Extra["stale"] = true
		h.Detail = "database older than " + p.maxAge.String()
	}
	return h
}

// Close releases the underlying reader.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

func locationFromCity(c *geoip2.City) (*models.Location, bool) {
	if c == nil {
		return nil, false
	}
	hasCoords := c.Location.Latitude != 0 || c.Location.Longitude != 0
	if c.Country.IsoCode == "" && len(c.City.Names) == 0 && !hasCoords {
		return nil, false
	}

	loc := &models.Location{
		CountryCode: c.Country.IsoCode,
		CountryName: optString(c.Country.Names["en"]),
		City:        optString(c.City.Names["en"]),
		Timezone:    optString(c.Location.TimeZone),
	}
	if len(c.Subdivisions) > 0 {
		loc.Region = optString(c.Subdivisions[0].Names["en"])
	}
	if hasCoords {
		lat, lon := c.Location.Latitude, c.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return loc, true
}
