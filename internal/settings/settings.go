// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package settings exposes the enrichment configuration as a time-boxed
// snapshot. Each enrichment reads one snapshot and uses it for the whole
// task; the snapshot is re-read from its source once it is older than the
// configured TTL, or immediately after Invalidate.
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/dashmark/internal/config"
)

// Provider names accepted in Snapshot.GeoProvider.
const (
	GeoProviderLocalDB   = config.ProviderLocalDB
	GeoProviderRemoteAPI = config.ProviderRemoteAPI
)

// Snapshot is a point-in-time read of the enrichment settings.
type Snapshot struct {
	EnrichmentEnabled bool
	GeoProvider       string
	LocalDBPath       string
	MaxDBAge          time.Duration
	RemoteAPIURL      string
	RemoteAPIToken    string
	LoadedAt          time.Time
}

// ConfigurationError means enrichment is disabled or cannot run with the
// current settings. Enrichment short-circuits on it.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "enrichment configuration: " + e.Reason
	}
	return fmt.Sprintf("enrichment configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks that the snapshot selects a usable provider.
func (s Snapshot) Validate() error {
	if !s.EnrichmentEnabled {
		return &ConfigurationError{Field: "enabled", Reason: "enrichment disabled"}
	}
	switch s.GeoProvider {
	case GeoProviderLocalDB:
		if s.LocalDBPath == "" {
			return &ConfigurationError{Field: "local_db_path", Reason: "required for " + GeoProviderLocalDB}
		}
	case GeoProviderRemoteAPI:
		if s.RemoteAPIURL == "" {
			return &ConfigurationError{Field: "remote_api_url", Reason: "required for " + GeoProviderRemoteAPI}
		}
		if s.RemoteAPIToken == "" {
			return &ConfigurationError{Field: "remote_api_token", Reason: "required for " + GeoProviderRemoteAPI}
		}
	default:
		return &ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", s.GeoProvider)}
	}
	return nil
}

// FromConfig builds a snapshot from a loaded configuration.
func FromConfig(cfg *config.Config) Snapshot {
	return Snapshot{
		EnrichmentEnabled: cfg.Enrichment.Enabled,
		GeoProvider:       cfg.GeoIP.Provider,
		LocalDBPath:       cfg.GeoIP.LocalDBPath,
		MaxDBAge:          cfg.GeoIP.MaxDBAge,
		RemoteAPIURL:      cfg.GeoIP.RemoteAPIURL,
		RemoteAPIToken:    cfg.GeoIP.RemoteAPIToken,
	}
}

// Source loads a fresh snapshot.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// StaticSource always returns the same snapshot.
type StaticSource struct {
	Snapshot Snapshot
}

func (s StaticSource) Load(context.Context) (Snapshot, error) {
	snap := s.Snapshot
	snap.LoadedAt = time.Now()
	return snap, nil
}

// FileSource re-reads configuration through loader (normally config.Load,
// which layers the YAML file and environment) on every Load.
type FileSource struct {
	loader func() (*config.Config, error)
}

// NewFileSource returns a FileSource using loader.
func NewFileSource(loader func() (*config.Config, error)) *FileSource {
	return &FileSource{loader: loader}
}

func (f *FileSource) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	cfg, err := f.loader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reload configuration: %w", err)
	}
	snap := FromConfig(cfg)
	snap.LoadedAt = time.Now()
	return snap, nil
}
