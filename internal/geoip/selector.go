// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geoip

import (
	"sync"
	"time"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/settings"
)

// Selector returns the single active provider for a settings snapshot.
// Provider instances are reused while the settings that shaped them are
// unchanged, so the local reader and the remote breaker/limiter state
// survive across enrichments.
type Selector struct {
	remote RemoteOptions

	mu      sync.Mutex
	local   *LocalProvider
	localID string
	api     *RemoteProvider
	apiID   string
}

// NewSelector returns a Selector. remote supplies the timeout, rate limit
// and HTTP client for remote providers; URL and token come from each
// snapshot.
func NewSelector(remote RemoteOptions) *Selector {
	return &Selector{remote: remote}
}

// Active validates snap and returns the provider it selects. Any problem is
// reported as a *settings.ConfigurationError.
func (s *Selector) Active(snap settings.Snapshot) (Provider, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch snap.GeoProvider {
	case settings.GeoProviderLocalDB:
		id := snap.LocalDBPath + "|" + snap.MaxDBAge.String()
		if s.local == nil || s.localID != id {
			if s.local != nil {
				if err := s.local.Close(); err != nil {
					logging.Warn().Err(err).Msg("Failed to close previous local geo provider")
				}
			}
			s.local = NewLocalProvider(snap.LocalDBPath, snap.MaxDBAge)
			s.localID = id
		}
		return s.local, nil

	default: // settings.GeoProviderRemoteAPI, guaranteed by Validate
		id := snap.RemoteAPIURL + "|" + snap.RemoteAPIToken
		if s.api == nil || s.apiID != id {
			opts := s.remote
			opts.BaseURL = snap.RemoteAPIURL
			opts.Token = snap.RemoteAPIToken
			s.api = NewRemoteProvider(opts)
			s.apiID = id
		}
		return s.api, nil
	}
}

// Health reports on whichever providers have been built so far.
func (s *Selector) Health() []Health {
	s.mu.Lock()
	local, api := s.local, s.api
	s.mu.Unlock()

	var out []Health
	if local != nil {
		out = append(out, local.Health())
	}
	if api != nil {
		out = append(out, api.Health())
	}
	return out
}

// Close releases the local database reader, if any.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return nil
	}
	return s.local.Close()
}

// DefaultRemoteOptions maps the static geoip config onto RemoteOptions.
func DefaultRemoteOptions(timeout time.Duration, ratePerSecond float64, burst int) RemoteOptions {
	return RemoteOptions{Timeout: timeout, RateLimit: ratePerSecond, Burst: burst}
}
