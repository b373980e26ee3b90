// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geoip

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/dashmark/internal/models"
)

// Provider is a geolocation backend. Lookup never panics and never returns
// a Go error; every failure is reported through Result.Err.
type Provider interface {
	Lookup(ctx context.Context, ip string) Result

	// Name identifies the provider in logs, metrics and cache entries.
	Name() string
}

// HealthReporter is implemented by providers that can describe their own
// readiness, such as the age of a local database file.
type HealthReporter interface {
	Health() Health
}

// Health is a point-in-time provider status for the readiness endpoint.
type Health struct {
	Provider string         `json:"provider"`
	Ready    bool           `json:"ready"`
	Detail   string         `json:"detail,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Result is the tagged outcome of a lookup: exactly one of Location and Err
// is set.
type Result struct {
	Location *models.Location
	Err      *ProviderError
}

// OK reports whether the lookup succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Location != nil
}

// ProviderError describes why a lookup failed.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Failure reasons shared by the providers.
const (
	ReasonInvalidIP      = "invalid IP address"
	ReasonNotFound       = "IP not found"
	ReasonMissingFile    = "database file missing"
	ReasonMalformedDB    = "malformed database"
	ReasonTimeout        = "lookup timed out"
	ReasonBadToken       = "invalid or missing token"
	ReasonRateLimited    = "rate limit exceeded"
	ReasonProviderLimit  = "rate limited by provider"
	ReasonCircuitOpen    = "circuit breaker open"
	ReasonUnexpectedBody = "unexpected response"
	ReasonPanic          = "provider panicked"
)

func success(loc *models.Location) Result {
	if loc.CountryCode == "" {
		loc.CountryCode = models.UnknownCountry
	}
	return Result{Location: loc}
}

func failure(provider, reason string, err error) Result {
	return Result{Err: &ProviderError{Provider: provider, Reason: reason, Err: err}}
}

// guard converts a panic inside a lookup into a failed Result.
func guard(provider string, res *Result) {
	if r := recover(); r != nil {
		*res = failure(provider, ReasonPanic, fmt.Errorf("%v", r))
	}
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
