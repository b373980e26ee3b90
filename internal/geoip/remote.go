// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package geoip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
	"github.com/tomtom215/dashmark/internal/models"
)

// ProviderRemoteAPI is the name reported by RemoteProvider.
const ProviderRemoteAPI = "remote-api"

// maxResponseBytes caps how much of a provider response is decoded.
const maxResponseBytes = 64 << 10

// RemoteOptions configures a RemoteProvider.
type RemoteOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// RateLimit is requests per second; zero or negative disables the
	// limiter.
	RateLimit float64
	Burst     int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// RemoteProvider resolves addresses through a token-authenticated HTTP API
// returning ipinfo-style JSON. Calls are rate limited locally and wrapped
// in a circuit breaker; neither ever waits, a refusal is a failed Result.
type RemoteProvider struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*remoteResponse]
}

// remoteResponse is the JSON body returned by the provider.
type remoteResponse struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Loc         string `json:"loc"`
	Timezone    string `json:"timezone"`
	Bogon       bool   `json:"bogon"`
}

// lookupError carries a failure reason through the circuit breaker.
// Client-side failures such as a bad token or an unknown IP do not count
// against the breaker.
type lookupError struct {
	reason string
	err    error
	client bool
}

func (e *lookupError) Error() string {
	if e.err != nil {
		return e.reason + ": " + e.err.Error()
	}
	return e.reason
}

func (e *lookupError) Unwrap() error { return e.err }

// NewRemoteProvider builds a provider for opts.
func NewRemoteProvider(opts RemoteOptions) *RemoteProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &RemoteProvider{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		timeout: timeout,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		cb:      newBreaker(ProviderRemoteAPI),
	}
}

// newBreaker mirrors the API client breaker: trips at a 60% failure ratio
// over at least 10 requests, probes again after a minute.
func newBreaker(name string) *gobreaker.CircuitBreaker[*remoteResponse] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*remoteResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		IsSuccessful: func(err error) bool {
			var le *lookupError
			if errors.As(err, &le) {
				return le.client
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (p *RemoteProvider) Name() string { return ProviderRemoteAPI }

// Lookup queries the remote API for ip.
func (p *RemoteProvider) Lookup(ctx context.Context, ip string) (res Result) {
	defer guard(ProviderRemoteAPI, &res)

	ip = normalizeIPAddress(strings.TrimSpace(ip))
	if net.ParseIP(ip) == nil {
		return failure(ProviderRemoteAPI, ReasonInvalidIP, nil)
	}
	if p.token == "" {
		return failure(ProviderRemoteAPI, ReasonBadToken, nil)
	}
	if !p.limiter.Allow() {
		return failure(ProviderRemoteAPI, ReasonRateLimited, nil)
	}

	body, err := p.cb.Execute(func() (*remoteResponse, error) {
		return p.fetch(ctx, ip)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(ProviderRemoteAPI, "rejected").Inc()
			return failure(ProviderRemoteAPI, ReasonCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(ProviderRemoteAPI, "failure").Inc()
		var le *lookupError
		if errors.As(err, &le) {
			return failure(ProviderRemoteAPI, le.reason, le.err)
		}
		return failure(ProviderRemoteAPI, ReasonUnexpectedBody, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(ProviderRemoteAPI, "success").Inc()

	if body.Bogon {
		return failure(ProviderRemoteAPI, ReasonNotFound, nil)
	}
	return success(body.location())
}

func (p *RemoteProvider) fetch(ctx context.Context, ip string) (*remoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := p.baseURL + "/" + url.PathEscape(ip) + "?token=" + url.QueryEscape(p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &lookupError{reason: ReasonUnexpectedBody, err: err, client: true}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &lookupError{reason: ReasonTimeout, err: err}
		}
		return nil, &lookupError{reason: "request failed", err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &lookupError{reason: ReasonBadToken, client: true}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &lookupError{reason: ReasonProviderLimit, client: true}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &lookupError{reason: ReasonNotFound, client: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &lookupError{reason: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	var body remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &lookupError{reason: ReasonTimeout, err: err}
		}
		return nil, &lookupError{reason: ReasonUnexpectedBody, err: err}
	}
	return &body, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (r *remoteResponse) location() *models.Location {
	loc := &models.Location{
		CountryCode: strings.ToUpper(strings.TrimSpace(r.Country)),
		CountryName: optString(r.CountryName),
		City:        optString(r.City),
		Region:      optString(r.Region),
		Timezone:    optString(r.Timezone),
	}
	if lat, lon, ok := parseLoc(r.Loc); ok {
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return loc
}

// parseLoc parses "lat,lon".
func parseLoc(s string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// Health reports the breaker state; the remote API is not probed.
func (p *RemoteProvider) Health() Health {
	state := p.cb.State()
	return Health{
		Provider: ProviderRemoteAPI,
		Ready:    state != gobreaker.StateOpen,
		Detail:   "circuit " + state.String(),
		Extra:    map[string]any{"base_url": p.baseURL},
	}
}
