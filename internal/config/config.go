// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package config loads process configuration from struct defaults, an
// optional YAML file and environment variables, in that order of precedence
// (later layers win).
package config

import (
	"net"
	"strconv"
	"time"
)

// Geo provider selectors accepted by GeoIPConfig.Provider.
const (
	ProviderLocalDB   = "local-db"
	ProviderRemoteAPI = "remote-api"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	GeoIP      GeoIPConfig      `koanf:"geoip"`
	GeoCache   GeoCacheConfig   `koanf:"geo_cache"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Retention  RetentionConfig  `koanf:"retention"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the embedded DuckDB file.
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // ":memory:" for an ephemeral database
	MaxMemory string `koanf:"max_memory"` // DuckDB memory_limit, e.g. "1GB"
	Threads   int    `koanf:"threads"`    // 0 = runtime.NumCPU()
}

// EnrichmentConfig controls the background geo enrichment workers. Enabled
// is only the startup default: the live value is re-read through the
// settings snapshot every SettingsTTL.
type EnrichmentConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Workers     int           `koanf:"workers"`
	QueueBuffer int64         `koanf:"queue_buffer"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
	SettingsTTL time.Duration `koanf:"settings_ttl"`
}

// GeoIPConfig selects and configures the single active geo provider.
type GeoIPConfig struct {
	Provider       string        `koanf:"provider"`
	LocalDBPath    string        `koanf:"local_db_path"`
	MaxDBAge       time.Duration `koanf:"max_db_age"`
	RemoteAPIURL   string        `koanf:"remote_api_url"`
	RemoteAPIToken string        `koanf:"remote_api_token"`
	Timeout        time.Duration `koanf:"timeout"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second, 0 = unlimited
	Burst          int           `koanf:"burst"`
	HashSalt       string        `koanf:"hash_salt"`
}

// GeoCacheConfig configures the persisted geo lookup cache. BadgerPath
// enables the optional in-process L1 tier when set.
type GeoCacheConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	BadgerPath string        `koanf:"badger_path"`
}

type AnalyticsConfig struct {
	DownsampleThreshold int           `koanf:"downsample_threshold"`
	CacheTTL            time.Duration `koanf:"cache_ttl"`
	MaxLimit            int           `koanf:"max_limit"`
	Timezone            string        `koanf:"timezone"` // IANA name, empty = server local time
}

// RetentionConfig bounds how long raw events are kept. Zero disables the
// purge for that table.
type RetentionConfig struct {
	PageviewDays int           `koanf:"pageview_days"`
	ClickDays    int           `koanf:"click_days"`
	Interval     time.Duration `koanf:"interval"`
}

type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	JWTSecret         string        `koanf:"jwt_secret"` // empty = analytics endpoints are open
	TokenTTL          time.Duration `koanf:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Location resolves Analytics.Timezone, falling back to time.Local.
func (a AnalyticsConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
