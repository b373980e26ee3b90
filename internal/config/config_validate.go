// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the loaded configuration. Geo provider credentials are not
// required here: a missing path or token only disables enrichment at run
// time, it never prevents startup.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateGeoIP(); err != nil {
		return err
	}
	if err := c.validateAnalytics(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("ENRICHMENT_WORKERS must be at least 1, got %d", c.Enrichment.Workers)
	}
	if c.Enrichment.QueueBuffer < 0 {
		return fmt.Errorf("ENRICHMENT_QUEUE_BUFFER must be >= 0, got %d", c.Enrichment.QueueBuffer)
	}
	if c.Enrichment.TaskTimeout <= 0 {
		return fmt.Errorf("ENRICHMENT_TASK_TIMEOUT must be positive")
	}
	if c.Enrichment.SettingsTTL < 0 {
		return fmt.Errorf("ENRICHMENT_SETTINGS_TTL must be >= 0")
	}
	return nil
}

func (c *Config) validateGeoIP() error {
	switch c.GeoIP.Provider {
	case ProviderLocalDB, ProviderRemoteAPI:
	default:
		return fmt.Errorf("GEOIP_PROVIDER must be %q or %q, got %q",
			ProviderLocalDB, ProviderRemoteAPI, c.GeoIP.Provider)
	}
	if c.GeoIP.Timeout <= 0 {
		return fmt.Errorf("GEOIP_TIMEOUT must be positive")
	}
	if c.GeoIP.RateLimit < 0 {
		return fmt.Errorf("GEOIP_RATE_LIMIT must be >= 0")
	}
	if c.GeoIP.RateLimit > 0 && c.GeoIP.Burst < 1 {
		return fmt.Errorf("GEOIP_BURST must be at least 1 when GEOIP_RATE_LIMIT is set")
	}
	if c.GeoCache.TTL < time.Minute {
		return fmt.Errorf("GEO_CACHE_TTL must be at least 1m, got %v", c.GeoCache.TTL)
	}
	return nil
}

func (c *Config) validateAnalytics() error {
	if c.Analytics.DownsampleThreshold < 3 {
		return fmt.Errorf("ANALYTICS_DOWNSAMPLE_THRESHOLD must be at least 3, got %d", c.Analytics.DownsampleThreshold)
	}
	if c.Analytics.MaxLimit < 1 {
		return fmt.Errorf("ANALYTICS_MAX_LIMIT must be at least 1, got %d", c.Analytics.MaxLimit)
	}
	if c.Analytics.Timezone != "" {
		if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
			return fmt.Errorf("ANALYTICS_TIMEZONE %q is not a valid IANA zone: %w", c.Analytics.Timezone, err)
		}
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.PageviewDays < 0 || c.Retention.ClickDays < 0 {
		return fmt.Errorf("retention days must be >= 0")
	}
	if (c.Retention.PageviewDays > 0 || c.Retention.ClickDays > 0) && c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive when retention is enabled")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitRequests)
	}
	if c.Security.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.Security.RateLimitWindow)
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
