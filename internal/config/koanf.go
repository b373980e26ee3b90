// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dashmark/config.yaml",
	"/etc/dashmark/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/dashmark.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Enrichment: EnrichmentConfig{
			Enabled:     false,
			Workers:     4,
			QueueBuffer: 1024,
			TaskTimeout: 30 * time.Second,
			SettingsTTL: 60 * time.Second,
		},
		GeoIP: GeoIPConfig{
			Provider:     ProviderLocalDB,
			LocalDBPath:  "/data/GeoLite2-City.mmdb",
			MaxDBAge:     45 * 24 * time.Hour,
			RemoteAPIURL: "https://ipinfo.io",
			Timeout:      5 * time.Second,
			RateLimit:    10,
			Burst:        20,
		},
		GeoCache: GeoCacheConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			DownsampleThreshold: 150,
			CacheTTL:            30 * time.Second,
			MaxLimit:            100,
		},
		Retention: RetentionConfig{
			Interval: 6 * time.Hour,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			TokenTTL:          30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	k, err := newKoanf(findConfigFile())
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func newKoanf(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}
	return k, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma separated env values into string slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists the accepted environment variables. Anything else in
// the environment is ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"enrichment_enabled":      "enrichment.enabled",
	"enrichment_workers":      "enrichment.workers",
	"enrichment_queue_buffer": "enrichment.queue_buffer",
	"enrichment_task_timeout": "enrichment.task_timeout",
	"enrichment_settings_ttl": "enrichment.settings_ttl",

	"geoip_provider":         "geoip.provider",
	"geoip_local_db_path":    "geoip.local_db_path",
	"geoip_max_db_age":       "geoip.max_db_age",
	"geoip_remote_api_url":   "geoip.remote_api_url",
	"geoip_remote_api_token": "geoip.remote_api_token",
	"geoip_timeout":          "geoip.timeout",
	"geoip_rate_limit":       "geoip.rate_limit",
	"geoip_burst":            "geoip.burst",
	"geoip_hash_salt":        "geoip.hash_salt",

	"geo_cache_ttl":         "geo_cache.ttl",
	"geo_cache_badger_path": "geo_cache.badger_path",

	"analytics_downsample_threshold": "analytics.downsample_threshold",
	"analytics_cache_ttl":            "analytics.cache_ttl",
	"analytics_max_limit":            "analytics.max_limit",
	"analytics_timezone":             "analytics.timezone",

	"retention_pageview_days": "retention.pageview_days",
	"retention_click_days":    "retention.click_days",
	"retention_interval":      "retention.interval",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
