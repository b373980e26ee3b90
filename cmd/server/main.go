// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/dashmark/internal/analytics"
	"github.com/tomtom215/dashmark/internal/api"
	"github.com/tomtom215/dashmark/internal/auth"
	"github.com/tomtom215/dashmark/internal/cache"
	"github.com/tomtom215/dashmark/internal/config"
	"github.com/tomtom215/dashmark/internal/database"
	"github.com/tomtom215/dashmark/internal/enrichment"
	"github.com/tomtom215/dashmark/internal/geocache"
	"github.com/tomtom215/dashmark/internal/geoip"
	"github.com/tomtom215/dashmark/internal/ingest"
	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/settings"
	"github.com/tomtom215/dashmark/internal/supervisor"
	"github.com/tomtom215/dashmark/internal/supervisor/services"
)

// analyticsCacheEntries bounds the analytics response cache.
const analyticsCacheEntries = 1000

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	issueToken := flag.String("issue-token", "", "print an analytics read token for `subject` and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("geo_provider", cfg.GeoIP.Provider).
		Bool("enrichment_enabled", cfg.Enrichment.Enabled).
		Msg("Starting Dashmark with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	var l1 *geocache.BadgerTier
	if cfg.GeoCache.BadgerPath != "" {
		l1, err = geocache.OpenBadgerTier(cfg.GeoCache.BadgerPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.GeoCache.BadgerPath).
				Msg("Failed to open BadgerDB geo cache tier, continuing with DuckDB only")
			l1 = nil
		} else {
			defer func() {
				if err := l1.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing BadgerDB geo cache tier")
				}
			}()
			logging.Info().Str("path", cfg.GeoCache.BadgerPath).Msg("BadgerDB geo cache tier enabled")
		}
	}
	geoCache := geocache.New(db, l1, cfg.GeoCache.TTL)

	settingsProvider := settings.NewProvider(settings.NewFileSource(config.Load), cfg.Enrichment.SettingsTTL)

	selector := geoip.NewSelector(geoip.DefaultRemoteOptions(cfg.GeoIP.Timeout, cfg.GeoIP.RateLimit, cfg.GeoIP.Burst))
	defer func() {
		if err := selector.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing geo provider")
		}
	}()

	orchestrator := enrichment.NewOrchestrator(db, geoCache, settingsProvider, selector)
	queueCfg := enrichment.DefaultQueueConfig()
	queueCfg.Workers = cfg.Enrichment.Workers
	queueCfg.Buffer = cfg.Enrichment.QueueBuffer
	queueCfg.TaskTimeout = cfg.Enrichment.TaskTimeout
	queueCfg.CloseTimeout = cfg.Server.ShutdownTimeout
	queue, err := enrichment.NewQueue(orchestrator, db, queueCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create enrichment queue")
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing enrichment queue")
		}
	}()

	if cfg.GeoIP.HashSalt == "" {
		logging.Warn().Msg("GEOIP_HASH_SALT is empty; IP hashes are unsalted")
	}
	loc := cfg.Analytics.Location()
	ingestService := ingest.NewService(db, queue, geoip.NewHasher(cfg.GeoIP.HashSalt), loc)

	analyticsService := analytics.NewService(db, analytics.Options{
		DownsampleThreshold: cfg.Analytics.DownsampleThreshold,
		MaxLimit:            cfg.Analytics.MaxLimit,
		Location:            loc,
	})

	var responseCache *cache.Cache
	if cfg.Analytics.CacheTTL > 0 {
		responseCache = cache.New("analytics", cfg.Analytics.CacheTTL, analyticsCacheEntries, cfg.Analytics.CacheTTL)
		defer responseCache.Close()
	}

	var authMiddleware *auth.Middleware
	if cfg.Security.JWTSecret != "" {
		jwtManager, err := auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		authMiddleware = auth.NewMiddleware(jwtManager)
		logging.Info().Msg("JWT authentication enabled for analytics endpoints")
	} else {
		logging.Warn().Msg("JWT_SECRET is not set; analytics endpoints are publicly readable")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Ingest rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	handler := api.NewHandler(api.Dependencies{
		Ingest:    ingestService,
		Analytics: analyticsService,
		DB:        db,
		Providers: selector,
		Queue:     queue,
		Cache:     responseCache,
	})
	chiMiddleware := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security))
	router := api.NewRouter(handler, chiMiddleware, authMiddleware)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewRetentionService(db, cfg.Retention))
	tree.AddMessagingService(services.NewEnrichmentQueueService(queue))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// printToken writes a signed analytics token for subject to stdout.
func printToken(cfg *config.Config, subject string) error {
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}
	token, err := jwtManager.GenerateToken(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}
