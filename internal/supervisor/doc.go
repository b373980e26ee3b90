// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package supervisor runs Dashmark's long-lived services under a suture v4
tree.

	root ("dashmark")
	├── data-layer
	│   └── RetentionService
	├── messaging-layer
	│   └── EnrichmentQueueService
	└── api-layer
	    └── HTTPServerService

Each layer counts failures on its own, so a crashing enrichment queue backs
off without taking the HTTP server down with it. Supervisor events are
logged through sutureslog using the zerolog-backed slog bridge from
package logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewRetentionService(db, cfg.Retention))
	tree.AddMessagingService(services.NewEnrichmentQueueService(queue))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
