// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package main is the entry point for the Dashmark server.

Dashmark records pageviews and item clicks from a self-hosted dashboard,
enriches pageviews with a coarse location in the background and serves
chart-ready aggregates over a small JSON API.

# Application Architecture

Long-running components run under a Suture v4 supervisor tree:

	RootSupervisor ("dashmark")
	├── DataSupervisor ("data-layer")
	│   └── Retention sweep (events and expired geo cache rows)
	├── MessagingSupervisor ("messaging-layer")
	│   └── Enrichment queue (watermill gochannel router)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment variables
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB file with the event and geo cache tables
 4. Geo cache: DuckDB table, optionally fronted by a BadgerDB tier
 5. Settings snapshot and geo provider selector
 6. Enrichment orchestrator and queue
 7. Ingestion and analytics services, analytics response cache
 8. Authentication: optional JWT guard for analytics endpoints
 9. HTTP Server: chi router with middleware stack
 10. Supervisor Tree

# Configuration

Common environment variables:

	HTTP_PORT=8080
	DUCKDB_PATH=/data/dashmark.duckdb
	ENRICHMENT_ENABLED=true
	GEOIP_PROVIDER=local-db          # or remote-api
	GEOIP_LOCAL_DB_PATH=/data/GeoLite2-City.mmdb
	GEOIP_REMOTE_API_TOKEN=...
	GEOIP_HASH_SALT=...
	JWT_SECRET=...                   # protects /api/v1/analytics when set

# Issuing tokens

With JWT_SECRET set, a read token for the analytics endpoints is printed by:

	dashmark -issue-token grafana

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains open
connections, the enrichment queue waits for running tasks, and the database
is closed last.
*/
package main
