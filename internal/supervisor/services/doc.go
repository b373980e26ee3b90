// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package services adapts Dashmark components to suture.Service.
//
// Each wrapper turns a component's own lifecycle (ListenAndServe/Shutdown,
// Run(ctx), or a periodic job) into Serve(ctx) and implements fmt.Stringer
// so supervisor log lines name the service.
package services
