// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package models

import (
	"time"
)

// APIResponse is the envelope for every JSON endpoint.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
//	{"status":"error","error":{"code":"VALIDATION_ERROR","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PageviewAccepted is returned by the pageview ingestion endpoint.
type PageviewAccepted struct {
	EventID string `json:"eventId"`
}

// ClickAccepted is returned by the click ingestion endpoint.
type ClickAccepted struct {
	Success bool `json:"success"`
}
