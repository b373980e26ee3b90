// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package validation validates ingest and analytics requests with
// go-playground/validator v10.
//
// A single validator instance is shared process-wide. Error field names
// come from the json (or query) struct tags so clients see the names they
// sent. Two custom tags are registered:
//
//   - ymd: a calendar date in YYYY-MM-DD form
//   - urlpath: an absolute path such as "/bookmarks"
//
// Usage:
//
//	type ClickRequest struct {
//	    ItemID   string `json:"itemId" validate:"required,max=128"`
//	    ItemKind string `json:"itemKind" validate:"required,oneof=bookmark service"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// Services that validate single values outside a struct return
// NewFieldError, which carries the same VALIDATION_ERROR code.
package validation
