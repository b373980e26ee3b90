// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/dashmark/internal/geoip"
	"github.com/tomtom215/dashmark/internal/models"
)

// PageviewRequest is the body of POST /api/v1/ingest/pageview.
type PageviewRequest struct {
	Path      string `json:"path" validate:"required,max=2048,urlpath"`
	UserAgent string `json:"userAgent" validate:"max=1024"`
}

// ClickRequest is the body of POST /api/v1/ingest/click.
type ClickRequest struct {
	ItemID   string `json:"itemId" validate:"required,max=256"`
	ItemKind string `json:"itemKind" validate:"required,oneof=bookmark service"`
	ItemName string `json:"itemName,omitempty" validate:"max=256"`
}

// IngestPageview stores a pageview and queues it for geo enrichment. The
// response does not wait for enrichment.
func (h *Handler) IngestPageview(w http.ResponseWriter, r *http.Request) {
	var req PageviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	ip := geoip.ClientIP(r.Header, r.RemoteAddr)

	id, err := h.ingest.RecordPageview(r.Context(), req.Path, userAgent, ip)
	if err != nil {
		respondServiceError(w, r, "INGEST_ERROR", "Failed to record pageview", err)
		return
	}

	respondSuccess(w, http.StatusCreated, models.PageviewAccepted{EventID: id})
}

// IngestClick stores a bookmark or service click.
func (h *Handler) IngestClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	if _, err := h.ingest.RecordClick(r.Context(), req.ItemID, req.ItemKind, req.ItemName, time.Time{}); err != nil {
		respondServiceError(w, r, "INGEST_ERROR", "Failed to record click", err)
		return
	}

	respondSuccess(w, http.StatusCreated, models.ClickAccepted{Success: true})
}
