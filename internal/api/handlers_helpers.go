// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/models"
	"github.com/tomtom215/dashmark/internal/validation"
)

// maxBodyBytes bounds ingestion request bodies.
const maxBodyBytes = 16 << 10

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with an ETag. Handlers may set
// Cache-Control first; otherwise the response is marked no-store.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Vary", "Accept-Encoding")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// generateETag creates a weak validator from data using FNV-1a.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return `"` + strconv.FormatUint(uint64(hash), 16) + `"`
}

func respondSuccess(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

func respondAPIError(w http.ResponseWriter, status int, apiErr *models.APIError) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// respondServiceError maps a service error onto the envelope: validation
// failures are 400 with details, anything else is a logged 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, code, message string, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		respondAPIError(w, http.StatusBadRequest, toModelError(verr))
		return
	}
	logging.Ctx(r.Context()).Error().
		Str("code", code).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Str("error", sanitizeLogValue(err.Error())).
		Msg("API Error")
	respondError(w, http.StatusInternalServerError, code, message, nil)
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes, or a models.APIError if validation fails.
func validateRequest(v interface{}) *models.APIError {
	if validationErr := validation.ValidateStruct(v); validationErr != nil {
		return toModelError(validationErr)
	}
	return nil
}

func toModelError(verr *validation.RequestValidationError) *models.APIError {
	apiErr := verr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeJSONBody reads a bounded JSON body into dst, answering 400 itself
// on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "Request body must be a JSON object"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit)
		}
		respondError(w, http.StatusBadRequest, validation.ErrorCode, message, nil)
		return false
	}
	return true
}

// getIntParam parses an optional integer query parameter. A missing value
// yields 0; a malformed one is a validation error.
func getIntParam(r *http.Request, key string) (int, *validation.RequestValidationError) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, validation.NewFieldError(key, "number", key+" must be an integer")
	}
	return n, nil
}
