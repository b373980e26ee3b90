// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/dashmark/internal/cache"
	"github.com/tomtom215/dashmark/internal/models"
)

// AnalyticsQueryExecutor runs analytics handlers cache-first:
//
//  1. derive a cache key from the endpoint prefix and its parsed parameters
//  2. answer from the cache when present, with Cached set in the metadata
//  3. otherwise run the query, cache the result and report its duration
type AnalyticsQueryExecutor struct {
	handler *Handler
}

// NewAnalyticsQueryExecutor creates a new analytics query executor instance.
func NewAnalyticsQueryExecutor(h *Handler) *AnalyticsQueryExecutor {
	return &AnalyticsQueryExecutor{handler: h}
}

// AnalyticsQueryFunc executes one query. The result must be JSON-serializable.
type AnalyticsQueryFunc func(ctx context.Context) (interface{}, error)

// Execute answers r with the result of queryFunc, keyed in the cache by
// cacheKeyPrefix and params.
func (e *AnalyticsQueryExecutor) Execute(
	w http.ResponseWriter,
	r *http.Request,
	cacheKeyPrefix string,
	params interface{},
	queryFunc AnalyticsQueryFunc,
) {
	if e.handler.analytics == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Analytics not available", nil)
		return
	}

	start := time.Now()
	c := e.handler.cache
	cacheKey := cache.GenerateKey(cacheKeyPrefix, params)

	if c != nil {
		if cached, found := c.Get(cacheKey); found {
			setCacheControl(w, c)
			respondJSON(w, http.StatusOK, &models.APIResponse{
				Status: "success",
				Data:   cached,
				Metadata: models.Metadata{
					Timestamp: time.Now(),
					Cached:    true,
				},
			})
			return
		}
	}

	result, err := queryFunc(r.Context())
	if err != nil {
		respondServiceError(w, r, "QUERY_ERROR", "Failed to run analytics query", err)
		return
	}

	if c != nil {
		c.Set(cacheKey, result)
		setCacheControl(w, c)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   result,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

func setCacheControl(w http.ResponseWriter, c *cache.Cache) {
	if seconds := int(c.TTL().Seconds()); seconds > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", seconds))
	}
}
