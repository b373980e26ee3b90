// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
)

// GenerateRequestID returns a new UUIDv4 string.
func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateCorrelationID returns a short random identifier used to tie
// background work back to the request that scheduled it.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with any request and correlation
// IDs carried by ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	zctx := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		zctx = zctx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		zctx = zctx.Str("request_id", id)
	}
	l := zctx.Logger()
	return &l
}
