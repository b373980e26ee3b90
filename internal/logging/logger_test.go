// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if idx := strings.LastIndex(line, "\n"); idx >= 0 {
		line = line[idx+1:]
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInit_JSONOutput(t *testing.T) {
	buf := captureGlobal(t)

	Info().Str("path", "/home").Msg("pageview recorded")

	m := decodeLine(t, buf)
	if m["message"] != "pageview recorded" {
		t.Errorf("message = %v", m["message"])
	}
	if m["path"] != "/home" {
		t.Errorf("path = %v", m["path"])
	}
	if m["level"] != "info" {
		t.Errorf("level = %v", m["level"])
	}
	if _, ok := m["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestCtx_AddsIDs(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	Ctx(ctx).Warn().Msg("lookup failed")

	m := decodeLine(t, buf)
	if m["request_id"] != "req-1" {
		t.Errorf("request_id = %v", m["request_id"])
	}
	if m["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v", m["correlation_id"])
	}
}

func TestCtx_NoIDs(t *testing.T) {
	buf := captureGlobal(t)

	Ctx(context.Background()).Info().Msg("plain")

	m := decodeLine(t, buf)
	if _, ok := m["request_id"]; ok {
		t.Error("unexpected request_id")
	}
}

func TestGenerateIDs(t *testing.T) {
	if a, b := GenerateRequestID(), GenerateRequestID(); a == b || len(a) != 36 {
		t.Errorf("GenerateRequestID() = %q, %q", a, b)
	}
	if id := GenerateCorrelationID(); len(id) != 8 {
		t.Errorf("GenerateCorrelationID() length = %d, want 8", len(id))
	}
}

func TestSlogHandler(t *testing.T) {
	buf := captureGlobal(t)

	logger := NewSlogLogger().With("service", "enrichment").WithGroup("task")
	logger.Warn("restarting", "attempt", 2, "err", errors.New("boom"))

	m := decodeLine(t, buf)
	if m["message"] != "restarting" {
		t.Errorf("message = %v", m["message"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
	if m["service"] != "enrichment" {
		t.Errorf("service = %v", m["service"])
	}
	if m["task.attempt"] != float64(2) {
		t.Errorf("task.attempt = %v", m["task.attempt"])
	}
	if m["task.err"] != "boom" {
		t.Errorf("task.err = %v", m["task.err"])
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	captureGlobal(t)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	h := NewSlogHandler()
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
