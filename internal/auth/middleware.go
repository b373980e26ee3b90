// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashmark/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the validated *Claims on authenticated requests.
const ClaimsContextKey contextKey = "claims"

// Middleware enforces bearer authentication. A nil manager disables it.
type Middleware struct {
	jwtManager *JWTManager
}

func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Enabled reports whether requests are checked.
func (m *Middleware) Enabled() bool {
	return m != nil && m.jwtManager != nil
}

// Authenticate rejects requests without a valid token with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			unauthorized(w, err.Error())
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Token validation failed")
			unauthorized(w, "unauthorized: invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims attached by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

// extractToken reads the Authorization header, falling back to the token
// cookie.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		cookie, err := r.Cookie("token")
		if err != nil || cookie.Value == "" {
			return "", fmt.Errorf("unauthorized: missing token")
		}
		return cookie.Value, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("unauthorized: invalid authorization header")
	}
	return parts[1], nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="dashmark"`)
	w.WriteHeader(http.StatusUnauthorized)
	body, _ := json.Marshal(map[string]interface{}{
		"status": "error",
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
	_, _ = w.Write(body)
}
