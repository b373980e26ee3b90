// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

/*
Package auth guards the read-only analytics API with HMAC-SHA256 bearer
tokens.

Ingestion endpoints are always open: the dashboard posts pageviews and
clicks from the browser without credentials. When security.jwt_secret is
set, every /api/v1/analytics request must carry

	Authorization: Bearer <token>

or a "token" cookie. Tokens are minted offline with

	dashmark -issue-token <subject>

and expire after security.token_ttl. When no secret is configured the
middleware is a pass-through.

Usage:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	r.Use(auth.NewMiddleware(jwtManager).Authenticate)
*/
package auth
