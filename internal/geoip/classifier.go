// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

// Package geoip resolves client addresses to locations. It extracts the
// client IP from proxy headers, decides whether an address can be looked up
// at all, hashes addresses for storage, and wraps the closed set of lookup
// backends behind a single Provider contract.
package geoip

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// clientIPHeaders is checked in order; the first non-empty header wins.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// ClientIP extracts the client address from proxy headers, falling back to
// fallback (usually r.RemoteAddr) when none is present. Ports and IPv6
// brackets are stripped. Headers are never merged.
func ClientIP(h http.Header, fallback string) string {
	for _, name := range clientIPHeaders {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if name == "X-Forwarded-For" {
			// client, proxy1, proxy2
			if idx := strings.IndexByte(v, ','); idx != -1 {
				v = strings.TrimSpace(v[:idx])
			}
			if v == "" {
				continue
			}
		}
		return normalizeIPAddress(v)
	}
	return normalizeIPAddress(strings.TrimSpace(fallback))
}

var privateNetworks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("geoip: bad CIDR " + c)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivate reports whether ip is loopback, private, link-local or otherwise
// not routable. Unparseable input is treated as private so that it never
// reaches a provider.
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(normalizeIPAddress(ip))
	if parsed == nil {
		return true
	}
	if v4 := parsed.To4(); v4 != nil {
		parsed = v4
	}
	if parsed.IsUnspecified() {
		return true
	}
	for _, n := range privateNetworks {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// Hasher produces the stored, non-reversible identifier for an address.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with salt. An empty salt yields a plain
// BLAKE2b-256 digest.
func NewHasher(salt string) *Hasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

// Hash returns the lowercase hex BLAKE2b-256 digest of the normalized ip.
func (h *Hasher) Hash(ip string) string {
	// blake2b.New256 only fails for keys longer than 64 bytes, which
	// NewHasher rules out.
	d, _ := blake2b.New256(h.key)
	d.Write([]byte(normalizeIPAddress(strings.TrimSpace(ip))))
	return hex.EncodeToString(d.Sum(nil))
}

// normalizeIPAddress strips a port and IPv6 brackets if present.
func normalizeIPAddress(addr string) string {
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx != -1 {
			return addr[1:idx]
		}
		return strings.Trim(addr, "[]")
	}
	// host:port only when exactly one colon, bare IPv6 has several
	if strings.Count(addr, ":") == 1 {
		return addr[:strings.IndexByte(addr, ':')]
	}
	return addr
}
