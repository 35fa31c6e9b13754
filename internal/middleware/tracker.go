// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/antystyki/visitord/internal/visitors"
)

// Substrings that mark a user agent as automated traffic. Matched
// case-insensitively. Deliberately broad: "bot" alone catches Googlebot,
// bingbot, DuckDuckBot and most self-identifying crawlers.
var botUserAgentPatterns = []string{
	"bot", "crawler", "spider", "lighthouse", "pagespeed",
	"prerender", "headless", "pingdom", "slurp",
	"baiduspider", "yandex", "facebookexternalhit",
	"ahrefs", "semrush", "screaming frog", "curl", "wget",
	"python-requests", "go-http-client",
}

// Asset suffixes excluded from tracking. Page views are what the metrics
// mean; the stylesheet fetched alongside a page is not a visit.
var untrackedSuffixes = []string{
	".css", ".js", ".map", ".ico", ".png", ".jpg", ".jpeg", ".gif",
	".svg", ".webp", ".woff", ".woff2", ".ttf", ".txt",
}

// VisitTracker feeds every trackable request into the metrics registry.
// Recording happens after the response is written and is purely in-memory,
// so tracking adds no latency and can never fail a request.
func VisitTracker(registry *visitors.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			if !trackablePath(r.URL.Path) {
				return
			}

			userAgent := r.UserAgent()
			registry.RecordVisit(
				time.Now(),
				clientIP(r),
				userAgent,
				IsBotUserAgent(userAgent),
			)
		})
	}
}

// trackablePath reports whether a request path counts as a page view.
// Internal surfaces (API, Prometheus) and static assets are excluded.
func trackablePath(path string) bool {
	if strings.HasPrefix(path, "/api/") || path == "/metrics" {
		return false
	}
	lower := strings.ToLower(path)
	for _, suffix := range untrackedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}

// IsBotUserAgent reports whether the user agent self-identifies as
// automated traffic. A missing user agent counts as a bot: every mainstream
// browser sends one.
func IsBotUserAgent(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	lower := strings.ToLower(userAgent)
	for _, pattern := range botUserAgentPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// clientIP resolves the originating client address: the first entry of
// X-Forwarded-For, then X-Real-IP, then the connection's remote address.
// The result is canonicalized so that textual variants of the same address
// ("::ffff:1.2.3.4" vs "1.2.3.4") hash to the same visitor key.
func clientIP(r *http.Request) string {
	candidate := ""
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		candidate = strings.TrimSpace(first)
	} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		candidate = strings.TrimSpace(realIP)
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidate = host
	} else {
		candidate = r.RemoteAddr
	}

	if addr, err := netip.ParseAddr(candidate); err == nil {
		return addr.Unmap().String()
	}
	return candidate
}
