// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antystyki/visitord/internal/visitors"
)

func newTrackedHandler(t *testing.T) (*visitors.Registry, http.Handler) {
	t.Helper()
	hasher, err := visitors.NewKeyHasher("test-secret")
	if err != nil {
		t.Fatalf("NewKeyHasher: %v", err)
	}
	registry := visitors.NewRegistry(hasher, true)
	handler := VisitTracker(registry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return registry, handler
}

func todaysSummaries(r *visitors.Registry) int64 {
	now := time.Now()
	got := r.GetSummaries(now, now)
	if len(got) == 0 {
		return 0
	}
	return got[0].TotalPageViews
}

func TestVisitTrackerRecordsPageViews(t *testing.T) {
	registry, handler := newTrackedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.RemoteAddr = "198.51.100.7:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := todaysSummaries(registry); got != 1 {
		t.Errorf("page views = %d, want 1", got)
	}
}

func TestVisitTrackerSkipsUntrackablePaths(t *testing.T) {
	registry, handler := newTrackedHandler(t)

	for _, path := range []string{
		"/api/v1/visitors/daily",
		"/metrics",
		"/static/app.js",
		"/images/logo.PNG",
		"/favicon.ico",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("User-Agent", "Mozilla/5.0")
		req.RemoteAddr = "198.51.100.7:54321"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := todaysSummaries(registry); got != 0 {
		t.Errorf("untrackable paths recorded %d page views", got)
	}
}

func TestVisitTrackerClassifiesBots(t *testing.T) {
	registry, handler := newTrackedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Googlebot/2.1 (+http://www.google.com/bot.html)")
	req.RemoteAddr = "198.51.100.7:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	now := time.Now()
	got := registry.GetSummaries(now, now)
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	if got[0].TotalBotRequests != 1 || got[0].UniqueVisitors != 0 {
		t.Errorf("bot visit miscounted: %+v", got[0])
	}
}

func TestIsBotUserAgent(t *testing.T) {
	tests := []struct {
		userAgent string
		want      bool
	}{
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", false},
		{"Mozilla/5.0 (compatible; Googlebot/2.1)", true},
		{"Mozilla/5.0 (compatible; bingbot/2.0)", true},
		{"curl/8.5.0", true},
		{"python-requests/2.31.0", true},
		{"Mozilla/5.0 (compatible; SemrushBot/7~bl)", true},
		{"", true},
	}
	for _, tt := range tests {
		if got := IsBotUserAgent(tt.userAgent); got != tt.want {
			t.Errorf("IsBotUserAgent(%q) = %v, want %v", tt.userAgent, got, tt.want)
		}
	}
}

func TestClientIPPrecedenceAndCanonicalization(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "198.51.100.7:54321",
			want:       "198.51.100.7",
		},
		{
			name:       "x-forwarded-for wins",
			remoteAddr: "10.0.0.1:443",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:443",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "ipv4-mapped ipv6 unmapped",
			remoteAddr: "[::ffff:198.51.100.7]:54321",
			want:       "198.51.100.7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Error("request ID missing from context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("response header does not echo the request ID")
	}

	// An upstream-provided ID is preserved.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-id" {
		t.Errorf("upstream request ID not preserved, got %q", seen)
	}
}
