// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsProbe(t *testing.T, cfg *MiddlewareConfig, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := cfg.CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/visitors/windows", nil)
	req.Header.Set("Origin", origin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORSDeniesAllWhenUnconfigured(t *testing.T) {
	cfg := DefaultMiddlewareConfig()

	rec := corsProbe(t, cfg, "https://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unconfigured CORS allowed origin %q", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	cfg := DefaultMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://antystyki.pl"}

	rec := corsProbe(t, cfg, "https://antystyki.pl")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://antystyki.pl" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the configured origin", got)
	}

	rec = corsProbe(t, cfg, "https://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin allowed: %q", got)
	}
}
