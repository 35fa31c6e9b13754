// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package api exposes the reporting and operations HTTP surface on a chi
// router, with CORS and rate limiting from the chi middleware ecosystem.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// MiddlewareConfig holds the CORS and rate-limit settings for the router.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSMaxAge         int // seconds

	// RateLimitRequests per RateLimitWindow, keyed by client IP. Health
	// probes get ten times this allowance so aggressive orchestrator
	// checks never starve real clients.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultMiddlewareConfig returns secure defaults: cross-origin requests
// denied until origins are explicitly configured, 100 requests per minute
// per IP.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSMaxAge:         86400,
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,
	}
}

// CORS builds the preflight handler from go-chi/cors. go-chi/cors treats
// an empty AllowedOrigins list as allow-all, so an empty list is turned
// into an explicit deny-all instead.
func (c *MiddlewareConfig) CORS() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         c.CORSMaxAge,
	}
	if len(c.CORSAllowedOrigins) == 0 {
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return false }
	}
	return cors.Handler(opts)
}

// RateLimit returns the standard per-IP limiter for reporting endpoints.
func (c *MiddlewareConfig) RateLimit() func(http.Handler) http.Handler {
	if c.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByRealIP(c.RateLimitRequests, c.RateLimitWindow)
}

// HealthRateLimit returns the permissive limiter for liveness probes.
func (c *MiddlewareConfig) HealthRateLimit() func(http.Handler) http.Handler {
	if c.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByRealIP(c.RateLimitRequests*10, c.RateLimitWindow)
}

func passthrough(next http.Handler) http.Handler {
	return next
}
