// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antystyki/visitord/internal/middleware"
	"github.com/antystyki/visitord/internal/visitors"
)

// NewRouter assembles the full HTTP surface: the reporting API under
// /api/v1, Prometheus on /metrics, and the visit tracker wrapped around
// everything else so page requests feed the registry.
func NewRouter(handlers *Handlers, registry *visitors.Registry, mw *MiddlewareConfig) *chi.Mux {
	if mw == nil {
		mw = DefaultMiddlewareConfig()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(mw.CORS())
	r.Use(middleware.VisitTracker(registry))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.HealthRateLimit())
			r.Get("/health", handlers.Health)
			r.Get("/health/live", handlers.Live)
			r.Get("/health/ready", handlers.Ready)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())
			r.Get("/visitors/daily", handlers.Daily)
			r.Get("/visitors/windows", handlers.Windows)
			r.Post("/visitors/flush", handlers.Flush)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Anything else counts as site traffic for the tracker; there is no
	// content to serve from this process.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	return r
}
