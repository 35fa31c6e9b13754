// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package main is the entry point for the Visitord server.
//
// Visitord counts website visitors without storing anything that could
// identify them: each visit is reduced to a keyed one-way hash of
// (day, IP, user agent) and only aggregate daily counters ever leave
// memory. Counters are flushed to an embedded BadgerDB store on a fixed
// interval and pruned past the retention window.
//
// # Startup order
//
//  1. Configuration via Koanf v2 (defaults < config.yaml < environment)
//  2. zerolog initialization
//  3. BadgerDB open, wrapped in a circuit breaker
//  4. Hasher, registry and maintenance loop construction
//  5. Best-effort cache load from the durable store (failure is logged,
//     not fatal)
//  6. Supervision tree start, SIGINT/SIGTERM-driven graceful shutdown
//
// # Configuration
//
// Key environment variables (see internal/config for the full set):
//
//	VISITOR_HASH_SECRET     secret keying the visitor hash; unset means a
//	                        random per-process secret and a warning
//	VISITOR_STORAGE_PATH    BadgerDB directory (default /data/visitord)
//	VISITOR_RETENTION_DAYS  days of history to keep (default 60)
//	VISITOR_FLUSH_INTERVAL  persistence interval (default 5m)
//	HTTP_PORT               listen port (default 3858)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/antystyki/visitord/internal/api"
	"github.com/antystyki/visitord/internal/config"
	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/storage"
	"github.com/antystyki/visitord/internal/supervisor"
	"github.com/antystyki/visitord/internal/supervisor/services"
	"github.com/antystyki/visitord/internal/visitors"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("storage_path", cfg.Metrics.StoragePath).
		Int("retention_days", cfg.Metrics.RetentionDays).
		Dur("flush_interval", cfg.Metrics.FlushInterval).
		Msg("Starting Visitord")

	db, err := storage.Open(cfg.Metrics.StoragePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open summary store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing summary store")
		}
	}()

	hasher, err := visitors.NewKeyHasher(cfg.Metrics.HashSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create visitor hasher")
	}

	registry := visitors.NewRegistry(hasher, cfg.Metrics.TrackBots)
	store := storage.NewBreakerStore(storage.NewBadgerSummaryStore(db))
	maintainer := visitors.NewMaintainer(registry, store, visitors.MaintainerConfig{
		FlushInterval: cfg.Metrics.FlushInterval,
		RetentionDays: cfg.Metrics.RetentionDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the read cache from the durable store. A failed load only means
	// the reporting API starts without history; counting works regardless.
	if loaded, err := maintainer.LoadRecent(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to load persisted summaries; starting with empty cache")
	} else {
		logging.Info().Int("summaries", loaded).Msg("Loaded persisted summaries")
	}

	handlers := api.NewHandlers(registry, maintainer, cfg.Metrics.RetentionDays, version)
	router := api.NewRouter(handlers, registry, &api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitRequests,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(maintainer)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	logging.Info().Str("addr", server.Addr).Msg("Serving")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
}
