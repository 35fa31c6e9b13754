// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package metrics exposes Prometheus instrumentation for Visitord:
// visit registration volume, flush/sweep health of the persistence loop,
// and API endpoint latency and throughput. All collectors are registered
// on the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Visit tracking

	VisitsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitord_visits_recorded_total",
			Help: "Total number of visits registered with the metrics registry",
		},
		[]string{"class"}, // "human", "bot"
	)

	LiveAggregators = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitord_live_aggregators",
			Help: "Current number of in-memory per-day aggregators",
		},
	)

	// Persistence loop

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitord_flush_duration_seconds",
			Help:    "Duration of summary flushes to the durable store",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitord_flush_errors_total",
			Help: "Total number of abandoned flush attempts",
		},
	)

	FlushedSummaries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitord_flushed_summaries_total",
			Help: "Total number of daily summaries upserted into the durable store",
		},
	)

	SweepDeletedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitord_sweep_deleted_records_total",
			Help: "Total number of durable records removed by retention sweeps",
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitord_sweep_errors_total",
			Help: "Total number of failed durable deletes during retention sweeps",
		},
	)

	StoreBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitord_store_breaker_open",
			Help: "1 when the durable-store circuit breaker is open, 0 otherwise",
		},
	)

	// API surface

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitord_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visitord_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)
