// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package visitors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/metrics"
	"github.com/antystyki/visitord/internal/models"
)

// SummaryStore is the durable-store contract the maintenance loop needs:
// a key-value upsert/scan/delete keyed by calendar date. Implemented by
// internal/storage.
type SummaryStore interface {
	// UpsertBatch persists all summaries in one logical transaction. A
	// failure must leave previously durable records intact.
	UpsertBatch(ctx context.Context, summaries []models.VisitorDailySummary) error

	// LoadSince returns all records on or after the given day.
	LoadSince(ctx context.Context, since time.Time) ([]models.VisitorDailySummary, error)

	// DeleteBefore removes records strictly older than the cutoff and
	// returns how many were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MaintainerConfig holds the maintenance loop's tunables.
type MaintainerConfig struct {
	// FlushInterval is the wait between maintenance cycles. Default: 5m.
	FlushInterval time.Duration

	// RetentionDays is how many past days of metrics to keep, in memory
	// and durably, in addition to the current day. Default: 60.
	RetentionDays int

	// ShutdownFlushTimeout bounds the final flush during graceful
	// shutdown. Default: 10s.
	ShutdownFlushTimeout time.Duration

	// Now returns the current time. Default: time.Now. Retention cutoffs
	// and snapshot timestamps are derived from it.
	Now func() time.Time
}

// Maintainer runs the background flush/sweep cycle: on every tick it
// snapshots the live aggregators, upserts them into the durable store, then
// sweeps everything outside the retention window. The next tick is only
// scheduled after the current cycle completes, so cycles never overlap or
// pile up. Maintainer implements suture.Service.
//
// Store failures are logged and abandoned for the tick; the next tick is
// the retry. In-memory counting continues unaffected throughout, so no
// visit data is lost while the process stays up.
type Maintainer struct {
	registry *Registry
	store    SummaryStore

	interval             time.Duration
	retentionDays        int
	shutdownFlushTimeout time.Duration

	flushCh chan struct{}
	now     func() time.Time
	logger  zerolog.Logger
}

// NewMaintainer creates a maintenance loop over the given registry and store.
func NewMaintainer(registry *Registry, store SummaryStore, cfg MaintainerConfig) *Maintainer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 60
	}
	if cfg.ShutdownFlushTimeout <= 0 {
		cfg.ShutdownFlushTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Maintainer{
		registry:             registry,
		store:                store,
		interval:             cfg.FlushInterval,
		retentionDays:        cfg.RetentionDays,
		shutdownFlushTimeout: cfg.ShutdownFlushTimeout,
		flushCh:              make(chan struct{}, 1),
		now:                  cfg.Now,
		logger:               logging.With().Str("component", "maintainer").Logger(),
	}
}

// LoadRecent fills the registry's persisted-summary cache with every
// durable record inside the retention window. Failure degrades to an empty
// cache and is never fatal to startup; the caller decides how loudly to log.
func (m *Maintainer) LoadRecent(ctx context.Context) (int, error) {
	since := m.minimumDateToKeep()
	summaries, err := m.store.LoadSince(ctx, since)
	if err != nil {
		m.registry.LoadCache(nil)
		return 0, err
	}
	m.registry.LoadCache(summaries)
	return len(summaries), nil
}

// TriggerFlush requests an on-demand maintenance cycle. Non-blocking: if a
// trigger is already pending the request coalesces with it.
func (m *Maintainer) TriggerFlush() {
	select {
	case m.flushCh <- struct{}{}:
	default:
	}
}

// Serve implements suture.Service. It loops Idle -> Flushing -> Sweeping ->
// Sleeping until the context is canceled; cancellation interrupts the sleep
// promptly, and a bounded final flush shrinks the shutdown data-loss window.
func (m *Maintainer) Serve(ctx context.Context) error {
	m.logger.Info().
		Dur("interval", m.interval).
		Int("retention_days", m.retentionDays).
		Msg("maintenance loop started")

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.finalFlush()
			return ctx.Err()

		case <-m.flushCh:
			m.runCycle(ctx)

		case <-timer.C:
			m.runCycle(ctx)
			// Reset only after the cycle finished: ticks must not pile up
			// behind a slow store.
			timer.Reset(m.interval)
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (m *Maintainer) String() string {
	return "metrics-maintainer"
}

// runCycle executes one flush followed by one sweep. Each half logs and
// absorbs its own failures.
func (m *Maintainer) runCycle(ctx context.Context) {
	if err := m.Flush(ctx); err != nil {
		return // already logged; sweep still runs next cycle with fresh data
	}
	//nolint:errcheck // sweep failures are logged and retried next cycle
	m.Sweep(ctx, m.minimumDateToKeep())
}

// Flush snapshots every live aggregator and upserts the snapshots into the
// durable store in one batch. On failure the whole flush is abandoned for
// this tick; the next tick retries with fresher snapshots.
func (m *Maintainer) Flush(ctx context.Context) error {
	snapshots := m.registry.LiveSnapshots(m.now())
	if len(snapshots) == 0 {
		return nil
	}

	start := time.Now()
	if err := m.store.UpsertBatch(ctx, snapshots); err != nil {
		metrics.FlushErrors.Inc()
		m.logger.Error().Err(err).
			Int("summaries", len(snapshots)).
			Msg("flush abandoned; retrying next cycle")
		return err
	}

	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	metrics.FlushedSummaries.Add(float64(len(snapshots)))
	m.logger.Debug().
		Int("summaries", len(snapshots)).
		Dur("took", time.Since(start)).
		Msg("flushed daily summaries")
	return nil
}

// Sweep evicts in-memory and durable records strictly older than
// minimumDateToKeep. The in-memory half cannot fail; a durable-delete
// failure is logged and the stale records survive until the next cycle.
func (m *Maintainer) Sweep(ctx context.Context, minimumDateToKeep time.Time) error {
	liveRemoved, cachedRemoved := m.registry.EvictBefore(minimumDateToKeep)

	deleted, err := m.store.DeleteBefore(ctx, minimumDateToKeep)
	if err != nil {
		metrics.SweepErrors.Inc()
		m.logger.Warn().Err(err).
			Str("cutoff", models.FormatDay(minimumDateToKeep)).
			Msg("durable sweep failed; stale records retried next cycle")
		return err
	}

	metrics.SweepDeletedRecords.Add(float64(deleted))
	if liveRemoved+cachedRemoved+deleted > 0 {
		m.logger.Debug().
			Str("cutoff", models.FormatDay(minimumDateToKeep)).
			Int("live_removed", liveRemoved).
			Int("cached_removed", cachedRemoved).
			Int("durable_deleted", deleted).
			Msg("retention sweep complete")
	}
	return nil
}

// finalFlush runs one bounded flush during shutdown so that at most the
// tail since the last tick is lost on a clean exit.
func (m *Maintainer) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownFlushTimeout)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("final flush on shutdown failed")
	}
}

// minimumDateToKeep derives the retention cutoff: the oldest day that
// survives a sweep, keeping the current day plus retentionDays of history.
func (m *Maintainer) minimumDateToKeep() time.Time {
	return models.DayOf(m.now()).AddDate(0, 0, -m.retentionDays)
}
