// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package storage

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/metrics"
	"github.com/antystyki/visitord/internal/models"
	"github.com/antystyki/visitord/internal/visitors"
)

// BreakerStore decorates a SummaryStore with a circuit breaker so that a
// persistently failing store (full disk, corrupted value log) fails fast
// instead of stalling every maintenance cycle on doomed writes. Rejected
// calls surface as ordinary errors, which the maintenance loop already
// treats as "abandon and retry next tick".
type BreakerStore struct {
	inner visitors.SummaryStore
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps the given store. The breaker opens after 5
// consecutive failures and probes again after 30 seconds.
func NewBreakerStore(inner visitors.SummaryStore) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "summary-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state change")
			if to == gobreaker.StateOpen {
				metrics.StoreBreakerOpen.Set(1)
			} else {
				metrics.StoreBreakerOpen.Set(0)
			}
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

// UpsertBatch implements visitors.SummaryStore.
func (b *BreakerStore) UpsertBatch(ctx context.Context, summaries []models.VisitorDailySummary) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.UpsertBatch(ctx, summaries)
	})
	return err
}

// LoadSince implements visitors.SummaryStore.
func (b *BreakerStore) LoadSince(ctx context.Context, since time.Time) ([]models.VisitorDailySummary, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.LoadSince(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	summaries, _ := result.([]models.VisitorDailySummary)
	return summaries, nil
}

// DeleteBefore implements visitors.SummaryStore.
func (b *BreakerStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := b.cb.Execute(func() (any, error) {
		deleted, err := b.inner.DeleteBefore(ctx, cutoff)
		return deleted, err
	})
	if err != nil {
		return 0, err
	}
	deleted, _ := result.(int)
	return deleted, nil
}
