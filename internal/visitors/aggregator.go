// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package visitors

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/antystyki/visitord/internal/models"
)

// DailyAggregator accumulates one calendar day's traffic counters. It is
// safe for concurrent use by any number of request-handling goroutines:
// counters are atomic and the key sets use LoadOrStore, so a key is counted
// at most once regardless of insertion order or interleaving.
//
// The aggregator has no failure modes. Key-set growth is unbounded under
// adversarial traffic and is mitigated only by the retention sweep, not by
// in-aggregator capping.
type DailyAggregator struct {
	date time.Time

	totalRequests atomic.Int64
	botRequests   atomic.Int64

	visitors     sync.Map // visitor key -> struct{}
	visitorCount atomic.Int64
	bots         sync.Map // visitor key -> struct{}
	botCount     atomic.Int64
}

// NewDailyAggregator creates an empty aggregator for the given day.
func NewDailyAggregator(date time.Time) *DailyAggregator {
	return &DailyAggregator{date: models.DayOf(date)}
}

// Date returns the UTC calendar day this aggregator tracks.
func (a *DailyAggregator) Date() time.Time {
	return a.date
}

// RegisterVisit records one request. Bot visits feed the bot counter and the
// bot key set; human visits feed the unique-visitor set. The total counter
// is incremented unconditionally.
func (a *DailyAggregator) RegisterVisit(key string, isBot bool) {
	a.totalRequests.Add(1)

	if isBot {
		a.botRequests.Add(1)
		if _, loaded := a.bots.LoadOrStore(key, struct{}{}); !loaded {
			a.botCount.Add(1)
		}
		return
	}

	if _, loaded := a.visitors.LoadOrStore(key, struct{}{}); !loaded {
		a.visitorCount.Add(1)
	}
}

// Snapshot returns an immutable summary of the current counters. It never
// blocks concurrent RegisterVisit calls; a snapshot taken during writes may
// reflect any intermediate state, but no write is ever lost.
func (a *DailyAggregator) Snapshot(now time.Time) models.VisitorDailySummary {
	return models.VisitorDailySummary{
		Date:             a.date,
		TotalPageViews:   a.totalRequests.Load(),
		UniqueVisitors:   a.visitorCount.Load(),
		TotalBotRequests: a.botRequests.Load(),
		UniqueBots:       a.botCount.Load(),
		LastUpdatedAt:    now.UTC(),
	}
}
