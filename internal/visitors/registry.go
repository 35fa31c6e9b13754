// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package visitors

import (
	"sort"
	"sync"
	"time"

	"github.com/antystyki/visitord/internal/metrics"
	"github.com/antystyki/visitord/internal/models"
)

// Registry is the process-wide table of per-day aggregators plus a read
// cache of persisted summaries for dates that are no longer (or not yet)
// live. It is constructed once in main and passed by reference to the HTTP
// layer and the maintenance loop; durable state lives only in the external
// store, so the registry is simply discarded at shutdown.
type Registry struct {
	hasher *KeyHasher

	// trackBots is recognized configuration but currently has no effect:
	// bot visits are always tracked when they arrive. Kept pending product
	// clarification of whether it should suppress bot metrics entirely.
	trackBots bool

	live sync.Map // time.Time (UTC midnight) -> *DailyAggregator

	cacheMu sync.RWMutex
	cache   map[time.Time]models.VisitorDailySummary
}

// NewRegistry creates an empty registry using the given hasher.
func NewRegistry(hasher *KeyHasher, trackBots bool) *Registry {
	return &Registry{
		hasher:    hasher,
		trackBots: trackBots,
		cache:     make(map[time.Time]models.VisitorDailySummary),
	}
}

// RecordVisit registers one classified visit. It derives the UTC calendar
// day from the timestamp, lazily creates the day's aggregator (exactly once
// under concurrent creation), hashes the visitor identity and registers the
// visit. It only mutates in-memory structures and never blocks on I/O, so
// it is safe on the hot request path.
func (r *Registry) RecordVisit(ts time.Time, ipAddress, userAgent string, isBot bool) {
	day := models.DayOf(ts)
	agg := r.aggregatorFor(day)
	key := r.hasher.ComputeKey(day, ipAddress, userAgent)
	agg.RegisterVisit(key, isBot)

	class := "human"
	if isBot {
		class = "bot"
	}
	metrics.VisitsRecorded.WithLabelValues(class).Inc()
}

// aggregatorFor returns the live aggregator for a day, creating it if
// needed. LoadOrStore makes creation atomic: when multiple goroutines race
// on a fresh day, all of them end up with the same instance.
func (r *Registry) aggregatorFor(day time.Time) *DailyAggregator {
	if v, ok := r.live.Load(day); ok {
		return v.(*DailyAggregator)
	}

	v, loaded := r.live.LoadOrStore(day, NewDailyAggregator(day))
	if !loaded {
		metrics.LiveAggregators.Inc()
	}
	return v.(*DailyAggregator)
}

// GetSummaries returns summaries for each day in the inclusive range, in
// ascending date order. Endpoints given in reverse order are swapped. For
// each day the live aggregator's snapshot wins over the persisted cache;
// days with neither are omitted entirely, so callers must treat absence as
// "no data", not "zero activity".
func (r *Registry) GetSummaries(from, to time.Time) []models.VisitorDailySummary {
	from, to = models.DayOf(from), models.DayOf(to)
	if from.After(to) {
		from, to = to, from
	}

	now := time.Now()
	var out []models.VisitorDailySummary
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if v, ok := r.live.Load(day); ok {
			out = append(out, v.(*DailyAggregator).Snapshot(now))
			continue
		}
		r.cacheMu.RLock()
		s, ok := r.cache[day]
		r.cacheMu.RUnlock()
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// LiveSnapshots captures a summary of every live aggregator, sorted by
// date. Snapshotting is quick and lock-free; callers doing I/O (flush)
// operate on the returned copies so live traffic is never stalled behind a
// store round trip.
func (r *Registry) LiveSnapshots(now time.Time) []models.VisitorDailySummary {
	var out []models.VisitorDailySummary
	r.live.Range(func(_, v any) bool {
		out = append(out, v.(*DailyAggregator).Snapshot(now))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// LoadCache replaces the persisted-summary read cache, typically once at
// startup from the durable store.
func (r *Registry) LoadCache(summaries []models.VisitorDailySummary) {
	cache := make(map[time.Time]models.VisitorDailySummary, len(summaries))
	for _, s := range summaries {
		cache[models.DayOf(s.Date)] = s
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()
}

// EvictBefore removes every live aggregator and cached summary strictly
// older than minimumDateToKeep. It returns the number of entries removed
// from each map and is idempotent: a second call with the same cutoff
// removes nothing.
func (r *Registry) EvictBefore(minimumDateToKeep time.Time) (liveRemoved, cachedRemoved int) {
	cutoff := models.DayOf(minimumDateToKeep)

	r.live.Range(func(k, _ any) bool {
		if day := k.(time.Time); day.Before(cutoff) {
			r.live.Delete(day)
			liveRemoved++
		}
		return true
	})
	if liveRemoved > 0 {
		metrics.LiveAggregators.Sub(float64(liveRemoved))
	}

	r.cacheMu.Lock()
	for day := range r.cache {
		if day.Before(cutoff) {
			delete(r.cache, day)
			cachedRemoved++
		}
	}
	r.cacheMu.Unlock()

	return liveRemoved, cachedRemoved
}
