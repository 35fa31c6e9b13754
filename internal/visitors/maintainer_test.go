// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package visitors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antystyki/visitord/internal/models"
)

// fakeStore is an in-memory SummaryStore with switchable failure modes.
type fakeStore struct {
	mu          sync.Mutex
	records     map[string]models.VisitorDailySummary
	upsertErr   error
	deleteErr   error
	loadErr     error
	upsertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.VisitorDailySummary)}
}

func (s *fakeStore) UpsertBatch(_ context.Context, summaries []models.VisitorDailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, sum := range summaries {
		s.records[models.FormatDay(sum.Date)] = sum
	}
	return nil
}

func (s *fakeStore) LoadSince(_ context.Context, since time.Time) ([]models.VisitorDailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []models.VisitorDailySummary
	for _, sum := range s.records {
		if !sum.Date.Before(since) {
			out = append(out, sum)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	deleted := 0
	for key, sum := range s.records {
		if sum.Date.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) setUpsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertErr = err
}

// fixedClock pins the maintainer's view of "now" so retention math in
// tests cannot drift against the wall clock.
func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestFlushAndLoadRecentRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)
	r := newTestRegistry(t)
	store := newFakeStore()
	m := NewMaintainer(r, store, MaintainerConfig{RetentionDays: 60, Now: fixedClock(now)})

	ts := now.AddDate(0, 0, -5)
	r.RecordVisit(ts, "198.51.100.7", "Mozilla/5.0", false)
	r.RecordVisit(ts, "198.51.100.8", "Mozilla/5.0", false)
	r.RecordVisit(ts, "198.51.100.9", "curl/8.5.0", true)

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 durable record, got %d", store.count())
	}

	// A fresh registry fed from the store serves the persisted counts.
	r2 := newTestRegistry(t)
	m2 := NewMaintainer(r2, store, MaintainerConfig{RetentionDays: 60, Now: fixedClock(now)})
	loaded, err := m2.LoadRecent(context.Background())
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("LoadRecent reported %d records, want 1", loaded)
	}

	got := r2.GetSummaries(ts, ts)
	if len(got) != 1 {
		t.Fatalf("expected 1 summary after reload, got %d", len(got))
	}
	if got[0].TotalPageViews != 3 || got[0].UniqueVisitors != 2 || got[0].UniqueBots != 1 {
		t.Errorf("reloaded summary = %d views / %d unique / %d bots, want 3/2/1",
			got[0].TotalPageViews, got[0].UniqueVisitors, got[0].UniqueBots)
	}
}

func TestFlushFailureRetriedNextCycle(t *testing.T) {
	r := newTestRegistry(t)
	store := newFakeStore()
	m := NewMaintainer(r, store, MaintainerConfig{})

	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	r.RecordVisit(ts, "198.51.100.7", "Mozilla/5.0", false)

	store.setUpsertErr(errors.New("disk full"))
	if err := m.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if store.count() != 0 {
		t.Fatalf("failed flush must not persist partial data, got %d records", store.count())
	}

	// Visits keep accumulating in memory; the next flush carries them all.
	r.RecordVisit(ts, "198.51.100.8", "Mozilla/5.0", false)
	store.setUpsertErr(nil)
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after recovery: %v", err)
	}

	got, err := store.LoadSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadSince: %v", err)
	}
	if len(got) != 1 || got[0].TotalPageViews != 2 || got[0].UniqueVisitors != 2 {
		t.Errorf("recovered flush should include everything accumulated, got %+v", got)
	}
}

func TestFlushNoopWhenEmpty(t *testing.T) {
	m := NewMaintainer(newTestRegistry(t), newFakeStore(), MaintainerConfig{})
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush on empty registry: %v", err)
	}
	if m.store.(*fakeStore).upsertCalls != 0 {
		t.Error("empty flush should not touch the store")
	}
}

func TestSweepRemovesOldEverywhere(t *testing.T) {
	r := newTestRegistry(t)
	store := newFakeStore()
	m := NewMaintainer(r, store, MaintainerConfig{RetentionDays: 60})

	old := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	r.RecordVisit(old, "198.51.100.7", "Mozilla/5.0", false)
	r.RecordVisit(recent, "198.51.100.7", "Mozilla/5.0", false)
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := m.Sweep(context.Background(), cutoff); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 durable record after sweep, got %d", store.count())
	}
	if got := r.GetSummaries(old, recent); len(got) != 1 || !got[0].Date.Equal(models.DayOf(recent)) {
		t.Errorf("expected only the recent day to survive, got %+v", got)
	}

	// Second sweep with the same cutoff is a no-op.
	if err := m.Sweep(context.Background(), cutoff); err != nil {
		t.Fatalf("repeat Sweep: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("repeat sweep changed the store, got %d records", store.count())
	}
}

func TestSweepFailureKeepsMemoryClean(t *testing.T) {
	r := newTestRegistry(t)
	store := newFakeStore()
	store.deleteErr = errors.New("store offline")
	m := NewMaintainer(r, store, MaintainerConfig{})

	old := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	r.RecordVisit(old, "198.51.100.7", "Mozilla/5.0", false)

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := m.Sweep(context.Background(), cutoff); err == nil {
		t.Fatal("expected sweep error")
	}
	// In-memory eviction happened even though the durable delete failed.
	if got := r.GetSummaries(old, old); len(got) != 0 {
		t.Errorf("expected in-memory eviction despite store failure, got %+v", got)
	}
}

func TestLoadRecentHonorsRetentionWindow(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)
	store := newFakeStore()
	seedErr := store.UpsertBatch(context.Background(), []models.VisitorDailySummary{
		{Date: models.DayOf(now.AddDate(0, 0, -90)), TotalPageViews: 4},
		{Date: models.DayOf(now.AddDate(0, 0, -10)), TotalPageViews: 7},
	})
	if seedErr != nil {
		t.Fatalf("seed store: %v", seedErr)
	}

	r := newTestRegistry(t)
	m := NewMaintainer(r, store, MaintainerConfig{RetentionDays: 60, Now: fixedClock(now)})

	loaded, err := m.LoadRecent(context.Background())
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded %d records, want only the one inside the window", loaded)
	}

	old := models.DayOf(now.AddDate(0, 0, -90))
	if got := r.GetSummaries(old, old); len(got) != 0 {
		t.Errorf("expired record reached the cache: %+v", got)
	}
	recent := models.DayOf(now.AddDate(0, 0, -10))
	if got := r.GetSummaries(recent, recent); len(got) != 1 || got[0].TotalPageViews != 7 {
		t.Errorf("in-window record missing from the cache: %+v", got)
	}
}

func TestLoadRecentFailureNonFatal(t *testing.T) {
	r := newTestRegistry(t)
	store := newFakeStore()
	store.loadErr = errors.New("corrupt store")
	m := NewMaintainer(r, store, MaintainerConfig{})

	loaded, err := m.LoadRecent(context.Background())
	if err == nil {
		t.Fatal("expected load error")
	}
	if loaded != 0 {
		t.Errorf("failed load reported %d records", loaded)
	}

	// The registry still works with an empty cache.
	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	r.RecordVisit(ts, "198.51.100.7", "Mozilla/5.0", false)
	if got := r.GetSummaries(ts, ts); len(got) != 1 {
		t.Errorf("registry unusable after failed load: got %d summaries", len(got))
	}
}

func TestServeTriggerAndCancellation(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)
	r := newTestRegistry(t)
	store := newFakeStore()
	m := NewMaintainer(r, store, MaintainerConfig{FlushInterval: time.Hour, Now: fixedClock(now)})

	// Inside the retention window, so the cycle's sweep keeps the record.
	r.RecordVisit(now.AddDate(0, 0, -5), "198.51.100.7", "Mozilla/5.0", false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	// A manual trigger flushes without waiting for the hour tick.
	m.TriggerFlush()
	deadline := time.After(2 * time.Second)
	for store.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("triggered flush never reached the store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeFinalFlushOnShutdown(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)
	r := newTestRegistry(t)
	store := newFakeStore()
	m := NewMaintainer(r, store, MaintainerConfig{FlushInterval: time.Hour, Now: fixedClock(now)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	// Wait for the loop to start, record a visit, then cancel: the final
	// flush must persist it.
	time.Sleep(20 * time.Millisecond)
	r.RecordVisit(now, "198.51.100.7", "Mozilla/5.0", false)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if store.count() != 1 {
		t.Errorf("shutdown flush missed data: %d records", store.count())
	}
}
