// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package models

import (
	"fmt"
	"time"
)

// DayFormat is the canonical textual form of a calendar day.
const DayFormat = "2006-01-02"

// DayOf truncates a timestamp to its UTC calendar day.
// All date keys in the registry and the durable store are produced by this
// function, so an aggregator and its persisted record always agree on the key.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.UTC().Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight timestamp.
func ParseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DayFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return day, nil
}

// VisitorDailySummary is an immutable snapshot of one calendar day's traffic.
// It is produced either by snapshotting a live aggregator or by loading a
// persisted record; a newer summary supersedes an older one, records are
// never mutated in place.
type VisitorDailySummary struct {
	Date             time.Time `json:"date"`
	TotalPageViews   int64     `json:"total_page_views"`
	UniqueVisitors   int64     `json:"unique_visitors"`
	TotalBotRequests int64     `json:"total_bot_requests"`
	UniqueBots       int64     `json:"unique_bots"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// HumanPageViews returns page views minus bot requests. A negative result
// means bot classification was inconsistent upstream; callers should treat
// that as a bug signal, not a valid state.
func (s VisitorDailySummary) HumanPageViews() int64 {
	return s.TotalPageViews - s.TotalBotRequests
}

// WindowSummary is a named roll-up over a range of days, e.g. "last_7_days".
// UniqueVisitors sums per-day unique counts and therefore double-counts
// visitors who return on multiple days; it is an approximation, not a true
// distinct count across the window, and the flag makes that explicit.
type WindowSummary struct {
	Window                    string `json:"window"`
	Days                      int    `json:"days"`
	TotalPageViews            int64  `json:"total_page_views"`
	UniqueVisitors            int64  `json:"unique_visitors"`
	TotalBotRequests          int64  `json:"total_bot_requests"`
	UniqueVisitorsApproximate bool   `json:"unique_visitors_approximate"`
}
