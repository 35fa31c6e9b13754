// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/antystyki/visitord/internal/models"
	"github.com/antystyki/visitord/internal/visitors"
)

// Flusher is the on-demand flush hook exposed on the admin endpoint.
// Implemented by visitors.Maintainer.
type Flusher interface {
	TriggerFlush()
}

// Handlers serves the reporting and operations endpoints.
type Handlers struct {
	registry      *visitors.Registry
	flusher       Flusher
	retentionDays int
	startedAt     time.Time
	version       string
	now           func() time.Time
}

// NewHandlers wires the handler set. retentionDays bounds the all-time
// window roll-up; there is never data older than the retention cutoff.
func NewHandlers(registry *visitors.Registry, flusher Flusher, retentionDays int, version string) *Handlers {
	return &Handlers{
		registry:      registry,
		flusher:       flusher,
		retentionDays: retentionDays,
		startedAt:     time.Now(),
		version:       version,
		now:           time.Now,
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health reports overall service health. The service has no hard external
// dependencies at request time, so reachable means healthy.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// Live is the liveness probe.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready is the readiness probe. Visit recording is purely in-memory, so
// the service is ready as soon as it accepts connections.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type dailyResponse struct {
	From      string                       `json:"from"`
	To        string                       `json:"to"`
	Summaries []models.VisitorDailySummary `json:"summaries"`
}

// Daily returns per-day summaries for an inclusive date range. Days without
// data are omitted from the response, not zero-filled.
func (h *Handlers) Daily(w http.ResponseWriter, r *http.Request) {
	fromParam := r.URL.Query().Get("from")
	toParam := r.URL.Query().Get("to")
	if fromParam == "" || toParam == "" {
		writeError(w, r, http.StatusBadRequest, "from and to query parameters are required (YYYY-MM-DD)")
		return
	}

	from, err := models.ParseDay(fromParam)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := models.ParseDay(toParam)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}
	if from.After(to) {
		from, to = to, from
	}

	// The range is walked day by day, so an unbounded range would be an
	// unbounded amount of work per request. Nothing older than the
	// retention window exists, so wider requests are always a mistake.
	maxDays := h.retentionDays + 1
	if days := int(to.Sub(from)/(24*time.Hour)) + 1; days > maxDays {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("date range spans %d days, maximum is %d", days, maxDays))
		return
	}

	summaries := h.registry.GetSummaries(from, to)
	if summaries == nil {
		summaries = []models.VisitorDailySummary{}
	}
	writeJSON(w, http.StatusOK, dailyResponse{
		From:      models.FormatDay(from),
		To:        models.FormatDay(to),
		Summaries: summaries,
	})
}

type windowsResponse struct {
	Windows []models.WindowSummary `json:"windows"`
}

// Windows returns named roll-ups over the daily summaries. Unique-visitor
// sums across multiple days are approximations: the same visitor appearing
// on two days counts twice, and the response flags this.
func (h *Handlers) Windows(w http.ResponseWriter, r *http.Request) {
	windows := []struct {
		name string
		days int
	}{
		{"today", 1},
		{"last_7_days", 7},
		{"last_30_days", 30},
		{"last_365_days", 365},
		{"all_time", h.retentionDays + 1},
	}

	today := models.DayOf(h.now())
	out := make([]models.WindowSummary, 0, len(windows))
	for _, win := range windows {
		from := today.AddDate(0, 0, -(win.days - 1))
		summary := models.WindowSummary{
			Window:                    win.name,
			Days:                      win.days,
			UniqueVisitorsApproximate: win.days > 1,
		}
		for _, s := range h.registry.GetSummaries(from, today) {
			summary.TotalPageViews += s.TotalPageViews
			summary.UniqueVisitors += s.UniqueVisitors
			summary.TotalBotRequests += s.TotalBotRequests
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, windowsResponse{Windows: out})
}

// Flush requests an immediate flush of live counters to the durable store.
// The flush itself runs asynchronously on the maintenance loop.
func (h *Handlers) Flush(w http.ResponseWriter, r *http.Request) {
	h.flusher.TriggerFlush()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "flush scheduled"})
}
