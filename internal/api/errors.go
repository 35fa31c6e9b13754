// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/middleware"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
