// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package visitors implements the visitor-metrics pipeline: keyed hashing of
// visitor identity, concurrency-safe per-day aggregation, a process-wide
// registry of live aggregators, and the flush/sweep maintenance loop that
// keeps the durable store in sync.
//
// The pipeline never stores or logs raw IP addresses or user agents; a visit
// is identified only by a one-way keyed hash of (day, ip, user agent), which
// makes "unique visitor" deduplication possible without cookies or any
// persistent client-side identifier.
package visitors

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/models"
)

// unknownUserAgent substitutes a blank or absent user agent. Clients without
// a UA collapse onto shared keys per (day, ip); they are indistinguishable
// anyway, so the collision is accepted.
const unknownUserAgent = "unknown"

// KeyHasher derives stable, privacy-preserving per-day visitor identifiers
// using keyed BLAKE2b-256. Identical (day, ip, user agent) inputs always
// yield the same key under the same secret; the function is one-way, so the
// key never reveals the inputs.
type KeyHasher struct {
	key       [sha256.Size]byte
	ephemeral bool
}

// NewKeyHasher creates a hasher from the configured secret. An empty secret
// produces a random per-process secret and logs a warning: unique-visitor
// counts are then not comparable across restarts, which is an accepted,
// documented limitation rather than a defect.
func NewKeyHasher(secret string) (*KeyHasher, error) {
	h := &KeyHasher{}
	if secret == "" {
		var random [32]byte
		if _, err := rand.Read(random[:]); err != nil {
			return nil, fmt.Errorf("generate ephemeral hash secret: %w", err)
		}
		h.key = sha256.Sum256(random[:])
		h.ephemeral = true
		logging.Warn().
			Str("component", "visitors").
			Msg("no visitor hash secret configured; generated a random per-process secret, unique-visitor counts will not be comparable across restarts")
		return h, nil
	}
	h.key = sha256.Sum256([]byte(secret))
	return h, nil
}

// Ephemeral reports whether the hasher runs on a generated per-process secret.
func (h *KeyHasher) Ephemeral() bool {
	return h.ephemeral
}

// ComputeKey derives the visitor key for a calendar day. The IP address must
// already be in canonical textual form; it is treated as opaque text here,
// as is the user agent. There are no error conditions: blank fields fall
// back to sentinels and a key is always produced.
func (h *KeyHasher) ComputeKey(day time.Time, ipAddress, userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = unknownUserAgent
	}

	// Keyed hash, so keys cannot be reversed or recomputed without the
	// secret. The separator prevents ambiguity between field boundaries.
	mac, err := blake2b.New256(h.key[:])
	if err != nil {
		// Unreachable: the key is a fixed 32 bytes, within blake2b's limit.
		panic(fmt.Sprintf("blake2b keyed init: %v", err))
	}
	mac.Write([]byte(models.FormatDay(day)))
	mac.Write([]byte{0})
	mac.Write([]byte(ipAddress))
	mac.Write([]byte{0})
	mac.Write([]byte(userAgent))

	return hex.EncodeToString(mac.Sum(nil))
}
