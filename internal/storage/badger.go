// Visitord - Privacy-Preserving Visitor Metrics for Antystyki
// Copyright 2026 Antystyki
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antystyki/visitord

// Package storage persists daily visitor summaries in an embedded BadgerDB
// instance. The contract is deliberately narrow: upsert a batch, scan from a
// date, delete before a date. Records are keyed by calendar day, so reruns
// of the same flush simply overwrite the same keys.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/antystyki/visitord/internal/logging"
	"github.com/antystyki/visitord/internal/models"
)

const summaryKeyPrefix = "summary:"

// BadgerSummaryStore stores one JSON-encoded VisitorDailySummary per
// calendar day under "summary:YYYY-MM-DD". The lexicographic key order
// matches date order, so range scans are plain prefix iterations.
type BadgerSummaryStore struct {
	db *badger.DB
}

// NewBadgerSummaryStore wraps an already-open BadgerDB handle. The caller
// owns the handle's lifecycle.
func NewBadgerSummaryStore(db *badger.DB) *BadgerSummaryStore {
	return &BadgerSummaryStore{db: db}
}

// Open opens (or creates) the BadgerDB instance at dir with Badger's own
// logging routed through zerolog.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return db, nil
}

func summaryKey(day time.Time) []byte {
	return []byte(summaryKeyPrefix + models.FormatDay(day))
}

// UpsertBatch writes every summary in a single transaction: either the
// whole batch becomes durable or none of it does. Each record's
// LastUpdatedAt is stamped at write time.
func (s *BadgerSummaryStore) UpsertBatch(ctx context.Context, summaries []models.VisitorDailySummary) error {
	if len(summaries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range summaries {
			record := summaries[i]
			record.Date = models.DayOf(record.Date)
			record.LastUpdatedAt = now

			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("marshal summary %s: %w", models.FormatDay(record.Date), err)
			}
			if err := txn.Set(summaryKey(record.Date), data); err != nil {
				return fmt.Errorf("set summary %s: %w", models.FormatDay(record.Date), err)
			}
		}
		return nil
	})
}

// LoadSince returns every stored summary on or after the given day, in
// ascending date order.
func (s *BadgerSummaryStore) LoadSince(ctx context.Context, since time.Time) ([]models.VisitorDailySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := summaryKey(models.DayOf(since))
	var out []models.VisitorDailySummary

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var summary models.VisitorDailySummary
				if err := json.Unmarshal(val, &summary); err != nil {
					return fmt.Errorf("unmarshal %s: %w", it.Item().Key(), err)
				}
				out = append(out, summary)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBefore removes every summary strictly older than the cutoff and
// returns the number removed. Keys are collected in a read pass first;
// Badger forbids mutating a transaction that still drives an iterator.
func (s *BadgerSummaryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	limit := summaryKey(models.DayOf(cutoff))
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(limit) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// badgerLogger adapts Badger's internal logging to zerolog. Badger is
// chatty at INFO during compaction, so its info output maps to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}
