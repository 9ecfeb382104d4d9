// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/recommend"
)

const (
	statsKeyPrefix = "rule_stats:"

	// maxConflictRetries bounds optimistic-transaction retries per increment.
	maxConflictRetries = 100

	// ensureBatchSize keeps EnsureStats transactions under badger's size limit.
	ensureBatchSize = 1000
)

// BadgerConfig configures a BadgerStats store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// BadgerStats is a recommend.StatsStore backed by BadgerDB.
//
// Badger has no single-operation increment. Its MergeOperator folds values in
// the background, so it can neither return the post-increment counters nor
// refuse an unknown rule. Each increment is therefore a read-modify-write
// inside one serializable transaction. Badger aborts a commit whose read set
// changed underneath it (badger.ErrConflict) and the whole transaction is
// rerun, so every call lands exactly once. Contended keys pay for this with
// retries, bounded by maxConflictRetries. The DuckDB store does the same
// increment as one UPDATE statement.
type BadgerStats struct {
	db *badger.DB
}

// OpenBadgerStats opens (or creates) the store.
func OpenBadgerStats(cfg BadgerConfig) (*BadgerStats, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger stats path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &BadgerStats{db: db}, nil
}

// Close closes the database.
func (b *BadgerStats) Close() error {
	return b.db.Close()
}

func statsKey(ruleID string) []byte {
	return []byte(statsKeyPrefix + ruleID)
}

func readStats(txn *badger.Txn, ruleID string) (recommend.RuleStats, bool, error) {
	item, err := txn.Get(statsKey(ruleID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return recommend.RuleStats{}, false, nil
	}
	if err != nil {
		return recommend.RuleStats{}, false, fmt.Errorf("get stats: %w", err)
	}

	var s recommend.RuleStats
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &s)
	})
	if err != nil {
		return recommend.RuleStats{}, false, fmt.Errorf("unmarshal stats: %w", err)
	}
	return s, true, nil
}

//nolint:gocritic // hugeParam: stats value is copied into the encoder
func writeStats(txn *badger.Txn, s recommend.RuleStats) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(statsKey(s.RuleID), data))
}

// GetStats implements recommend.StatsStore.
func (b *BadgerStats) GetStats(ctx context.Context, ruleID string) (recommend.RuleStats, bool, error) {
	if err := ctx.Err(); err != nil {
		return recommend.RuleStats{}, false, err
	}
	var (
		s  recommend.RuleStats
		ok bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		s, ok, err = readStats(txn, ruleID)
		return err
	})
	return s, ok, err
}

// GetStatsBatch implements recommend.StatsStore.
func (b *BadgerStats) GetStatsBatch(ctx context.Context, ruleIDs []string) (map[string]recommend.RuleStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]recommend.RuleStats, len(ruleIDs))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ruleIDs {
			s, ok, err := readStats(txn, id)
			if err != nil {
				return err
			}
			if ok {
				out[id] = s
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureStats implements recommend.StatsStore.
func (b *BadgerStats) EnsureStats(ctx context.Context, ruleIDs []string) error {
	for start := 0; start < len(ruleIDs); start += ensureBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := ruleIDs[start:min(start+ensureBatchSize, len(ruleIDs))]
		err := b.updateWithRetry(func(txn *badger.Txn) error {
			now := time.Now().UTC()
			for _, id := range batch {
				_, ok, err := readStats(txn, id)
				if err != nil {
					return err
				}
				if ok {
					continue
				}
				if err := writeStats(txn, recommend.RuleStats{RuleID: id, UpdatedAt: now}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ensure stats: %w", err)
		}
	}
	return nil
}

// UpsertIncrement implements recommend.StatsStore.
func (b *BadgerStats) UpsertIncrement(ctx context.Context, ruleID string, field recommend.StatField, createIfAbsent bool) (recommend.RuleStats, error) {
	if err := ctx.Err(); err != nil {
		return recommend.RuleStats{}, err
	}

	var updated recommend.RuleStats
	err := b.updateWithRetry(func(txn *badger.Txn) error {
		s, ok, err := readStats(txn, ruleID)
		if err != nil {
			return err
		}
		if !ok {
			if !createIfAbsent {
				return fmt.Errorf("%w: %s", recommend.ErrUnknownRule, ruleID)
			}
			s = recommend.RuleStats{RuleID: ruleID}
		}
		updated = applyIncrement(s, field)
		return writeStats(txn, updated)
	})
	if err != nil {
		return recommend.RuleStats{}, err
	}
	return updated, nil
}

func (b *BadgerStats) updateWithRetry(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d conflicting attempts: %w", maxConflictRetries, err)
}
