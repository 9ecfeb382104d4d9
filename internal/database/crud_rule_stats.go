// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/cartsage/internal/metrics"
	"github.com/tomtom215/cartsage/internal/recommend"
)

var _ recommend.StatsStore = (*DB)(nil)

// statsBatchSize bounds the number of placeholders per IN (...) query.
const statsBatchSize = 500

// Increment statements, one per field. Column names cannot be bound as
// parameters, so each field has its own fixed statement.
var (
	upsertIncrementSQL = map[recommend.StatField]string{
		recommend.StatSuccesses: `
			INSERT INTO rule_stats (rule_id, successes, failures, updated_at)
			VALUES (?, 1, 0, ?)
			ON CONFLICT (rule_id) DO UPDATE SET
				successes = successes + 1,
				updated_at = EXCLUDED.updated_at`,
		recommend.StatFailures: `
			INSERT INTO rule_stats (rule_id, successes, failures, updated_at)
			VALUES (?, 0, 1, ?)
			ON CONFLICT (rule_id) DO UPDATE SET
				failures = failures + 1,
				updated_at = EXCLUDED.updated_at`,
	}
	updateIncrementSQL = map[recommend.StatField]string{
		recommend.StatSuccesses: `UPDATE rule_stats SET successes = successes + 1, updated_at = ? WHERE rule_id = ?`,
		recommend.StatFailures:  `UPDATE rule_stats SET failures = failures + 1, updated_at = ? WHERE rule_id = ?`,
	}
)

// acquireRuleLock serializes writes to one rule_stats row.
func (db *DB) acquireRuleLock(ruleID string) *sync.Mutex {
	muInterface, _ := db.ruleLocks.LoadOrStore(ruleID, &sync.Mutex{})
	mu, ok := muInterface.(*sync.Mutex)
	if !ok {
		mu = &sync.Mutex{}
		db.ruleLocks.Store(ruleID, mu)
	}
	mu.Lock()
	return mu
}

// GetStats implements recommend.StatsStore.
func (db *DB) GetStats(ctx context.Context, ruleID string) (recommend.RuleStats, bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	s, err := db.selectStats(ctx, db.conn, ruleID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get", "rule_stats", time.Since(start), nil)
		return recommend.RuleStats{}, false, nil
	}
	metrics.RecordDBQuery("get", "rule_stats", time.Since(start), err)
	if err != nil {
		return recommend.RuleStats{}, false, fmt.Errorf("get stats for %s: %w", ruleID, err)
	}
	return s, true, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) selectStats(ctx context.Context, q queryRower, ruleID string) (recommend.RuleStats, error) {
	s := recommend.RuleStats{RuleID: ruleID}
	err := q.QueryRowContext(ctx,
		`SELECT successes, failures, updated_at FROM rule_stats WHERE rule_id = ?`, ruleID).
		Scan(&s.Successes, &s.Failures, &s.UpdatedAt)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, err
}

// GetStatsBatch implements recommend.StatsStore.
func (db *DB) GetStatsBatch(ctx context.Context, ruleIDs []string) (map[string]recommend.RuleStats, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	out := make(map[string]recommend.RuleStats, len(ruleIDs))
	for lo := 0; lo < len(ruleIDs); lo += statsBatchSize {
		hi := min(lo+statsBatchSize, len(ruleIDs))
		if err := db.getStatsChunk(ctx, ruleIDs[lo:hi], out); err != nil {
			metrics.RecordDBQuery("get_batch", "rule_stats", time.Since(start), err)
			return nil, err
		}
	}
	metrics.RecordDBQuery("get_batch", "rule_stats", time.Since(start), nil)
	return out, nil
}

func (db *DB) getStatsChunk(ctx context.Context, ids []string, out map[string]recommend.RuleStats) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	//nolint:gosec // placeholders only, values are bound
	query := `SELECT rule_id, successes, failures, updated_at FROM rule_stats WHERE rule_id IN (` + placeholders + `)`
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query stats batch: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var s recommend.RuleStats
		if err := rows.Scan(&s.RuleID, &s.Successes, &s.Failures, &s.UpdatedAt); err != nil {
			return fmt.Errorf("scan stats: %w", err)
		}
		s.UpdatedAt = s.UpdatedAt.UTC()
		out[s.RuleID] = s
	}
	return rows.Err()
}

// EnsureStats implements recommend.StatsStore. Existing counters are left
// untouched.
func (db *DB) EnsureStats(ctx context.Context, ruleIDs []string) error {
	if len(ruleIDs) == 0 {
		return nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	now := time.Now().UTC()
	err := withConflictRetry(ctx, func() error {
		return db.ensureStatsTx(ctx, ruleIDs, now)
	})
	metrics.RecordDBQuery("ensure", "rule_stats", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("ensure stats for %d rules: %w", len(ruleIDs), err)
	}
	return nil
}

//nolint:gocritic // now is a value by convention
func (db *DB) ensureStatsTx(ctx context.Context, ruleIDs []string, now time.Time) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback after failure
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_stats (rule_id, successes, failures, updated_at)
		VALUES (?, 0, 0, ?)
		ON CONFLICT (rule_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare ensure: %w", err)
	}
	defer closeQuietly(stmt)

	for _, id := range ruleIDs {
		if _, err = stmt.ExecContext(ctx, id, now); err != nil {
			return fmt.Errorf("ensure %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// UpsertIncrement implements recommend.StatsStore. The increment is a single
// statement; the follow-up read happens under the same per-rule lock, so the
// returned counters include this increment and no later one.
func (db *DB) UpsertIncrement(ctx context.Context, ruleID string, field recommend.StatField, createIfAbsent bool) (recommend.RuleStats, error) {
	upsertSQL, ok := upsertIncrementSQL[field]
	if !ok {
		return recommend.RuleStats{}, fmt.Errorf("unknown stat field %d", field)
	}
	updateSQL := updateIncrementSQL[field]

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	mu := db.acquireRuleLock(ruleID)
	defer mu.Unlock()

	now := time.Now().UTC()
	var stats recommend.RuleStats
	err := withConflictRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if createIfAbsent {
			_, err = tx.ExecContext(ctx, upsertSQL, ruleID, now)
		} else {
			var res sql.Result
			res, err = tx.ExecContext(ctx, updateSQL, now, ruleID)
			if err == nil {
				var n int64
				if n, err = res.RowsAffected(); err == nil && n == 0 {
					err = fmt.Errorf("%w: %s", recommend.ErrUnknownRule, ruleID)
				}
			}
		}
		if err == nil {
			stats, err = db.selectStats(ctx, tx, ruleID)
		}
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback after failure
			return err
		}
		return tx.Commit()
	})

	if errors.Is(err, recommend.ErrUnknownRule) {
		metrics.RecordDBQuery("increment", "rule_stats", time.Since(start), nil)
		return recommend.RuleStats{}, err
	}
	metrics.RecordDBQuery("increment", "rule_stats", time.Since(start), err)
	if err != nil {
		return recommend.RuleStats{}, fmt.Errorf("increment %s for %s: %w", field, ruleID, err)
	}
	return stats, nil
}
