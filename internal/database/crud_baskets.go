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
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/metrics"
	"github.com/tomtom215/cartsage/internal/recommend"
)

var _ recommend.BasketSource = (*DB)(nil)

// ListBaskets returns every basket, oldest first. Ties are broken by ID so
// that repeated reads of unchanged data return the same order.
func (db *DB) ListBaskets(ctx context.Context) ([]recommend.Basket, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT basket_id, session_id, items, created_at, updated_at
		FROM baskets
		ORDER BY created_at, basket_id`)
	if err != nil {
		metrics.RecordDBQuery("list", "baskets", time.Since(start), err)
		return nil, fmt.Errorf("query baskets: %w", err)
	}
	defer closeQuietly(rows)

	var baskets []recommend.Basket
	for rows.Next() {
		b, err := scanBasket(rows)
		if err != nil {
			metrics.RecordDBQuery("list", "baskets", time.Since(start), err)
			return nil, err
		}
		baskets = append(baskets, b)
	}
	err = rows.Err()
	metrics.RecordDBQuery("list", "baskets", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("iterate baskets: %w", err)
	}
	return baskets, nil
}

// GetBasket returns one basket; ok is false when it does not exist.
func (db *DB) GetBasket(ctx context.Context, basketID string) (recommend.Basket, bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	row := db.conn.QueryRowContext(ctx, `
		SELECT basket_id, session_id, items, created_at, updated_at
		FROM baskets
		WHERE basket_id = ?`, basketID)
	b, err := scanBasket(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get", "baskets", time.Since(start), nil)
		return recommend.Basket{}, false, nil
	}
	metrics.RecordDBQuery("get", "baskets", time.Since(start), err)
	if err != nil {
		return recommend.Basket{}, false, err
	}
	return b, true, nil
}

// SessionOf implements recommend.BasketSource.
func (db *DB) SessionOf(ctx context.Context, basketID string) (string, bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	var session string
	err := db.conn.QueryRowContext(ctx,
		`SELECT session_id FROM baskets WHERE basket_id = ?`, basketID).Scan(&session)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("session_of", "baskets", time.Since(start), nil)
		return "", false, nil
	}
	metrics.RecordDBQuery("session_of", "baskets", time.Since(start), err)
	if err != nil {
		return "", false, fmt.Errorf("lookup session of basket %s: %w", basketID, err)
	}
	return session, session != "", nil
}

// UpsertBasket records a basket. A missing ID is generated. The returned
// operation tells whether the basket was created or an existing one updated;
// CreatedAt is preserved on update.
func (db *DB) UpsertBasket(ctx context.Context, b *recommend.Basket) (recommend.ChangeOp, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	items, err := json.Marshal(b.Items)
	if err != nil {
		return "", fmt.Errorf("encode basket items: %w", err)
	}
	now := time.Now().UTC()

	var op recommend.ChangeOp
	err = withConflictRetry(ctx, func() error {
		var txErr error
		op, txErr = db.upsertBasketTx(ctx, b, string(items), now)
		return txErr
	})
	metrics.RecordDBQuery("upsert", "baskets", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("upsert basket %s: %w", b.ID, err)
	}
	return op, nil
}

//nolint:gocritic // now is a value by convention
func (db *DB) upsertBasketTx(ctx context.Context, b *recommend.Basket, items string, now time.Time) (op recommend.ChangeOp, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Debug().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	var createdAt time.Time
	scanErr := tx.QueryRowContext(ctx,
		`SELECT created_at FROM baskets WHERE basket_id = ?`, b.ID).Scan(&createdAt)
	switch {
	case errors.Is(scanErr, sql.ErrNoRows):
		op = recommend.ChangeCreated
		createdAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO baskets (basket_id, session_id, items, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`, b.ID, b.SessionID, items, now, now)
	case scanErr != nil:
		return "", fmt.Errorf("check existing basket: %w", scanErr)
	default:
		op = recommend.ChangeUpdated
		_, err = tx.ExecContext(ctx, `
			UPDATE baskets SET session_id = ?, items = ?, updated_at = ?
			WHERE basket_id = ?`, b.SessionID, items, now, b.ID)
	}
	if err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}

	b.CreatedAt = createdAt.UTC()
	b.UpdatedAt = now
	return op, nil
}

// CountBaskets returns the number of recorded baskets.
func (db *DB) CountBaskets(ctx context.Context) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM baskets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count baskets: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBasket(row rowScanner) (recommend.Basket, error) {
	var (
		b     recommend.Basket
		items string
	)
	if err := row.Scan(&b.ID, &b.SessionID, &items, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("scan basket: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &b.Items); err != nil {
		return b, fmt.Errorf("decode items of basket %s: %w", b.ID, err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}
