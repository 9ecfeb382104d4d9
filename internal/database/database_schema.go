// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package database

import (
	"context"
	"fmt"
)

// Items are stored as a JSON array in a VARCHAR so that the recorded order
// survives a round trip without depending on DuckDB list support in the driver.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS baskets (
		basket_id  VARCHAR PRIMARY KEY,
		session_id VARCHAR NOT NULL,
		items      VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rule_stats (
		rule_id    VARCHAR PRIMARY KEY,
		successes  BIGINT NOT NULL DEFAULT 0,
		failures   BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`,
}

func (db *DB) initialize() error {
	ctx, cancel := ensureContext(context.Background())
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
