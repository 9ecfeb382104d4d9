// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package database provides the DuckDB persistence layer for Cartsage.

A single DuckDB file holds two tables:

  - baskets: recorded transactions, read in full by every mining pass
    (recommend.BasketSource) and written by basket ingestion.
  - rule_stats: per-rule success and failure counters used by the bandit
    (recommend.StatsStore).

# Concurrency

Counter updates are single SQL statements (INSERT ... ON CONFLICT DO UPDATE
or UPDATE ... SET n = n + 1), so concurrent increments never lose updates.
DuckDB uses optimistic concurrency and reports "Transaction conflict" when two
transactions touch the same row; writes to one rule are serialized through a
per-rule mutex and retried with exponential backoff when DuckDB still reports
a conflict.

# Usage

	db, err := database.New(&cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	baskets, err := db.ListBaskets(ctx)
*/
package database
