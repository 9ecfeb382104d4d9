// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package storage provides persistence for mined rules and per-rule feedback
// counters.
//
// # Rule File
//
// RuleFile keeps the current rule set as a JSON array on disk. Replace writes a
// temporary file in the same directory, fsyncs it and renames it over the
// previous file, so a concurrent Read sees either the old array or the new one.
//
// # Stats Stores
//
// Two recommend.StatsStore implementations live here:
//
//   - MemoryStats: process-local, for tests and ephemeral deployments
//   - BadgerStats: BadgerDB-backed, increments run in a read-write transaction
//     that is retried on conflict
//
// A DuckDB-backed implementation lives in the database package.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package storage
