// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package recommend implements the rule-maintenance and recommendation-selection core.
//
// # Architecture
//
// Baskets flow through three stages:
//
//   - Mining: all known baskets are mined for association rules (see package mining)
//   - Storage: the mined RuleSet replaces the previous one atomically (see package storage)
//   - Selection: rules applicable to a cart are ranked with Thompson Sampling (see package bandit)
//
// The Engine owns the handles to every collaborator. They are constructed once at
// startup and passed in explicitly; nothing here holds process-wide state.
//
// # Regeneration
//
// Concurrent regeneration requests are coalesced into one mining pass that runs on
// its own goroutine. Request handlers wait for the pass up to a configurable ceiling
// and report ErrUpdateInProgress when it is exceeded; the pass itself is never
// cancelled by the caller giving up.
//
// # Errors
//
// Every failure the package reports wraps one of the sentinel errors in errors.go.
// KindOf maps an error to its ErrorKind so callers can distinguish "rules not
// ready" and "no recommendation" from real faults.
//
// # Usage
//
//	engine, err := recommend.NewEngine(cfg, recommend.Components{
//		Source:   source,
//		Store:    ruleFile,
//		Stats:    stats,
//		Miner:    mining.NewApriori(cfg.Mining),
//		Selector: bandit.NewThompson(stats, bandit.DefaultConfig(), logger),
//	}, logger)
//	result, err := engine.Regenerate(ctx)
//	rec, err := engine.Recommend(ctx, cart)
package recommend
