// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package mining implements Apriori frequent-itemset mining and association
// rule generation over basket transactions.
//
// # Algorithm
//
// Frequent itemsets are found level by level. Level k candidates are joined
// from level k-1 itemsets sharing their first k-2 items and pruned unless every
// (k-1)-subset is frequent. Each frequent itemset of sufficient size then yields
// one rule per split into a non-empty antecedent and a non-empty consequent.
//
// # Determinism
//
// Items are interned in lexicographic order and every itemset is kept sorted,
// so the same baskets and thresholds always produce the same rules in the same
// order.
//
// # Thread Safety
//
// An Apriori value holds only its thresholds and run counters, so one instance
// may mine concurrently from several goroutines.
package mining
