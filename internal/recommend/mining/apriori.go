// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package mining

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// ctxCheckInterval is how many baskets are counted between context checks.
const ctxCheckInterval = 1024

// Apriori mines association rules with the Apriori algorithm.
type Apriori struct {
	cfg recommend.MiningConfig

	mu        sync.RWMutex
	passes    int
	lastMined time.Time
}

// NewApriori creates a miner. A zero-valued config selects the defaults.
// Otherwise confidence and lift are taken as given, so 0 disables either
// filter; only support and length, which must be positive, fall back.
//
//nolint:gocritic // hugeParam: cfg passed by value for immutability
func NewApriori(cfg recommend.MiningConfig) *Apriori {
	defaults := recommend.DefaultMiningConfig()
	if cfg == (recommend.MiningConfig{}) {
		return &Apriori{cfg: defaults}
	}
	if cfg.MinSupport <= 0 {
		cfg.MinSupport = defaults.MinSupport
	}
	if cfg.MinLength < 1 {
		cfg.MinLength = defaults.MinLength
	}
	return &Apriori{cfg: cfg}
}

// Config returns the thresholds in effect.
func (a *Apriori) Config() recommend.MiningConfig {
	return a.cfg
}

// Passes returns how many mining passes completed and when the last one ended.
func (a *Apriori) Passes() (int, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.passes, a.lastMined
}

// Mine implements recommend.RuleMiner.
func (a *Apriori) Mine(ctx context.Context, baskets []recommend.Basket) (recommend.RuleSet, error) {
	transactions := make([][]string, len(baskets))
	for i := range baskets {
		transactions[i] = baskets[i].Items
	}
	return a.MineTransactions(ctx, transactions)
}

// MineTransactions mines raw item lists. Duplicate items within a transaction
// count once. Empty input yields an empty, non-nil RuleSet.
func (a *Apriori) MineTransactions(ctx context.Context, transactions [][]string) (recommend.RuleSet, error) {
	rules := recommend.RuleSet{}
	if len(transactions) == 0 {
		a.markMined()
		return rules, nil
	}

	idx := newItemIndex(transactions)
	encoded := idx.encode(transactions)

	levels, err := a.frequentItemsets(ctx, encoded, idx.size())
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, level := range levels {
		for _, fs := range level {
			counts[itemsetKey(fs.items)] = fs.count
		}
	}

	n := float64(len(transactions))
	minLen := max(a.cfg.MinLength, 2)
	for size, level := range levels {
		if size+1 < minLen {
			continue
		}
		for _, fs := range level {
			rules = a.appendRules(rules, fs, counts, n, idx)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	a.markMined()
	return rules, nil
}

func (a *Apriori) markMined() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.passes++
	a.lastMined = time.Now()
}

// frequentSet is an itemset of interned item indices, sorted ascending, with
// the number of transactions containing it.
type frequentSet struct {
	items []int
	count int
}

// frequentItemsets returns the frequent itemsets grouped by size: levels[0]
// holds singletons, levels[1] pairs and so on.
func (a *Apriori) frequentItemsets(ctx context.Context, transactions [][]int, numItems int) ([][]frequentSet, error) {
	n := float64(len(transactions))
	frequent := func(count int) bool {
		return count > 0 && float64(count)/n >= a.cfg.MinSupport
	}

	singles := make([]int, numItems)
	for _, tx := range transactions {
		for _, item := range tx {
			singles[item]++
		}
	}
	level := make([]frequentSet, 0, numItems)
	for item, count := range singles {
		if frequent(count) {
			level = append(level, frequentSet{items: []int{item}, count: count})
		}
	}

	var levels [][]frequentSet
	member := make([]bool, numItems)
	for size := 1; len(level) > 0; size++ {
		levels = append(levels, level)
		if a.cfg.MaxLength > 0 && size >= a.cfg.MaxLength {
			break
		}

		candidates := generateCandidates(level)
		if len(candidates) == 0 {
			break
		}

		counts := make([]int, len(candidates))
		for i, tx := range transactions {
			if i%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if len(tx) <= size {
				continue
			}
			for _, item := range tx {
				member[item] = true
			}
			for c, cand := range candidates {
				if containsAll(member, cand) {
					counts[c]++
				}
			}
			for _, item := range tx {
				member[item] = false
			}
		}

		next := make([]frequentSet, 0, len(candidates))
		for c, cand := range candidates {
			if frequent(counts[c]) {
				next = append(next, frequentSet{items: cand, count: counts[c]})
			}
		}
		level = next
	}
	return levels, nil
}

// generateCandidates joins itemsets that share all but their last item and
// drops any candidate with an infrequent subset. level must be sorted.
func generateCandidates(level []frequentSet) [][]int {
	known := make(map[string]struct{}, len(level))
	for _, fs := range level {
		known[itemsetKey(fs.items)] = struct{}{}
	}

	var candidates [][]int
	for i := 0; i < len(level); i++ {
		left := level[i].items
		prefix := left[:len(left)-1]
		for j := i + 1; j < len(level); j++ {
			right := level[j].items
			if !slices.Equal(prefix, right[:len(right)-1]) {
				// Sorted order groups equal prefixes together.
				break
			}
			cand := make([]int, len(left)+1)
			copy(cand, left)
			cand[len(left)] = right[len(right)-1]
			if allSubsetsKnown(cand, known) {
				candidates = append(candidates, cand)
			}
		}
	}
	return candidates
}

// allSubsetsKnown checks the subsets formed by dropping one item. The two
// subsets dropping either of the last two items are the join parents.
func allSubsetsKnown(cand []int, known map[string]struct{}) bool {
	sub := make([]int, 0, len(cand)-1)
	for skip := 0; skip < len(cand)-2; skip++ {
		sub = sub[:0]
		sub = append(sub, cand[:skip]...)
		sub = append(sub, cand[skip+1:]...)
		if _, ok := known[itemsetKey(sub)]; !ok {
			return false
		}
	}
	return true
}

func containsAll(member []bool, items []int) bool {
	for _, item := range items {
		if !member[item] {
			return false
		}
	}
	return true
}

// appendRules emits every antecedent/consequent split of fs that meets the
// confidence and lift thresholds. Antecedents are enumerated by size, then in
// lexicographic order.
func (a *Apriori) appendRules(rules recommend.RuleSet, fs frequentSet, counts map[string]int, n float64, idx *itemIndex) recommend.RuleSet {
	k := len(fs.items)
	support := float64(fs.count) / n

	for size := 1; size < k; size++ {
		forEachCombination(k, size, func(picked []int) {
			antecedent := make([]int, 0, size)
			consequent := make([]int, 0, k-size)
			p := 0
			for i, item := range fs.items {
				if p < len(picked) && picked[p] == i {
					antecedent = append(antecedent, item)
					p++
					continue
				}
				consequent = append(consequent, item)
			}

			countA := counts[itemsetKey(antecedent)]
			countC := counts[itemsetKey(consequent)]
			if countA == 0 || countC == 0 {
				return
			}

			confidence := float64(fs.count) / float64(countA)
			// From counts so exact independence gives exactly 1.0.
			lift := float64(fs.count) * n / (float64(countA) * float64(countC))
			if confidence < a.cfg.MinConfidence || lift < a.cfg.MinLift {
				return
			}

			rules = append(rules, recommend.Rule{
				Antecedents: idx.decode(antecedent),
				Consequents: idx.decode(consequent),
				Support:     support,
				Confidence:  confidence,
				Lift:        lift,
			})
		})
	}
	return rules
}

// forEachCombination calls fn with every size-r subset of [0, n) as ascending
// positions, in lexicographic order. fn must not retain the slice.
func forEachCombination(n, r int, fn func([]int)) {
	picked := make([]int, r)
	for i := range picked {
		picked[i] = i
	}
	for {
		fn(picked)
		i := r - 1
		for i >= 0 && picked[i] == n-r+i {
			i--
		}
		if i < 0 {
			return
		}
		picked[i]++
		for j := i + 1; j < r; j++ {
			picked[j] = picked[j-1] + 1
		}
	}
}

func itemsetKey(items []int) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(item))
	}
	return b.String()
}
