// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package bandit selects among candidate rules with Thompson Sampling.
//
// Each rule carries a Beta-Bernoulli posterior: with s recorded successes and
// f failures its conversion rate is modelled as Beta(s+1, f+1). Selection draws
// one sample per candidate and picks the largest, so rules with little feedback
// still get explored while proven rules win most draws.
package bandit

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// Config contains configuration for the Thompson sampler.
type Config struct {
	// Seed seeds the sampler. Zero seeds from the clock.
	Seed uint64

	// StatsTimeout bounds the stats lookup made for each selection.
	StatsTimeout time.Duration
}

// DefaultConfig returns the default sampler configuration.
func DefaultConfig() Config {
	return Config{StatsTimeout: 2 * time.Second}
}

// Thompson implements recommend.Selector.
type Thompson struct {
	stats   recommend.StatsStore
	logger  zerolog.Logger
	timeout time.Duration

	// The source is not safe for concurrent use.
	rngMu sync.Mutex
	src   *rand.PCG
	rng   *rand.Rand
}

// NewThompson creates a sampler over stats.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewThompson(stats recommend.StatsStore, cfg Config, logger zerolog.Logger) *Thompson {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // sampling seed, not security sensitive
	}
	if cfg.StatsTimeout <= 0 {
		cfg.StatsTimeout = DefaultConfig().StatsTimeout
	}

	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Thompson{
		stats:   stats,
		logger:  logger.With().Str("component", "bandit").Logger(),
		timeout: cfg.StatsTimeout,
		src:     src,
		rng:     rand.New(src), //nolint:gosec // math/rand is fine for exploration
	}
}

// Select implements recommend.Selector. It returns nil for an empty candidate
// list. Candidates whose stats are missing get zeroed stats created before they
// are sampled. When no candidate can be sampled the choice falls back to a
// uniform draw instead of failing.
func (t *Thompson) Select(ctx context.Context, candidates recommend.RuleSet) (*recommend.Selection, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := candidates.IDs()
	stats := t.lookup(ctx, ids)

	best := -1
	bestSample := math.Inf(-1)
	for i, id := range ids {
		s, ok := stats[id]
		if !ok {
			continue
		}
		sample := t.sample(s)
		if math.IsNaN(sample) {
			continue
		}
		if sample > bestSample {
			best, bestSample = i, sample
		}
	}

	if best < 0 {
		i := t.uniform(len(candidates))
		t.logger.Warn().
			Int("candidates", len(candidates)).
			Msg("no posterior samples available, choosing uniformly")
		return &recommend.Selection{
			Rule:     candidates[i],
			RuleID:   ids[i],
			Sample:   0,
			Stats:    recommend.RuleStats{RuleID: ids[i]},
			Fallback: true,
		}, nil
	}

	return &recommend.Selection{
		Rule:   candidates[best],
		RuleID: ids[best],
		Sample: bestSample,
		Stats:  stats[ids[best]],
	}, nil
}

// lookup returns stats for the identities that could be read or created.
// Failures are logged and leave the affected identities out.
func (t *Thompson) lookup(ctx context.Context, ids []string) map[string]recommend.RuleStats {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	found, err := t.stats.GetStatsBatch(ctx, ids)
	if err != nil {
		t.logger.Warn().Err(err).Int("rules", len(ids)).Msg("stats lookup failed")
		return nil
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return found
	}

	if err := t.stats.EnsureStats(ctx, missing); err != nil {
		t.logger.Warn().Err(err).Int("rules", len(missing)).Msg("failed to create stats for unseen rules")
		return found
	}
	for _, id := range missing {
		found[id] = recommend.RuleStats{RuleID: id}
	}
	return found
}

// sample draws from Beta(successes+1, failures+1).
//
//nolint:gocritic // hugeParam: stats is read-only
func (t *Thompson) sample(s recommend.RuleStats) float64 {
	if s.Successes < 0 || s.Failures < 0 {
		return math.NaN()
	}
	t.rngMu.Lock()
	defer t.rngMu.Unlock()

	dist := distuv.Beta{
		Alpha: float64(s.Successes) + 1,
		Beta:  float64(s.Failures) + 1,
		Src:   t.src,
	}
	return dist.Rand()
}

func (t *Thompson) uniform(n int) int {
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return t.rng.IntN(n)
}

// RecordFeedback implements recommend.Selector. The increment is a single
// atomic operation in the stats store; identities that were never offered are
// rejected with recommend.ErrUnknownRule.
func (t *Thompson) RecordFeedback(ctx context.Context, ruleID string, success bool) (recommend.RuleStats, error) {
	field := recommend.FieldFor(success)
	stats, err := t.stats.UpsertIncrement(ctx, ruleID, field, false)
	if err != nil {
		return recommend.RuleStats{}, err
	}
	t.logger.Debug().
		Str("rule_id", ruleID).
		Str("field", field.String()).
		Int64("successes", stats.Successes).
		Int64("failures", stats.Failures).
		Msg("feedback recorded")
	return stats, nil
}
