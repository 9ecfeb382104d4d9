// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/cartsage/internal/metrics"
)

// regenerateKey is the single singleflight key; all passes are equivalent.
const regenerateKey = "regenerate"

// Components are the collaborators the engine orchestrates.
type Components struct {
	Source   BasketSource
	Store    RuleStore
	Stats    StatsStore
	Miner    RuleMiner
	Selector Selector
}

func (c Components) validate() error {
	switch {
	case c.Source == nil:
		return errors.New("basket source is required")
	case c.Store == nil:
		return errors.New("rule store is required")
	case c.Stats == nil:
		return errors.New("stats store is required")
	case c.Miner == nil:
		return errors.New("rule miner is required")
	case c.Selector == nil:
		return errors.New("selector is required")
	}
	return nil
}

// RegenerationResult describes a completed mining pass.
type RegenerationResult struct {
	Trigger    TriggerReason `json:"trigger"`
	Baskets    int           `json:"baskets"`
	Rules      int           `json:"rules"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMS int64         `json:"duration_ms"`
}

// Recommendation is the outcome of a recommendation request. Selection is nil
// when no rule applies to the cart.
type Recommendation struct {
	Selection  *Selection `json:"selection"`
	Candidates int        `json:"candidates"`
	TotalRules int        `json:"total_rules"`
	Filtered   bool       `json:"filtered"`
}

// Status is a point-in-time view of the engine's regeneration state.
type Status struct {
	InProgress  bool                `json:"in_progress"`
	Generations int64               `json:"generations"`
	LastResult  *RegenerationResult `json:"last_result,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	LastErrorAt time.Time           `json:"last_error_at,omitempty"`
}

// Engine coordinates mining, rule storage and rule selection.
// It is safe for concurrent use.
type Engine struct {
	config *Config
	logger zerolog.Logger

	source   BasketSource
	store    RuleStore
	stats    StatsStore
	miner    RuleMiner
	selector Selector

	// Coalesces concurrent regeneration requests into one pass.
	group       singleflight.Group
	inProgress  atomic.Bool
	generations atomic.Int64

	statusMu    sync.RWMutex
	lastResult  *RegenerationResult
	lastErr     error
	lastErrorAt time.Time

	listenersMu sync.RWMutex
	listeners   []func(RegenerationResult)
}

// NewEngine creates a new engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, components Components, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := components.validate(); err != nil {
		return nil, err
	}

	return &Engine{
		config:   cfg,
		logger:   logger.With().Str("component", "recommend").Logger(),
		source:   components.Source,
		store:    components.Store,
		stats:    components.Stats,
		miner:    components.Miner,
		selector: components.Selector,
	}, nil
}

// OnRulesReplaced registers fn to run after every successful replace.
// Listeners run synchronously on the mining goroutine and must not block.
func (e *Engine) OnRulesReplaced(fn func(RegenerationResult)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Regenerate runs a mining pass and waits for it. If a pass is already running
// the call joins it instead of starting another. The pass runs on its own
// goroutine and is not cancelled with ctx: when ctx ends first the caller gets
// ErrUpdateInProgress and the pass carries on.
func (e *Engine) Regenerate(ctx context.Context, trigger TriggerReason) (*RegenerationResult, error) {
	ch := e.group.DoChan(regenerateKey, func() (interface{}, error) {
		return e.regenerate(context.WithoutCancel(ctx), trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Val.(*RegenerationResult) //nolint:errcheck // type is fixed by regenerate
		return result, nil
	case <-ctx.Done():
		metrics.RegenerationTimeouts.Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpdateInProgress, ctx.Err())
	}
}

// RegenerateWithCeiling is Regenerate bounded by the configured request ceiling.
func (e *Engine) RegenerateWithCeiling(ctx context.Context, trigger TriggerReason) (*RegenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.RegenerateTimeout)
	defer cancel()
	return e.Regenerate(ctx, trigger)
}

// RegenerateAsync starts a pass, or joins the running one, without waiting.
// It reports whether a pass was already running.
func (e *Engine) RegenerateAsync(trigger TriggerReason) bool {
	running := e.inProgress.Load()
	// DoChan's channel is buffered, so dropping it leaks nothing.
	e.group.DoChan(regenerateKey, func() (interface{}, error) {
		return e.regenerate(context.Background(), trigger)
	})
	return running
}

// regenerate reads every basket, mines them and replaces the stored rule set.
// On a failed read the stored rule set is left untouched.
func (e *Engine) regenerate(ctx context.Context, trigger TriggerReason) (*RegenerationResult, error) {
	e.inProgress.Store(true)
	defer e.inProgress.Store(false)

	start := time.Now()
	logger := e.logger.With().Str("trigger", string(trigger)).Logger()
	logger.Info().Msg("rule regeneration started")

	baskets, err := e.source.ListBaskets(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, e.failRegeneration(logger, trigger, start, "source_unavailable", err)
	}

	rules, err := e.miner.Mine(ctx, baskets)
	if err != nil {
		return nil, e.failRegeneration(logger, trigger, start, "error", fmt.Errorf("mine rules: %w", err))
	}

	if err := e.store.Replace(rules); err != nil {
		return nil, e.failRegeneration(logger, trigger, start, "error", fmt.Errorf("replace rules: %w", err))
	}

	// Selection creates missing stats lazily, so a failure here only delays
	// the entries until the rules are first offered.
	if err := e.stats.EnsureStats(ctx, rules.IDs()); err != nil {
		logger.Warn().Err(err).Msg("failed to create stats for new rules")
	}

	finished := time.Now()
	result := &RegenerationResult{
		Trigger:    trigger,
		Baskets:    len(baskets),
		Rules:      len(rules),
		StartedAt:  start,
		FinishedAt: finished,
		DurationMS: finished.Sub(start).Milliseconds(),
	}

	e.generations.Add(1)
	e.statusMu.Lock()
	e.lastResult = result
	e.lastErr = nil
	e.statusMu.Unlock()

	metrics.RecordMiningRun(string(trigger), "success", finished.Sub(start), len(baskets), len(rules))
	logger.Info().
		Int("baskets", len(baskets)).
		Int("rules", len(rules)).
		Int64("duration_ms", result.DurationMS).
		Msg("rule regeneration complete")

	e.notify(*result)
	return result, nil
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func (e *Engine) failRegeneration(logger zerolog.Logger, trigger TriggerReason, start time.Time, outcome string, err error) error {
	e.statusMu.Lock()
	e.lastErr = err
	e.lastErrorAt = time.Now()
	e.statusMu.Unlock()

	metrics.RecordMiningRun(string(trigger), outcome, time.Since(start), 0, 0)
	logger.Warn().Err(err).Str("outcome", outcome).Msg("rule regeneration failed, keeping previous rules")
	return err
}

func (e *Engine) notify(result RegenerationResult) {
	e.listenersMu.RLock()
	listeners := make([]func(RegenerationResult), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(result)
	}
}

// Rules returns the current rule set.
func (e *Engine) Rules() (RuleSet, error) {
	return e.store.Read()
}

// Recommend picks one rule for the cart. Rules are first narrowed to those
// whose antecedents are all in the cart; an empty cart skips the narrowing.
// A nil Selection means no rule applied and is not an error.
func (e *Engine) Recommend(ctx context.Context, cart CartContext) (*Recommendation, error) {
	rules, err := e.store.Read()
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNotYetGenerated) {
			outcome = "not_ready"
		}
		metrics.RecordRecommendation(outcome, 0, false)
		return nil, err
	}

	candidates := rules.Applicable(cart)
	rec := &Recommendation{
		Candidates: len(candidates),
		TotalRules: len(rules),
		Filtered:   !cart.Empty(),
	}

	selection, err := e.selector.Select(ctx, candidates)
	if err != nil {
		metrics.RecordRecommendation("error", len(candidates), false)
		return nil, fmt.Errorf("select rule: %w", err)
	}
	if selection == nil {
		metrics.RecordRecommendation("no_match", 0, false)
		e.logger.Debug().Int("cart_items", cart.Len()).Msg("no applicable rule for cart")
		return rec, nil
	}

	rec.Selection = selection
	metrics.RecordRecommendation("selected", len(candidates), selection.Fallback)
	e.logger.Debug().
		Str("rule_id", selection.RuleID).
		Float64("sample", selection.Sample).
		Int("candidates", len(candidates)).
		Msg("rule selected")
	return rec, nil
}

// RecordFeedback records whether an offered rule was accepted.
func (e *Engine) RecordFeedback(ctx context.Context, ruleID string, success bool) (RuleStats, error) {
	stats, err := e.selector.RecordFeedback(ctx, ruleID, success)
	switch {
	case errors.Is(err, ErrUnknownRule):
		metrics.RecordFeedback("unknown_rule")
		return RuleStats{}, err
	case err != nil:
		metrics.RecordFeedback("error")
		return RuleStats{}, fmt.Errorf("record feedback: %w", err)
	}

	metrics.RecordFeedback(FieldFor(success).String())
	return stats, nil
}

// RuleStats returns the counters for one rule identity.
func (e *Engine) RuleStats(ctx context.Context, ruleID string) (RuleStats, error) {
	stats, ok, err := e.stats.GetStats(ctx, ruleID)
	if err != nil {
		return RuleStats{}, fmt.Errorf("get stats: %w", err)
	}
	if !ok {
		return RuleStats{}, fmt.Errorf("%w: %s", ErrUnknownRule, ruleID)
	}
	return stats, nil
}

// Status returns the current regeneration state.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	s := Status{
		InProgress:  e.inProgress.Load(),
		Generations: e.generations.Load(),
		LastResult:  e.lastResult,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
		s.LastErrorAt = e.lastErrorAt
	}
	return s
}
