// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/config"
	"github.com/tomtom215/cartsage/internal/database"
	"github.com/tomtom215/cartsage/internal/recommend"
	"github.com/tomtom215/cartsage/internal/recommend/bandit"
	"github.com/tomtom215/cartsage/internal/recommend/mining"
	"github.com/tomtom215/cartsage/internal/recommend/storage"
)

// RecommendComponents holds the engine and what it was assembled from.
type RecommendComponents struct {
	Engine *recommend.Engine
	Source *recommend.BreakerSource
	Rules  *storage.RuleFile

	// statsCloser is set when the stats backend owns resources of its own.
	statsCloser io.Closer
}

// Close releases the stats backend, if it needs releasing.
func (rc *RecommendComponents) Close() error {
	if rc.statsCloser == nil {
		return nil
	}
	return rc.statsCloser.Close()
}

// buildEngineConfig maps the service configuration onto the engine's.
func buildEngineConfig(cfg *config.Config) *recommend.Config {
	return &recommend.Config{
		Mining: recommend.MiningConfig{
			MinSupport:    cfg.Rules.MinSupport,
			MinConfidence: cfg.Rules.MinConfidence,
			MinLift:       cfg.Rules.MinLift,
			MinLength:     cfg.Rules.MinLength,
			MaxLength:     cfg.Rules.MaxLength,
		},
		RegenerateTimeout: cfg.Rules.RegenerateTimeout,
	}
}

// openStats selects the stats backend named by stats.backend. The DuckDB
// backend shares the basket database; the others are separate stores.
func openStats(cfg *config.Config, db *database.DB) (recommend.StatsStore, io.Closer, error) {
	switch cfg.Stats.Backend {
	case config.StatsBackendDuckDB, "":
		return db, nil, nil
	case config.StatsBackendBadger:
		stats, err := storage.OpenBadgerStats(storage.BadgerConfig{
			Path:       cfg.Stats.BadgerPath,
			SyncWrites: cfg.Stats.SyncWrites,
		})
		if err != nil {
			return nil, nil, err
		}
		return stats, stats, nil
	case config.StatsBackendMemory:
		return storage.NewMemoryStats(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown stats backend %q", cfg.Stats.Backend)
	}
}

// initRecommend assembles the rule engine over db.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initRecommend(cfg *config.Config, db *database.DB, logger zerolog.Logger) (*RecommendComponents, error) {
	stats, closer, err := openStats(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("open stats store: %w", err)
	}

	rules, err := storage.NewRuleFile(cfg.Rules.OutputDir, cfg.Rules.FileName)
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	source := recommend.NewBreakerSource(db, recommend.BreakerConfig{
		FailureThreshold: cfg.Rules.SourceFailureThreshold,
		Timeout:          cfg.Rules.SourceBreakerTimeout,
		Interval:         recommend.DefaultBreakerConfig().Interval,
	}, logger)

	engine, err := recommend.NewEngine(buildEngineConfig(cfg), recommend.Components{
		Source: source,
		Store:  rules,
		Stats:  stats,
		Miner:  mining.NewApriori(buildEngineConfig(cfg).Mining),
		Selector: bandit.NewThompson(stats, bandit.Config{
			Seed:         cfg.Bandit.Seed,
			StatsTimeout: cfg.Bandit.StatsTimeout,
		}, logger),
	}, logger)
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("create engine: %w", err)
	}

	logger.Info().
		Str("stats_backend", cfg.Stats.Backend).
		Str("rules_file", rules.Path()).
		Float64("min_support", cfg.Rules.MinSupport).
		Float64("min_confidence", cfg.Rules.MinConfidence).
		Float64("min_lift", cfg.Rules.MinLift).
		Int("min_length", cfg.Rules.MinLength).
		Msg("Recommendation engine initialized")

	return &RecommendComponents{Engine: engine, Source: source, Rules: rules, statsCloser: closer}, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close() //nolint:errcheck // already failing
	}
}
