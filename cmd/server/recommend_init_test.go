// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/config"
	"github.com/tomtom215/cartsage/internal/database"
	"github.com/tomtom215/cartsage/internal/recommend"
	"github.com/tomtom215/cartsage/internal/recommend/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Rules: config.RulesConfig{
			OutputDir:              t.TempDir(),
			MinSupport:             0.001,
			MinConfidence:          0.2,
			MinLift:                1.0,
			MinLength:              2,
			RegenerateTimeout:      5 * time.Second,
			SourceFailureThreshold: 5,
			SourceBreakerTimeout:   time.Second,
		},
		Bandit: config.BanditConfig{Seed: 7, StatsTimeout: time.Second},
		Stats:  config.StatsConfig{Backend: config.StatsBackendDuckDB},
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBuildEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules.MaxLength = 4

	got := buildEngineConfig(cfg)
	if got.Mining.MinSupport != 0.001 || got.Mining.MinConfidence != 0.2 ||
		got.Mining.MinLift != 1.0 || got.Mining.MinLength != 2 || got.Mining.MaxLength != 4 {
		t.Errorf("mining = %+v", got.Mining)
	}
	if got.RegenerateTimeout != 5*time.Second {
		t.Errorf("RegenerateTimeout = %v", got.RegenerateTimeout)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOpenStats(t *testing.T) {
	db := openTestDB(t)

	tests := []struct {
		name    string
		backend string
		verify  func(t *testing.T, stats recommend.StatsStore, closer io.Closer, err error)
	}{
		{
			name:    "duckdb shares the basket database",
			backend: config.StatsBackendDuckDB,
			verify: func(t *testing.T, stats recommend.StatsStore, closer io.Closer, err error) {
				if err != nil {
					t.Fatal(err)
				}
				if stats != recommend.StatsStore(db) || closer != nil {
					t.Errorf("stats = %T closer = %v", stats, closer)
				}
			},
		},
		{
			name:    "memory",
			backend: config.StatsBackendMemory,
			verify: func(t *testing.T, stats recommend.StatsStore, _ io.Closer, err error) {
				if err != nil {
					t.Fatal(err)
				}
				if _, ok := stats.(*storage.MemoryStats); !ok {
					t.Errorf("stats = %T", stats)
				}
			},
		},
		{
			name:    "badger owns its store",
			backend: config.StatsBackendBadger,
			verify: func(t *testing.T, stats recommend.StatsStore, closer io.Closer, err error) {
				if err != nil {
					t.Fatal(err)
				}
				if closer == nil {
					t.Fatal("badger backend must be closed by the caller")
				}
				if err := closer.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			},
		},
		{
			name:    "unknown backend",
			backend: "redis",
			verify: func(t *testing.T, _ recommend.StatsStore, _ io.Closer, err error) {
				if err == nil {
					t.Error("expected error")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Stats.Backend = tt.backend
			cfg.Stats.BadgerPath = filepath.Join(t.TempDir(), "stats")
			stats, closer, err := openStats(cfg, db)
			tt.verify(t, stats, closer, err)
		})
	}
}

func TestInitRecommend_MinesRecordedBaskets(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig(t)

	rc, err := initRecommend(cfg, db, zerolog.Nop())
	if err != nil {
		t.Fatalf("initRecommend: %v", err)
	}
	defer rc.Close()

	ctx := context.Background()
	if _, err := rc.Engine.Rules(); err == nil {
		t.Fatal("rules available before first generation")
	}

	for _, b := range []recommend.Basket{
		{SessionID: "s1", Items: []string{"bread", "butter"}},
		{SessionID: "s2", Items: []string{"bread", "butter", "jam"}},
	} {
		b := b
		if _, err := db.UpsertBasket(ctx, &b); err != nil {
			t.Fatalf("UpsertBasket: %v", err)
		}
	}

	result, err := rc.Engine.Regenerate(ctx, recommend.TriggerStartup)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if result.Baskets != 2 || result.Rules == 0 {
		t.Errorf("result = %+v", result)
	}

	rules, err := rc.Engine.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules) != result.Rules {
		t.Errorf("stored %d rules, result reports %d", len(rules), result.Rules)
	}

	// Every mined rule is known to the stats store.
	if _, err := rc.Engine.RecordFeedback(ctx, rules[0].ID(), true); err != nil {
		t.Errorf("RecordFeedback: %v", err)
	}

	info, err := rc.Rules.Info()
	if err != nil || !info.Exists {
		t.Errorf("rule file info = %+v, err = %v", info, err)
	}
}
