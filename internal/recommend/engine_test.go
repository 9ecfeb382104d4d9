// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/recommend"
	"github.com/tomtom215/cartsage/internal/recommend/bandit"
	"github.com/tomtom215/cartsage/internal/recommend/mining"
	"github.com/tomtom215/cartsage/internal/recommend/storage"
)

// mockSource implements recommend.BasketSource for testing.
type mockSource struct {
	mu        sync.Mutex
	baskets   []recommend.Basket
	listErr   error
	listCalls atomic.Int32
}

func (m *mockSource) ListBaskets(ctx context.Context) ([]recommend.Basket, error) {
	m.listCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]recommend.Basket(nil), m.baskets...), nil
}

func (m *mockSource) SessionOf(ctx context.Context, basketID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.baskets {
		if b.ID == basketID {
			return b.SessionID, b.SessionID != "", nil
		}
	}
	return "", false, nil
}

func (m *mockSource) set(baskets []recommend.Basket, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baskets = baskets
	m.listErr = err
}

// blockingMiner waits for release before delegating.
type blockingMiner struct {
	next    recommend.RuleMiner
	release chan struct{}
}

func (b *blockingMiner) Mine(ctx context.Context, baskets []recommend.Basket) (recommend.RuleSet, error) {
	<-b.release
	return b.next.Mine(ctx, baskets)
}

func exampleBaskets() []recommend.Basket {
	return []recommend.Basket{
		{ID: "1", SessionID: "s1", Items: []string{"a", "b"}},
		{ID: "2", SessionID: "s2", Items: []string{"a", "b"}},
		{ID: "3", SessionID: "s3", Items: []string{"a", "c"}},
	}
}

type fixture struct {
	engine *recommend.Engine
	source *mockSource
	store  *storage.RuleFile
	stats  *storage.MemoryStats
}

func newFixture(t *testing.T, miner recommend.RuleMiner) *fixture {
	t.Helper()

	store, err := storage.NewRuleFile(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewRuleFile() error = %v", err)
	}
	stats := storage.NewMemoryStats()
	source := &mockSource{baskets: exampleBaskets()}
	if miner == nil {
		miner = mining.NewApriori(recommend.DefaultMiningConfig())
	}

	cfg := recommend.DefaultConfig()
	cfg.RegenerateTimeout = 50 * time.Millisecond
	engine, err := recommend.NewEngine(cfg, recommend.Components{
		Source:   source,
		Store:    store,
		Stats:    stats,
		Miner:    miner,
		Selector: bandit.NewThompson(stats, bandit.Config{Seed: 7}, zerolog.Nop()),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return &fixture{engine: engine, source: source, store: store, stats: stats}
}

func TestNewEngine_Validation(t *testing.T) {
	stats := storage.NewMemoryStats()
	_, err := recommend.NewEngine(nil, recommend.Components{Stats: stats}, zerolog.Nop())
	if err == nil {
		t.Error("NewEngine() with missing components succeeded, want error")
	}

	cfg := recommend.DefaultConfig()
	cfg.Mining.MinSupport = 0
	_, err = recommend.NewEngine(cfg, recommend.Components{}, zerolog.Nop())
	if err == nil {
		t.Error("NewEngine() with invalid config succeeded, want error")
	}
}

func TestEngine_RulesBeforeGeneration(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.engine.Rules(); !errors.Is(err, recommend.ErrNotYetGenerated) {
		t.Errorf("Rules() error = %v, want ErrNotYetGenerated", err)
	}
	_, err := f.engine.Recommend(context.Background(), recommend.CartContext{})
	if !errors.Is(err, recommend.ErrNotYetGenerated) {
		t.Errorf("Recommend() error = %v, want ErrNotYetGenerated", err)
	}
}

func TestEngine_Regenerate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var notified atomic.Int32
	f.engine.OnRulesReplaced(func(r recommend.RegenerationResult) {
		notified.Add(1)
	})

	result, err := f.engine.Regenerate(ctx, recommend.TriggerRequest)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if result.Baskets != 3 || result.Rules != 4 {
		t.Errorf("result = %+v, want 3 baskets and 4 rules", result)
	}
	if notified.Load() != 1 {
		t.Errorf("listeners notified %d times, want 1", notified.Load())
	}

	rules, err := f.engine.Rules()
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if !rules.Contains("a=>b") {
		t.Errorf("rules %v missing a=>b", rules.IDs())
	}

	// Every mined rule has stats before it is ever offered.
	for _, id := range rules.IDs() {
		if _, ok, _ := f.stats.GetStats(ctx, id); !ok {
			t.Errorf("no stats for %s after regeneration", id)
		}
	}

	status := f.engine.Status()
	if status.Generations != 1 || status.LastResult == nil || status.InProgress {
		t.Errorf("Status() = %+v, want one finished generation", status)
	}
}

func TestEngine_RegenerateSourceUnavailableKeepsRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.Regenerate(ctx, recommend.TriggerStartup); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	f.source.set(nil, errors.New("connection refused"))
	_, err := f.engine.Regenerate(ctx, recommend.TriggerRequest)
	if !errors.Is(err, recommend.ErrSourceUnavailable) {
		t.Fatalf("Regenerate() error = %v, want ErrSourceUnavailable", err)
	}

	rules, err := f.engine.Rules()
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if len(rules) != 4 {
		t.Errorf("len(rules) = %d, want previous 4", len(rules))
	}
	if f.engine.Status().LastError == "" {
		t.Error("Status().LastError is empty after failed pass")
	}
}

func TestEngine_RegenerateEmptySourceWritesEmptySet(t *testing.T) {
	f := newFixture(t, nil)
	f.source.set(nil, nil)

	result, err := f.engine.Regenerate(context.Background(), recommend.TriggerRequest)
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if result.Rules != 0 {
		t.Errorf("Rules = %d, want 0", result.Rules)
	}

	rules, err := f.engine.Rules()
	if err != nil {
		t.Fatalf("Rules() error = %v, want empty set", err)
	}
	if len(rules) != 0 {
		t.Errorf("len(rules) = %d, want 0", len(rules))
	}
}

func TestEngine_RegenerateWithCeiling(t *testing.T) {
	miner := &blockingMiner{
		next:    mining.NewApriori(recommend.DefaultMiningConfig()),
		release: make(chan struct{}),
	}
	f := newFixture(t, miner)

	_, err := f.engine.RegenerateWithCeiling(context.Background(), recommend.TriggerRequest)
	if !errors.Is(err, recommend.ErrUpdateInProgress) {
		t.Fatalf("RegenerateWithCeiling() error = %v, want ErrUpdateInProgress", err)
	}
	if !f.engine.Status().InProgress {
		t.Error("pass stopped when the caller gave up")
	}

	// A second caller joins the running pass instead of starting another.
	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Regenerate(context.Background(), recommend.TriggerRequest)
		done <- err
	}()

	close(miner.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("joined Regenerate() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("joined Regenerate() did not return")
	}

	if calls := f.source.listCalls.Load(); calls != 1 {
		t.Errorf("ListBaskets called %d times, want 1", calls)
	}
	if _, err := f.engine.Rules(); err != nil {
		t.Errorf("Rules() after background pass error = %v", err)
	}
}

func TestEngine_RegenerateAsync(t *testing.T) {
	f := newFixture(t, nil)

	f.engine.RegenerateAsync(recommend.TriggerRequest)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := f.engine.Rules(); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("rules were not generated by the async pass")
}

func TestEngine_Recommend(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Regenerate(ctx, recommend.TriggerStartup); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	tests := []struct {
		name   string
		cart   []string
		verify func(t *testing.T, rec *recommend.Recommendation)
	}{
		{
			name: "empty cart selects among all rules",
			cart: nil,
			verify: func(t *testing.T, rec *recommend.Recommendation) {
				if rec.Selection == nil {
					t.Fatal("Selection = nil, want a rule")
				}
				if rec.Filtered || rec.Candidates != rec.TotalRules {
					t.Errorf("rec = %+v, want unfiltered", rec)
				}
			},
		},
		{
			name: "cart filters by antecedent",
			cart: []string{"c"},
			verify: func(t *testing.T, rec *recommend.Recommendation) {
				if rec.Selection == nil || rec.Selection.RuleID != "c=>a" {
					t.Fatalf("Selection = %+v, want c=>a", rec.Selection)
				}
				if rec.Candidates != 1 {
					t.Errorf("Candidates = %d, want 1", rec.Candidates)
				}
			},
		},
		{
			name: "unmatched cart yields no recommendation",
			cart: []string{"zzz"},
			verify: func(t *testing.T, rec *recommend.Recommendation) {
				if rec.Selection != nil {
					t.Errorf("Selection = %+v, want nil", rec.Selection)
				}
				if rec.TotalRules != 4 {
					t.Errorf("TotalRules = %d, want 4", rec.TotalRules)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart, err := recommend.NewCartContext(tt.cart)
			if err != nil {
				t.Fatal(err)
			}
			rec, err := f.engine.Recommend(ctx, cart)
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			tt.verify(t, rec)
		})
	}
}

func TestEngine_RecordFeedback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.RecordFeedback(ctx, "a=>b", true); !errors.Is(err, recommend.ErrUnknownRule) {
		t.Errorf("RecordFeedback() before any rule set error = %v, want ErrUnknownRule", err)
	}

	if _, err := f.engine.Regenerate(ctx, recommend.TriggerStartup); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	stats, err := f.engine.RecordFeedback(ctx, "a=>b", true)
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if stats.Successes != 1 {
		t.Errorf("Successes = %d, want 1", stats.Successes)
	}

	got, err := f.engine.RuleStats(ctx, "a=>b")
	if err != nil {
		t.Fatalf("RuleStats() error = %v", err)
	}
	if got.Successes != 1 || got.Failures != 0 {
		t.Errorf("RuleStats() = %+v, want 1 success", got)
	}

	if _, err := f.engine.RuleStats(ctx, "never=>seen"); !errors.Is(err, recommend.ErrUnknownRule) {
		t.Errorf("RuleStats() error = %v, want ErrUnknownRule", err)
	}
}
