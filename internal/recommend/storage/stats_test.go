// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// statsStores returns every StatsStore implementation in this package.
func statsStores(t *testing.T) map[string]recommend.StatsStore {
	t.Helper()

	bs, err := OpenBadgerStats(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadgerStats() error = %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]recommend.StatsStore{
		"memory": NewMemoryStats(),
		"badger": bs,
	}
}

func TestStatsStore_Contract(t *testing.T) {
	tests := []struct {
		name   string
		verify func(t *testing.T, ctx context.Context, s recommend.StatsStore)
	}{
		{
			name: "absent identity is reported as absent",
			verify: func(t *testing.T, ctx context.Context, s recommend.StatsStore) {
				_, ok, err := s.GetStats(ctx, "a=>b")
				if err != nil {
					t.Fatalf("GetStats() error = %v", err)
				}
				if ok {
					t.Error("GetStats() ok = true for absent identity")
				}
			},
		},
		{
			name: "increment without create on absent identity is unknown rule",
			verify: func(t *testing.T, ctx context.Context, s recommend.StatsStore) {
				_, err := s.UpsertIncrement(ctx, "a=>b", recommend.StatSuccesses, false)
				if !errors.Is(err, recommend.ErrUnknownRule) {
					t.Errorf("UpsertIncrement() error = %v, want ErrUnknownRule", err)
				}
				if _, ok, _ := s.GetStats(ctx, "a=>b"); ok {
					t.Error("failed increment created an entry")
				}
			},
		},
		{
			name: "increment with create on absent identity starts at one",
			verify: func(t *testing.T, ctx context.Context, s recommend.StatsStore) {
				got, err := s.UpsertIncrement(ctx, "a=>b", recommend.StatFailures, true)
				if err != nil {
					t.Fatalf("UpsertIncrement() error = %v", err)
				}
				if got.Successes != 0 || got.Failures != 1 {
					t.Errorf("stats = %+v, want 0 successes and 1 failure", got)
				}
			},
		},
		{
			name: "ensure creates zeroed entries and keeps existing counts",
			verify: func(t *testing.T, ctx context.Context, s recommend.StatsStore) {
				if _, err := s.UpsertIncrement(ctx, "a=>b", recommend.StatSuccesses, true); err != nil {
					t.Fatal(err)
				}
				if err := s.EnsureStats(ctx, []string{"a=>b", "b=>c"}); err != nil {
					t.Fatalf("EnsureStats() error = %v", err)
				}
				batch, err := s.GetStatsBatch(ctx, []string{"a=>b", "b=>c", "c=>d"})
				if err != nil {
					t.Fatalf("GetStatsBatch() error = %v", err)
				}
				if len(batch) != 2 {
					t.Fatalf("len(batch) = %d, want 2", len(batch))
				}
				if batch["a=>b"].Successes != 1 {
					t.Errorf("a=>b successes = %d, want 1", batch["a=>b"].Successes)
				}
				if got := batch["b=>c"]; got.Successes != 0 || got.Failures != 0 || got.RuleID != "b=>c" {
					t.Errorf("b=>c = %+v, want zeroed entry", got)
				}
				if batch["b=>c"].UpdatedAt.IsZero() {
					t.Error("zeroed entry has no updated_at")
				}
			},
		},
		{
			name: "concurrent increments are not lost",
			verify: func(t *testing.T, ctx context.Context, s recommend.StatsStore) {
				if err := s.EnsureStats(ctx, []string{"hot"}); err != nil {
					t.Fatal(err)
				}
				const workers, perWorker = 8, 25
				var wg sync.WaitGroup
				for w := 0; w < workers; w++ {
					wg.Add(1)
					go func(w int) {
						defer wg.Done()
						for i := 0; i < perWorker; i++ {
							field := recommend.FieldFor(w%2 == 0)
							if _, err := s.UpsertIncrement(ctx, "hot", field, false); err != nil {
								t.Errorf("UpsertIncrement() error = %v", err)
								return
							}
						}
					}(w)
				}
				wg.Wait()

				got, ok, err := s.GetStats(ctx, "hot")
				if err != nil || !ok {
					t.Fatalf("GetStats() = %v, %v", ok, err)
				}
				want := int64(workers / 2 * perWorker)
				if got.Successes != want || got.Failures != want {
					t.Errorf("stats = %+v, want %d successes and %d failures", got, want, want)
				}
			},
		},
	}

	for _, tt := range tests {
		for name, store := range statsStores(t) {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				tt.verify(t, context.Background(), store)
			})
		}
	}
}
