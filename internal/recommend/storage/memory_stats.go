// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// MemoryStats is an in-process recommend.StatsStore.
type MemoryStats struct {
	mu    sync.Mutex
	stats map[string]recommend.RuleStats
}

// NewMemoryStats creates an empty store.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{stats: make(map[string]recommend.RuleStats)}
}

// GetStats implements recommend.StatsStore.
func (m *MemoryStats) GetStats(_ context.Context, ruleID string) (recommend.RuleStats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[ruleID]
	return s, ok, nil
}

// GetStatsBatch implements recommend.StatsStore.
func (m *MemoryStats) GetStatsBatch(_ context.Context, ruleIDs []string) (map[string]recommend.RuleStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]recommend.RuleStats, len(ruleIDs))
	for _, id := range ruleIDs {
		if s, ok := m.stats[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// EnsureStats implements recommend.StatsStore.
func (m *MemoryStats) EnsureStats(_ context.Context, ruleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ruleIDs {
		if _, ok := m.stats[id]; !ok {
			m.stats[id] = recommend.RuleStats{RuleID: id, UpdatedAt: now}
		}
	}
	return nil
}

// UpsertIncrement implements recommend.StatsStore.
func (m *MemoryStats) UpsertIncrement(_ context.Context, ruleID string, field recommend.StatField, createIfAbsent bool) (recommend.RuleStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[ruleID]
	if !ok {
		if !createIfAbsent {
			return recommend.RuleStats{}, fmt.Errorf("%w: %s", recommend.ErrUnknownRule, ruleID)
		}
		s = recommend.RuleStats{RuleID: ruleID}
	}
	s = applyIncrement(s, field)
	m.stats[ruleID] = s
	return s, nil
}

// Len returns the number of stored entries.
func (m *MemoryStats) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stats)
}

//nolint:gocritic // hugeParam: value semantics keep callers' copies untouched
func applyIncrement(s recommend.RuleStats, field recommend.StatField) recommend.RuleStats {
	switch field {
	case recommend.StatSuccesses:
		s.Successes++
	case recommend.StatFailures:
		s.Failures++
	}
	s.UpdatedAt = time.Now().UTC()
	return s
}
