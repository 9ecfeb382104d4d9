// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cartsage/internal/eventprocessor"
	"github.com/tomtom215/cartsage/internal/recommend"
)

// Engine is the subset of *recommend.Engine the handlers use.
type Engine interface {
	Rules() (recommend.RuleSet, error)
	Recommend(ctx context.Context, cart recommend.CartContext) (*recommend.Recommendation, error)
	RecordFeedback(ctx context.Context, ruleID string, success bool) (recommend.RuleStats, error)
	RuleStats(ctx context.Context, ruleID string) (recommend.RuleStats, error)
	RegenerateWithCeiling(ctx context.Context, trigger recommend.TriggerReason) (*recommend.RegenerationResult, error)
	RegenerateAsync(trigger recommend.TriggerReason) bool
	Status() recommend.Status
}

// BasketStore records and reads baskets. Satisfied by *database.DB.
type BasketStore interface {
	UpsertBasket(ctx context.Context, b *recommend.Basket) (recommend.ChangeOp, error)
	GetBasket(ctx context.Context, basketID string) (recommend.Basket, bool, error)
	Ping(ctx context.Context) error
}

// ChangePublisher emits basket change events.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event eventprocessor.ChangeEvent) error
}

// StatsBroadcaster is notified after feedback updates a rule's counters.
type StatsBroadcaster interface {
	BroadcastStatsUpdated(stats recommend.RuleStats)
}

// Handler serves the query API.
type Handler struct {
	engine      Engine
	baskets     BasketStore
	publisher   ChangePublisher
	broadcaster StatsBroadcaster
	version     string
	startTime   time.Time
}

// Dependencies are the collaborators of a Handler. Publisher and Broadcaster
// are optional.
type Dependencies struct {
	Engine      Engine
	Baskets     BasketStore
	Publisher   ChangePublisher
	Broadcaster StatsBroadcaster
	Version     string
}

// NewHandler creates a handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if deps.Baskets == nil {
		return nil, errors.New("basket store is required")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{
		engine:      deps.Engine,
		baskets:     deps.Baskets,
		publisher:   deps.Publisher,
		broadcaster: deps.Broadcaster,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}
