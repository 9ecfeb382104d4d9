// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding the basket source.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32

	// Timeout is how long the circuit stays open before a probe is let through.
	Timeout time.Duration

	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		Interval:         time.Minute,
	}
}

// BreakerSource wraps a BasketSource with a circuit breaker. Every failure,
// including a rejected call while the circuit is open, is reported as
// ErrSourceUnavailable.
type BreakerSource struct {
	next    BasketSource
	breaker *gobreaker.CircuitBreaker[[]Basket]
	lookups *gobreaker.CircuitBreaker[sessionLookup]
}

type sessionLookup struct {
	session string
	ok      bool
}

// NewBreakerSource wraps next.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBreakerSource(next BasketSource, cfg BreakerConfig, logger zerolog.Logger) *BreakerSource {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	log := logger.With().Str("component", "basket_source").Logger()

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:     name,
			Interval: cfg.Interval,
			Timeout:  cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("basket source circuit breaker state changed")
			},
		}
	}

	return &BreakerSource{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]Basket](settings("basket-list")),
		lookups: gobreaker.NewCircuitBreaker[sessionLookup](settings("basket-session")),
	}
}

// ListBaskets implements BasketSource.
func (s *BreakerSource) ListBaskets(ctx context.Context) ([]Basket, error) {
	baskets, err := s.breaker.Execute(func() ([]Basket, error) {
		return s.next.ListBaskets(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return baskets, nil
}

// SessionOf implements BasketSource.
func (s *BreakerSource) SessionOf(ctx context.Context, basketID string) (string, bool, error) {
	res, err := s.lookups.Execute(func() (sessionLookup, error) {
		session, ok, err := s.next.SessionOf(ctx, basketID)
		return sessionLookup{session: session, ok: ok}, err
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return res.session, res.ok, nil
}

// State returns the state of the list breaker for health reporting.
func (s *BreakerSource) State() string {
	return s.breaker.State().String()
}
