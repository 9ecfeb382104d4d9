// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// RulesServiceConfig holds configuration for the rules service.
type RulesServiceConfig struct {
	// RegenerateOnStartup mines once when the service starts.
	RegenerateOnStartup bool

	// Interval enables periodic regeneration when positive.
	Interval time.Duration
}

// RulesService keeps the rule set fresh outside the change watcher: once at
// startup and, optionally, on a fixed schedule.
type RulesService struct {
	engine Regenerator
	config RulesServiceConfig
	logger zerolog.Logger
	name   string
}

// NewRulesService creates a new rules service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRulesService(engine Regenerator, cfg RulesServiceConfig, logger zerolog.Logger) *RulesService {
	return &RulesService{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("service", "rules").Logger(),
		name:   "rules-service",
	}
}

// Serve implements suture.Service. Regeneration failures are logged and
// never returned, so a broken basket source does not cause restart churn.
func (s *RulesService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("regenerate_on_startup", s.config.RegenerateOnStartup).
		Dur("interval", s.config.Interval).
		Msg("rules service starting")

	if s.config.RegenerateOnStartup {
		s.regenerate(ctx, recommend.TriggerStartup)
	}

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("rules service shutting down")
			return ctx.Err()
		case <-tick:
			s.regenerate(ctx, recommend.TriggerSchedule)
		}
	}
}

func (s *RulesService) regenerate(ctx context.Context, trigger recommend.TriggerReason) {
	result, err := s.engine.Regenerate(ctx, trigger)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("regeneration failed")
		return
	}
	s.logger.Info().
		Str("trigger", string(trigger)).
		Int("rules", result.Rules).
		Int64("duration_ms", result.DurationMS).
		Msg("rules regenerated")
}

// String returns the service name for logging.
func (s *RulesService) String() string {
	return s.name
}
