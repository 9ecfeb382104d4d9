// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/recommend"
)

func TestRulesService_String(t *testing.T) {
	svc := NewRulesService(&recordingRegenerator{}, RulesServiceConfig{}, zerolog.Nop())
	if got := svc.String(); got != "rules-service" {
		t.Errorf("String() = %q, want %q", got, "rules-service")
	}
}

func TestRulesService_Serve(t *testing.T) {
	tests := []struct {
		name   string
		config RulesServiceConfig
		err    error
		run    time.Duration
		verify func(t *testing.T, triggers []recommend.TriggerReason)
	}{
		{
			name:   "startup regeneration",
			config: RulesServiceConfig{RegenerateOnStartup: true},
			run:    50 * time.Millisecond,
			verify: func(t *testing.T, triggers []recommend.TriggerReason) {
				if len(triggers) != 1 || triggers[0] != recommend.TriggerStartup {
					t.Errorf("triggers = %v, want [startup]", triggers)
				}
			},
		},
		{
			name:   "idle without startup or interval",
			config: RulesServiceConfig{},
			run:    50 * time.Millisecond,
			verify: func(t *testing.T, triggers []recommend.TriggerReason) {
				if len(triggers) != 0 {
					t.Errorf("triggers = %v, want none", triggers)
				}
			},
		},
		{
			name:   "scheduled regeneration",
			config: RulesServiceConfig{Interval: 10 * time.Millisecond},
			run:    100 * time.Millisecond,
			verify: func(t *testing.T, triggers []recommend.TriggerReason) {
				if len(triggers) < 2 {
					t.Fatalf("triggers = %v, want at least 2 scheduled runs", triggers)
				}
				for _, tr := range triggers {
					if tr != recommend.TriggerSchedule {
						t.Errorf("unexpected trigger %q", tr)
					}
				}
			},
		},
		{
			name:   "failures are absorbed",
			config: RulesServiceConfig{RegenerateOnStartup: true, Interval: 10 * time.Millisecond},
			err:    recommend.ErrSourceUnavailable,
			run:    60 * time.Millisecond,
			verify: func(t *testing.T, triggers []recommend.TriggerReason) {
				if len(triggers) < 2 {
					t.Errorf("triggers = %v, want retries after failure", triggers)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regen := &recordingRegenerator{err: tt.err}
			svc := NewRulesService(regen, tt.config, zerolog.Nop())

			ctx, cancel := context.WithTimeout(context.Background(), tt.run)
			defer cancel()

			err := svc.Serve(ctx)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
			}
			tt.verify(t, regen.Triggers())
		})
	}
}
