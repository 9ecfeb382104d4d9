// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cartsage/internal/eventprocessor"
	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/metrics"
	"github.com/tomtom215/cartsage/internal/recommend"
)

// Watcher decisions, used as metric labels and log fields.
const (
	decisionInvalid            = "invalid"
	decisionDuplicate          = "duplicate"
	decisionLookupFailed       = "lookup_failed"
	decisionNoSession          = "no_session"
	decisionSkipped            = "skipped"
	decisionRegenerated        = "regenerated"
	decisionRegenerationFailed = "regeneration_failed"
)

// errSubscriptionClosed is returned when the message channel closes while the
// watcher is still running.
var errSubscriptionClosed = errors.New("subscription closed")

// Regenerator runs a mining pass. Satisfied by *recommend.Engine.
type Regenerator interface {
	Regenerate(ctx context.Context, trigger recommend.TriggerReason) (*recommend.RegenerationResult, error)
}

// SessionResolver maps a basket to its session. Satisfied by *database.DB.
type SessionResolver interface {
	SessionOf(ctx context.Context, basketID string) (string, bool, error)
}

// BasketWatcherConfig configures the watcher.
type BasketWatcherConfig struct {
	// Topic carries basket change events.
	Topic string

	// ResubscribeBackoff is the fixed wait between a dropped subscription and
	// the next attempt.
	ResubscribeBackoff time.Duration

	// LookupTimeout bounds each session lookup.
	LookupTimeout time.Duration

	// DedupSize and DedupWindow bound the set of recently seen event IDs.
	// JetStream redelivers unacknowledged messages after a reconnect.
	DedupSize   int
	DedupWindow time.Duration
}

// BasketWatcherService turns basket change events into re-mine decisions.
//
// It re-mines on the first change observed after start and then whenever the
// changed basket belongs to a different session than the previous change.
// A dropped subscription is retried after ResubscribeBackoff for as long as
// the context lives; only context cancellation ends Serve.
type BasketWatcherService struct {
	subscriber message.Subscriber
	resolver   SessionResolver
	engine     Regenerator
	trigger    *recommend.SessionTrigger
	seen       *lru.Cache[string, time.Time]
	config     BasketWatcherConfig
	logger     zerolog.Logger
	name       string
}

// NewBasketWatcherService creates the watcher.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBasketWatcherService(sub message.Subscriber, resolver SessionResolver, engine Regenerator, cfg BasketWatcherConfig, logger zerolog.Logger) *BasketWatcherService {
	if cfg.Topic == "" {
		cfg.Topic = eventprocessor.DefaultTopic
	}
	if cfg.ResubscribeBackoff <= 0 {
		cfg.ResubscribeBackoff = 5 * time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 2048
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Minute
	}
	// lru.New only fails for a non-positive size.
	seen, _ := lru.New[string, time.Time](cfg.DedupSize)
	return &BasketWatcherService{
		subscriber: sub,
		resolver:   resolver,
		engine:     engine,
		trigger:    recommend.NewSessionTrigger(),
		seen:       seen,
		config:     cfg,
		logger:     logger.With().Str("service", "basket-watcher").Str("topic", cfg.Topic).Logger(),
		name:       "basket-watcher",
	}
}

// Serve implements suture.Service.
func (s *BasketWatcherService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("backoff", s.config.ResubscribeBackoff).Msg("basket watcher starting")

	for {
		err := s.watch(ctx)
		if ctx.Err() != nil {
			s.logger.Info().Msg("basket watcher shutting down")
			return ctx.Err()
		}

		metrics.WatcherResubscribes.Inc()
		s.logger.Warn().Err(err).
			Dur("retry_in", s.config.ResubscribeBackoff).
			Msg("basket subscription dropped")

		timer := time.NewTimer(s.config.ResubscribeBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("basket watcher shutting down")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// watch holds one subscription until it drops or ctx ends. The subscription
// context is cancelled on return, which releases it in watermill.
func (s *BasketWatcherService) watch(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := s.subscriber.Subscribe(subCtx, s.config.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.config.Topic, err)
	}
	s.logger.Debug().Msg("subscribed to basket changes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errSubscriptionClosed
			}
			s.handle(subCtx, msg)
		}
	}
}

// handle acks every message. Failures are logged and absorbed so that one
// bad event can never stall the stream.
func (s *BasketWatcherService) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	event, err := eventprocessor.DecodeChangeEvent(msg.Payload)
	if err != nil {
		metrics.RecordWatcherEvent(decisionInvalid)
		s.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping invalid change event")
		return
	}

	if s.isDuplicate(event.EventID) {
		metrics.RecordWatcherEvent(decisionDuplicate)
		s.logger.Debug().Str("event_id", event.EventID).Msg("duplicate change event, ignoring")
		return
	}

	ctx = logging.ContextWithEventID(ctx, event.EventID)
	logger := s.logger.With().
		Str("event_id", event.EventID).
		Str("basket_id", event.BasketID).
		Str("op", string(event.Op)).
		Logger()

	lookupCtx, cancel := context.WithTimeout(ctx, s.config.LookupTimeout)
	session, found, err := s.resolver.SessionOf(lookupCtx, event.BasketID)
	cancel()
	if err != nil {
		metrics.RecordWatcherEvent(decisionLookupFailed)
		logger.Warn().Err(err).Msg("session lookup failed")
		return
	}
	if !found {
		metrics.RecordWatcherEvent(decisionNoSession)
		logger.Debug().Msg("basket has no session, ignoring")
		return
	}

	reason := s.trigger.Observe(session)
	if reason == recommend.TriggerNone {
		metrics.RecordWatcherEvent(decisionSkipped)
		logger.Debug().Str("session_id", session).Msg("same session, skipping re-mine")
		return
	}

	result, err := s.engine.Regenerate(ctx, reason)
	if err != nil {
		metrics.RecordWatcherEvent(decisionRegenerationFailed)
		logger.Error().Err(err).Str("trigger", string(reason)).Msg("re-mine failed")
		return
	}

	metrics.RecordWatcherEvent(decisionRegenerated)
	logger.Info().
		Str("session_id", session).
		Str("trigger", string(reason)).
		Int("rules", result.Rules).
		Int("baskets", result.Baskets).
		Msg("rules regenerated")
}

func (s *BasketWatcherService) isDuplicate(eventID string) bool {
	if eventID == "" {
		return false
	}
	now := time.Now()
	if ts, ok := s.seen.Get(eventID); ok && now.Sub(ts) <= s.config.DedupWindow {
		return true
	}
	s.seen.Add(eventID, now)
	return false
}

// String implements fmt.Stringer for logging.
func (s *BasketWatcherService) String() string {
	return s.name
}
