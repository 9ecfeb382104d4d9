// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/metrics"
)

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // allowed in half-open state
	Interval         time.Duration // reset interval for counts
	Timeout          time.Duration // time to stay open
	FailureThreshold uint32        // consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// NewCircuitBreaker creates a breaker that opens after FailureThreshold
// consecutive failures and logs state transitions.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// ChangePublisher publishes basket change events.
type ChangePublisher struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// NewChangePublisher wraps publisher. A nil breaker disables protection.
func NewChangePublisher(publisher message.Publisher, topic string, breaker *gobreaker.CircuitBreaker[struct{}]) *ChangePublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &ChangePublisher{publisher: publisher, topic: topic, breaker: breaker}
}

// Topic returns the topic events are published to.
func (p *ChangePublisher) Topic() string {
	return p.topic
}

// PublishChange encodes and publishes one event. The event ID doubles as the
// Watermill message UUID and the JetStream de-duplication ID.
func (p *ChangePublisher) PublishChange(ctx context.Context, event ChangeEvent) error {
	data, err := EncodeChangeEvent(&event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataOp, string(event.Op))
	msg.Metadata.Set(MetadataBasketID, event.BasketID)
	msg.Metadata.Set(natsgo.MsgIdHdr, event.EventID)

	publish := func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	}
	if p.breaker != nil {
		_, err = p.breaker.Execute(publish)
	} else {
		_, err = publish()
	}

	metrics.RecordEventPublished(err)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("publish %s event for basket %s: circuit open: %w", event.Op, event.BasketID, err)
		}
		return fmt.Errorf("publish %s event for basket %s: %w", event.Op, event.BasketID, err)
	}
	return nil
}
