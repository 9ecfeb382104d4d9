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

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/cartsage/internal/config"
)

// Transport names.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Transport bundles a publisher and subscriber sharing one medium.
type Transport struct {
	Name       string
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Close shuts down the subscriber, the publisher and any embedded server,
// in that order.
func (t *Transport) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewMemoryTransport returns an in-process gochannel transport. Messages
// published while nobody is subscribed are dropped.
func NewMemoryTransport(logger watermill.LoggerAdapter) *Transport {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
	return &Transport{
		Name:       TransportMemory,
		Publisher:  ps,
		Subscriber: ps,
		closers:    []func() error{ps.Close},
	}
}

// NewNATSTransport connects to JetStream, starting an embedded server when
// configured, and makes sure the stream for topic exists.
func NewNATSTransport(ctx context.Context, cfg *config.NATSConfig, topic string, logger watermill.LoggerAdapter) (*Transport, error) {
	t := &Transport{Name: TransportNATS}

	url := cfg.URL
	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		url = srv.ClientURL()
		t.closers = append(t.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("Embedded NATS server started", watermill.LogFields{"url": url})
	}

	if err := EnsureStream(ctx, url, topic, time.Duration(cfg.StreamRetentionDays)*24*time.Hour); err != nil {
		_ = t.Close() //nolint:errcheck // already failing
		return nil, err
	}

	natsOpts := connectionOptions(cfg, logger)

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		_ = t.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(topic),
				natsgo.DeliverNew(),
				natsgo.AckExplicit(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		_ = pub.Close() //nolint:errcheck // already failing
		_ = t.Close()   //nolint:errcheck // already failing
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	t.Publisher = pub
	t.Subscriber = sub
	// Subscriber first so in-flight acks reach the server before it stops.
	t.closers = append([]func() error{sub.Close, pub.Close}, t.closers...)
	return t, nil
}

func connectionOptions(cfg *config.NATSConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("cartsage"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// EnsureStream creates or updates the stream named after topic.
func EnsureStream(ctx context.Context, url, topic string, maxAge time.Duration) error {
	nc, err := natsgo.Connect(url, natsgo.Name("cartsage-provisioner"))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       topic,
		Subjects:   []string{topic},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     maxAge,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", topic, err)
	}
	return nil
}

// NewTransport picks the transport named by the configuration.
func NewTransport(ctx context.Context, cfg *config.Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if !cfg.NATS.Enabled {
		return NewMemoryTransport(logger), nil
	}
	return NewNATSTransport(ctx, &cfg.NATS, cfg.Watcher.Topic, logger)
}
