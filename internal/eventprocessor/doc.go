// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package eventprocessor carries basket change events between the code that
records baskets and the change watcher that decides when to re-mine rules.

Events travel over Watermill. Two transports are available:

  - memory: a gochannel Pub/Sub, used when NATS is disabled and in tests.
  - nats:   JetStream through watermill-nats, against an external server or
    an embedded one started by NewEmbeddedServer.

The topic doubles as the JetStream stream name, so it may not contain dots
or wildcards. EnsureStream creates the stream with the configured retention
before the subscriber binds to it.

Publishing goes through ChangePublisher, which encodes events with go-json,
sets the Nats-Msg-Id header for JetStream de-duplication and wraps every
publish in a gobreaker circuit breaker.
*/
package eventprocessor
