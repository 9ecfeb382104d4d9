// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package testinfra runs external services in containers for integration
// tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # NATS Container
//
// NATSContainer starts a JetStream-enabled NATS server so the basket change
// transport can be exercised against a real broker, including the stream
// provisioning and durable consumer paths the in-process transport skips.
//
// Tests call SkipIfNoDocker first and are skipped in -short mode.
package testinfra
