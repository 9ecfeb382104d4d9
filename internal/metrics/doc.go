// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package metrics provides Prometheus metrics collection and export for observability.

# Overview

The package provides metrics for:
  - HTTP request latency and throughput
  - DuckDB query performance
  - Rule mining passes and rule set size
  - Recommendation selection outcomes and bandit fallbacks
  - Feedback events
  - Basket change watcher activity and resubscriptions
  - WebSocket connection counts

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8000/metrics

All collectors are registered on the default registry with promauto at package
init, so importing the package is enough to expose them.
*/
package metrics
