// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package main is the entry point for the Cartsage server.

Cartsage mines recorded shopping baskets for association rules and, for a
given cart, picks the applicable rule most likely to convert using Thompson
Sampling over accept/reject feedback.

# Application Architecture

Long-running work runs under a Suture v4 supervision tree:

	RootSupervisor ("cartsage")
	├── DataSupervisor ("data-layer")
	│   └── Rules service (startup and periodic regeneration)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── Basket watcher (change events -> session-change re-mine)
	│   └── WebSocket hub (rules_updated / stats_updated pushes)
	└── APISupervisor ("api-layer")
	    └── HTTP server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, optional YAML file and environment
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB holding baskets and, by default, rule statistics
 4. Engine: rule file store, Apriori miner, Thompson sampler, breaker-wrapped source
 5. Transport: in-process channel or NATS JetStream for basket change events
 6. API: chi router with request ID, metrics, CORS and rate limiting
 7. Supervisor tree

# Configuration

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	HTTP_PORT=8000               # HTTP listener port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	DUCKDB_PATH=/data/cartsage.duckdb
	OUTPUT_DIR=/data/rules       # directory of the rule file

	# Mining thresholds
	MIN_SUPPORT=0.001
	MIN_CONFIDENCE=0.2
	MIN_LIFT=1.0
	MIN_LENGTH=2

	# Rule statistics backend: duckdb, badger or memory
	STATS_BACKEND=duckdb

	# Change events over JetStream instead of an in-process channel
	NATS_ENABLED=true
	NATS_URL=nats://127.0.0.1:4222
	NATS_EMBEDDED=false

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains in-flight
requests for up to 10s, the watcher releases its subscription, and the
transport, stats store and database are closed in that order.
*/
package main
