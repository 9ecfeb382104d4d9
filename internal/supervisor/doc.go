// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package supervisor runs Cartsage's long-lived services under a suture v4
supervision tree.

	root ("cartsage")
	├── data-layer
	│   └── rules-service        startup and periodic regeneration
	├── messaging-layer
	│   ├── basket-watcher       change events -> re-mine decisions
	│   └── websocket-hub        rules_updated notifications
	└── api-layer
	    └── http-server

A crashed service is restarted by its layer supervisor with backoff; a
failing watcher never takes the HTTP API down with it. Supervisor events are
logged through sutureslog, which receives an slog.Logger backed by zerolog
(logging.NewSlogLogger).
*/
package supervisor
