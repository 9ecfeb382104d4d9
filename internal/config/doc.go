// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package config loads and validates Cartsage configuration.

Configuration is layered with koanf. Later layers win:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, or config.yaml / config.yml in the
    working directory, or /etc/cartsage/config.yaml
 3. Environment variables, through an explicit name map (envTransformFunc)

# Sections

  - server:   HTTP listener (HTTP_HOST, HTTP_PORT, SERVER_TIMEOUT)
  - database: DuckDB file backing baskets and rule statistics (DUCKDB_PATH)
  - rules:    mining thresholds and rule file location (OUTPUT_DIR, MIN_SUPPORT,
    MIN_CONFIDENCE, MIN_LIFT, MIN_LENGTH, MAX_LENGTH, REGENERATE_TIMEOUT)
  - bandit:   Thompson sampling seed and stats lookup timeout
  - stats:    statistics backend, one of duckdb, badger or memory
  - watcher:  change-event subscription and resubscribe backoff
  - nats:     JetStream transport for change events, optionally embedded
  - security: CORS origins and per-IP rate limiting
  - logging:  LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Validate reports structural mistakes only. A configuration that passes
Validate can always start; runtime failures such as an unreachable broker are
handled by the components themselves.
*/
package config
