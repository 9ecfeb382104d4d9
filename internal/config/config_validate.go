// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateRules,
		c.validateStats,
		c.validateWatcher,
		c.validateNATS,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateRules() error {
	r := c.Rules
	if r.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if r.FileName == "" || strings.ContainsAny(r.FileName, `/\`) {
		return fmt.Errorf("RULES_FILE must be a plain file name, got %q", r.FileName)
	}
	if r.MinSupport <= 0 || r.MinSupport > 1 {
		return fmt.Errorf("MIN_SUPPORT must be in (0, 1], got %g", r.MinSupport)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0, 1], got %g", r.MinConfidence)
	}
	if r.MinLift < 0 {
		return fmt.Errorf("MIN_LIFT must not be negative, got %g", r.MinLift)
	}
	if r.MinLength < 1 {
		return fmt.Errorf("MIN_LENGTH must be at least 1, got %d", r.MinLength)
	}
	if r.MaxLength != 0 && r.MaxLength < r.MinLength {
		return fmt.Errorf("MAX_LENGTH must be 0 or at least MIN_LENGTH (%d), got %d", r.MinLength, r.MaxLength)
	}
	if r.RegenerateTimeout <= 0 {
		return fmt.Errorf("REGENERATE_TIMEOUT must be positive")
	}
	if r.RegenerateInterval < 0 {
		return fmt.Errorf("REGENERATE_INTERVAL must not be negative")
	}
	if r.SourceFailureThreshold == 0 {
		return fmt.Errorf("SOURCE_FAILURE_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateStats() error {
	switch c.Stats.Backend {
	case StatsBackendDuckDB, StatsBackendMemory:
		return nil
	case StatsBackendBadger:
		if c.Stats.BadgerPath == "" {
			return fmt.Errorf("STATS_BADGER_PATH is required for the badger backend")
		}
		return nil
	default:
		return fmt.Errorf("STATS_BACKEND must be one of: duckdb, badger, memory; got %q", c.Stats.Backend)
	}
}

func (c *Config) validateWatcher() error {
	if !c.Watcher.Enabled {
		return nil
	}
	if c.Watcher.Topic == "" {
		return fmt.Errorf("WATCHER_TOPIC is required when the watcher is enabled")
	}
	// JetStream stream names may not contain dots.
	if c.NATS.Enabled && strings.ContainsAny(c.Watcher.Topic, ". *>") {
		return fmt.Errorf("WATCHER_TOPIC %q is not a valid JetStream stream name", c.Watcher.Topic)
	}
	if c.Watcher.ResubscribeBackoff <= 0 {
		return fmt.Errorf("WATCHER_RESUBSCRIBE_BACKOFF must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required for the embedded server")
		}
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required unless NATS_EMBEDDED is set")
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	return nil
}

// validateNATSURL accepts nats, tls, ws and wss URLs with a host.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch parsedURL.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
