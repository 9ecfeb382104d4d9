// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package config

import (
	"net"
	"strconv"
	"time"
)

// Stats backends.
const (
	StatsBackendDuckDB = "duckdb"
	StatsBackendBadger = "badger"
	StatsBackendMemory = "memory"
)

// Config is the complete Cartsage configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Rules    RulesConfig    `koanf:"rules"`
	Bandit   BanditConfig   `koanf:"bandit"`
	Stats    StatsConfig    `koanf:"stats"`
	Watcher  WatcherConfig  `koanf:"watcher"`
	NATS     NATSConfig     `koanf:"nats"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
	// Environment is development or production.
	Environment string `koanf:"environment"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// RulesConfig controls rule mining and the rule file.
type RulesConfig struct {
	// OutputDir holds the rule file.
	OutputDir string `koanf:"output_dir"`
	FileName  string `koanf:"file_name"`

	MinSupport    float64 `koanf:"min_support"`
	MinConfidence float64 `koanf:"min_confidence"`
	MinLift       float64 `koanf:"min_lift"`
	MinLength     int     `koanf:"min_length"`
	// MaxLength caps itemset size; 0 means unbounded.
	MaxLength int `koanf:"max_length"`

	// RegenerateTimeout is the ceiling a caller waits for a regeneration.
	RegenerateTimeout   time.Duration `koanf:"regenerate_timeout"`
	RegenerateOnStartup bool          `koanf:"regenerate_on_startup"`
	// RegenerateInterval enables periodic regeneration when positive.
	RegenerateInterval time.Duration `koanf:"regenerate_interval"`

	// SourceFailureThreshold opens the basket source breaker after this
	// many consecutive read failures.
	SourceFailureThreshold uint32        `koanf:"source_failure_threshold"`
	SourceBreakerTimeout   time.Duration `koanf:"source_breaker_timeout"`
}

// BanditConfig controls Thompson sampling.
type BanditConfig struct {
	// Seed fixes the sampler's random stream when non-zero.
	Seed         uint64        `koanf:"seed"`
	StatsTimeout time.Duration `koanf:"stats_timeout"`
}

// StatsConfig selects the per-rule statistics backend.
type StatsConfig struct {
	Backend    string `koanf:"backend"`
	BadgerPath string `koanf:"badger_path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// WatcherConfig controls the basket change watcher.
type WatcherConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Topic              string        `koanf:"topic"`
	ResubscribeBackoff time.Duration `koanf:"resubscribe_backoff"`
	LookupTimeout      time.Duration `koanf:"lookup_timeout"`
	DedupWindow        time.Duration `koanf:"dedup_window"`
}

// NATSConfig configures the JetStream change-event transport. When disabled
// change events travel over an in-process channel.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts a NATS server inside the process.
	EmbeddedServer      bool   `koanf:"embedded_server"`
	StoreDir            string `koanf:"store_dir"`
	MaxMemory           int64  `koanf:"max_memory"`
	MaxStore            int64  `koanf:"max_store"`
	StreamRetentionDays int    `koanf:"stream_retention_days"`

	DurableName   string        `koanf:"durable_name"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// PublishFailureThreshold opens the publish breaker.
	PublishFailureThreshold uint32 `koanf:"publish_failure_threshold"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
