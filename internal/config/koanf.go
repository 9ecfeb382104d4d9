// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cartsage/config.yaml",
	"/etc/cartsage/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:                   "/data/cartsage.duckdb",
			MaxMemory:              "1GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Rules: RulesConfig{
			OutputDir:              "/data/rules",
			FileName:               "apriori_rules.json",
			MinSupport:             0.001,
			MinConfidence:          0.2,
			MinLift:                1.0,
			MinLength:              2,
			MaxLength:              0,
			RegenerateTimeout:      10 * time.Second,
			RegenerateOnStartup:    true,
			RegenerateInterval:     0,
			SourceFailureThreshold: 5,
			SourceBreakerTimeout:   30 * time.Second,
		},
		Bandit: BanditConfig{
			Seed:         0,
			StatsTimeout: 2 * time.Second,
		},
		Stats: StatsConfig{
			Backend:    StatsBackendDuckDB,
			BadgerPath: "/data/stats",
			SyncWrites: true,
		},
		Watcher: WatcherConfig{
			Enabled:            true,
			Topic:              "basket_changes",
			ResubscribeBackoff: 5 * time.Second,
			LookupTimeout:      5 * time.Second,
			DedupWindow:        10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:                 false,
			URL:                     "nats://127.0.0.1:4222",
			EmbeddedServer:          false,
			StoreDir:                "/data/nats/jetstream",
			MaxMemory:               256 << 20,
			MaxStore:                1 << 30,
			StreamRetentionDays:     7,
			DurableName:             "cartsage-watcher",
			MaxReconnects:           -1,
			ReconnectWait:           2 * time.Second,
			PublishFailureThreshold: 5,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			MaxBodyBytes:      1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads defaults, then the optional YAML file, then
// environment variables, and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists every environment variable Cartsage reads. Unlisted
// variables are ignored so the process environment cannot leak into config.
var envMappings = map[string]string{
	"http_host":      "server.host",
	"http_port":      "server.port",
	"server_timeout": "server.timeout",
	"environment":    "server.environment",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"output_dir":               "rules.output_dir",
	"rules_file":               "rules.file_name",
	"min_support":              "rules.min_support",
	"min_confidence":           "rules.min_confidence",
	"min_lift":                 "rules.min_lift",
	"min_length":               "rules.min_length",
	"max_length":               "rules.max_length",
	"regenerate_timeout":       "rules.regenerate_timeout",
	"regenerate_on_startup":    "rules.regenerate_on_startup",
	"regenerate_interval":      "rules.regenerate_interval",
	"source_failure_threshold": "rules.source_failure_threshold",
	"source_breaker_timeout":   "rules.source_breaker_timeout",

	"bandit_seed":          "bandit.seed",
	"bandit_stats_timeout": "bandit.stats_timeout",

	"stats_backend":     "stats.backend",
	"stats_badger_path": "stats.badger_path",
	"stats_sync_writes": "stats.sync_writes",

	"watcher_enabled":             "watcher.enabled",
	"watcher_topic":               "watcher.topic",
	"watcher_resubscribe_backoff": "watcher.resubscribe_backoff",
	"watcher_lookup_timeout":      "watcher.lookup_timeout",
	"watcher_dedup_window":        "watcher.dedup_window",

	"nats_enabled":           "nats.enabled",
	"nats_url":               "nats.url",
	"nats_embedded":          "nats.embedded_server",
	"nats_store_dir":         "nats.store_dir",
	"nats_max_memory":        "nats.max_memory",
	"nats_max_store":         "nats.max_store",
	"nats_retention_days":    "nats.stream_retention_days",
	"nats_durable_name":      "nats.durable_name",
	"nats_max_reconnects":    "nats.max_reconnects",
	"nats_reconnect_wait":    "nats.reconnect_wait",
	"nats_publish_threshold": "nats.publish_failure_threshold",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"max_body_bytes":      "security.max_body_bytes",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
//
//   - OUTPUT_DIR -> rules.output_dir
//   - MIN_SUPPORT -> rules.min_support
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
