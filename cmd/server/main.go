// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/cartsage/internal/api"
	"github.com/tomtom215/cartsage/internal/config"
	"github.com/tomtom215/cartsage/internal/database"
	"github.com/tomtom215/cartsage/internal/eventprocessor"
	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/middleware"
	"github.com/tomtom215/cartsage/internal/supervisor"
	"github.com/tomtom215/cartsage/internal/supervisor/services"
	ws "github.com/tomtom215/cartsage/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("rules_dir", cfg.Rules.OutputDir).
		Str("stats_backend", cfg.Stats.Backend).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting Cartsage with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	rc, err := initRecommend(cfg, db, logging.WithComponent("recommend"))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize recommendation engine")
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stats store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Change events: JetStream when enabled, otherwise an in-process channel.
	transport, err := eventprocessor.NewTransport(ctx, cfg, logging.NewWatermillLogger())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize change-event transport")
		return
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing change-event transport")
		}
	}()
	logging.Info().Str("transport", transport.Name).Msg("Change-event transport ready")

	breakerCfg := eventprocessor.DefaultCircuitBreakerConfig("basket-change-publisher")
	if cfg.NATS.PublishFailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.NATS.PublishFailureThreshold
	}
	publisher := eventprocessor.NewChangePublisher(transport.Publisher, cfg.Watcher.Topic,
		eventprocessor.NewCircuitBreaker(breakerCfg))

	// Rule replacements are pushed to websocket clients.
	wsHub := ws.NewHub()
	rc.Engine.OnRulesReplaced(wsHub.BroadcastRulesUpdated)

	handler, err := api.NewHandler(api.Dependencies{
		Engine:      rc.Engine,
		Baskets:     db,
		Publisher:   publisher,
		Broadcaster: wsHub,
		Version:     version,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create API handler")
		return
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	router := api.NewRouter(handler, api.RouterConfig{
		Middleware: middleware.Config{
			CORSOrigins:       cfg.Security.CORSOrigins,
			RateLimitRequests: cfg.Security.RateLimitReqs,
			RateLimitWindow:   cfg.Security.RateLimitWindow,
			RateLimitDisabled: cfg.Security.RateLimitDisabled,
			MaxBodyBytes:      cfg.Security.MaxBodyBytes,
		},
		WebSocket: ws.NewHandler(wsHub, cfg.Security.CORSOrigins),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Awaited regenerations hold the response for up to the ceiling.
		WriteTimeout: cfg.Server.Timeout + cfg.Rules.RegenerateTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Data layer: startup and periodic regeneration
	tree.AddDataService(services.NewRulesService(rc.Engine, services.RulesServiceConfig{
		RegenerateOnStartup: cfg.Rules.RegenerateOnStartup,
		Interval:            cfg.Rules.RegenerateInterval,
	}, logging.WithComponent("rules-service")))

	// Messaging layer: change watcher and websocket hub
	if cfg.Watcher.Enabled {
		tree.AddMessagingService(services.NewBasketWatcherService(
			transport.Subscriber,
			rc.Source,
			rc.Engine,
			services.BasketWatcherConfig{
				Topic:              cfg.Watcher.Topic,
				ResubscribeBackoff: cfg.Watcher.ResubscribeBackoff,
				LookupTimeout:      cfg.Watcher.LookupTimeout,
				DedupWindow:        cfg.Watcher.DedupWindow,
			},
			logging.WithComponent("watcher"),
		))
		logging.Info().Str("topic", cfg.Watcher.Topic).Msg("Basket watcher added to supervisor tree")
	} else {
		logging.Warn().Msg("Basket watcher disabled (WATCHER_ENABLED=false); rules change only on request or schedule")
	}
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second, logging.WithComponent("http")))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err := db.Checkpoint(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}
