// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package logging provides the process-wide zerolog logger for Cartsage.
//
// Every component logs through this package so that output format, level and
// field names stay consistent between the HTTP layer, the change watcher and
// the mining engine.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Int("rules", n).Msg("rules regenerated")
//	logging.Ctx(ctx).Warn().Err(err).Msg("feedback rejected")
//
// # Bridges
//
// Two libraries used by Cartsage expect their own logger interfaces:
//
//   - suture (via sutureslog) takes a *slog.Logger; use NewSlogLogger.
//   - watermill takes a watermill.LoggerAdapter; use NewWatermillLogger.
//
// Both forward into the global zerolog logger so that supervisor restarts
// and pub/sub lifecycle messages share the same output stream.
//
// # Configuration
//
// The logging section of the Cartsage configuration (LOG_LEVEL, LOG_FORMAT,
// LOG_CALLER) is applied by calling Init from main.
//
// Always terminate a chain with Msg or Send; an unterminated event is dropped.
package logging
