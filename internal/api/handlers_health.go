// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status            string           `json:"status"`
	Version           string           `json:"version"`
	DatabaseConnected bool             `json:"database_connected"`
	RulesReady        bool             `json:"rules_ready"`
	RuleCount         int              `json:"rule_count"`
	Regeneration      recommend.Status `json:"regeneration"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
}

func (h *Handler) pingDatabase(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.baskets.Ping(ctx) == nil
}

// Health handles GET /api/v1/health. It always returns 200; status is
// "degraded" when the database is unreachable or the stored rules are corrupt.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	health := HealthStatus{
		Status:            "healthy",
		Version:           h.version,
		DatabaseConnected: h.pingDatabase(r.Context()),
		Regeneration:      h.engine.Status(),
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
	}

	rules, err := h.engine.Rules()
	switch {
	case err == nil:
		health.RulesReady = true
		health.RuleCount = len(rules)
	case errors.Is(err, recommend.ErrCorruptState):
		health.Status = "degraded"
	}
	if !health.DatabaseConnected {
		health.Status = "degraded"
	}

	respondSuccess(w, r, http.StatusOK, health, start)
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	}, time.Now())
}

// HealthReady handles GET /api/v1/health/ready. Ready means the database
// answers; rules not yet generated do not block readiness since the API
// reports that state itself.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !h.pingDatabase(r.Context()) {
		respondError(w, r, http.StatusServiceUnavailable, &APIError{Code: CodeServiceUnavailable, Message: "database is not reachable"})
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]bool{"ready": true}, start)
}
