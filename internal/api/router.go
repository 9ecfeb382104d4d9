// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cartsage/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware middleware.Config

	// WebSocket serves /api/v1/ws when set.
	WebSocket http.Handler
}

// NewRouter builds the HTTP handler tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Middleware))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, &APIError{Code: CodeNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, &APIError{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})

	// One limiter instance shared by every limited group.
	rateLimit := middleware.RateLimit(cfg.Middleware, func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusTooManyRequests, &APIError{Code: CodeRateLimited, Message: "too many requests"})
	})
	maxBody := middleware.MaxBody(cfg.Middleware.MaxBodyBytes)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Probes and the websocket are exempt from rate limiting.
		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
		if cfg.WebSocket != nil {
			r.Handle("/ws", cfg.WebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(rateLimit, maxBody)
			r.Get("/rules", h.GetRules)
			r.Post("/rules/regenerate", h.RegenerateRules)
			r.Get("/rules/{id}/stats", h.GetRuleStats)
			r.Post("/recommendations", h.Recommend)
			r.Post("/feedback", h.Feedback)
			r.Post("/baskets", h.RecordBasket)
			r.Get("/baskets/{id}", h.GetBasket)
		})
	})

	// Routes of the original single-page frontend.
	r.Group(func(r chi.Router) {
		r.Use(rateLimit, maxBody)
		r.Get("/api/rules", h.GetRules)
		r.Post("/api/update-rules", h.RegenerateRules)
	})

	return r
}
