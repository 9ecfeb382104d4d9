// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cartsage/internal/recommend"
	"github.com/tomtom215/cartsage/internal/validation"
)

// RulesResponse is the body of GET /api/v1/rules.
type RulesResponse struct {
	Rules []RuleView `json:"rules"`
	Count int        `json:"count"`
}

// RuleView is a rule with its identity.
type RuleView struct {
	ID string `json:"id"`
	recommend.Rule
}

func newRuleViews(rules recommend.RuleSet) []RuleView {
	views := make([]RuleView, len(rules))
	for i, r := range rules {
		views[i] = RuleView{ID: r.ID(), Rule: r}
	}
	return views
}

// GetRules handles GET /api/v1/rules.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rules, err := h.engine.Rules()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, RulesResponse{Rules: newRuleViews(rules), Count: len(rules)}, start)
}

// RegenerateResponse is the body of POST /api/v1/rules/regenerate.
type RegenerateResponse struct {
	Started       bool                          `json:"started"`
	Completed     bool                          `json:"completed"`
	AlreadyActive bool                          `json:"already_active,omitempty"`
	Result        *recommend.RegenerationResult `json:"result,omitempty"`
}

// RegenerateRules handles POST /api/v1/rules/regenerate. With async=true it
// returns 202 at once; otherwise it waits up to the configured ceiling.
func (h *Handler) RegenerateRules(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, &APIError{Code: validation.ErrorCode, Message: "async must be a boolean"})
			return
		}
		async = parsed
	}

	if async {
		running := h.engine.RegenerateAsync(recommend.TriggerRequest)
		respondSuccess(w, r, http.StatusAccepted, RegenerateResponse{Started: true, AlreadyActive: running}, start)
		return
	}

	result, err := h.engine.RegenerateWithCeiling(r.Context(), recommend.TriggerRequest)
	switch {
	case errors.Is(err, recommend.ErrUpdateInProgress):
		// The pass keeps running; this is not a failure.
		respondJSON(w, r, http.StatusAccepted, &APIResponse{
			Status: "success",
			Data:   RegenerateResponse{Started: true},
			Error:  &APIError{Code: CodeUpdateInProgress, Message: "rule update is still in progress"},
		})
	case err != nil:
		respondDomainError(w, r, err)
	default:
		respondSuccess(w, r, http.StatusOK, RegenerateResponse{Started: true, Completed: true, Result: result}, start)
	}
}

// GetRuleStats handles GET /api/v1/rules/{id}/stats.
func (h *Handler) GetRuleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	// chi returns the raw segment when the request used a non-default escaping.
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	if !validation.ValidRuleID(id) {
		respondError(w, r, http.StatusBadRequest, &APIError{
			Code:    validation.ErrorCode,
			Message: "id must be a rule id of the form 'a,b=>c'",
		})
		return
	}

	stats, err := h.engine.RuleStats(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, RuleStatsView{RuleStats: stats, PosteriorMean: stats.PosteriorMean()}, start)
}

// RuleStatsView adds the posterior mean to the raw counters.
type RuleStatsView struct {
	recommend.RuleStats
	PosteriorMean float64 `json:"posterior_mean"`
}
