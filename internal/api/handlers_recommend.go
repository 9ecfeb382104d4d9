// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/recommend"
)

// RecommendRequest is the body of POST /api/v1/recommendations. An empty,
// null or missing cart selects over every rule. Cart stays raw so that every
// malformed cart is reported as an invalid cart rather than invalid JSON.
type RecommendRequest struct {
	Cart json.RawMessage `json:"cart"`
}

// cartContext decodes and validates the cart field.
func (req *RecommendRequest) cartContext() (recommend.CartContext, error) {
	var items []string
	if len(req.Cart) > 0 {
		if err := json.Unmarshal(req.Cart, &items); err != nil {
			return recommend.CartContext{}, fmt.Errorf("%w: cart must be an array of item ids", recommend.ErrInvalidCartContext)
		}
	}
	return recommend.NewCartContext(items)
}

// RecommendResponse carries zero or one rule.
type RecommendResponse struct {
	Rule       *recommend.Rule `json:"rule"`
	RuleID     string          `json:"rule_id,omitempty"`
	Sample     float64         `json:"sample,omitempty"`
	Fallback   bool            `json:"fallback,omitempty"`
	Candidates int             `json:"candidates"`
	TotalRules int             `json:"total_rules"`
	Filtered   bool            `json:"filtered"`
}

// Recommend handles POST /api/v1/recommendations.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RecommendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := req.cartContext()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	rec, err := h.engine.Recommend(r.Context(), cart)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := RecommendResponse{
		Candidates: rec.Candidates,
		TotalRules: rec.TotalRules,
		Filtered:   rec.Filtered,
	}
	if sel := rec.Selection; sel != nil {
		rule := sel.Rule
		resp.Rule = &rule
		resp.RuleID = sel.RuleID
		resp.Sample = sel.Sample
		resp.Fallback = sel.Fallback
	}
	respondSuccess(w, r, http.StatusOK, resp, start)
}

// FeedbackRequest is the body of POST /api/v1/feedback. Success is a pointer
// so that a missing field is rejected instead of read as false.
type FeedbackRequest struct {
	RuleID  string `json:"rule_id" validate:"required,ruleid"`
	Success *bool  `json:"success" validate:"required"`
}

// Feedback handles POST /api/v1/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req FeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	stats, err := h.engine.RecordFeedback(r.Context(), req.RuleID, *req.Success)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastStatsUpdated(stats)
	}
	logging.Ctx(r.Context()).Debug().
		Str("rule_id", req.RuleID).
		Bool("success", *req.Success).
		Msg("feedback recorded")

	respondSuccess(w, r, http.StatusOK, RuleStatsView{RuleStats: stats, PosteriorMean: stats.PosteriorMean()}, start)
}
