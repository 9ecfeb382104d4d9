// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cartsage/internal/eventprocessor"
	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/recommend"
	"github.com/tomtom215/cartsage/internal/validation"
)

// BasketRequest is the body of POST /api/v1/baskets. A missing basket_id
// records a new basket.
type BasketRequest struct {
	BasketID  string   `json:"basket_id" validate:"omitempty,max=128"`
	SessionID string   `json:"session_id" validate:"required,max=256"`
	Items     []string `json:"items" validate:"required,min=1,max=512,dive,itemid"`
}

// BasketResponse reports the stored basket and whether its change event was
// published. A failed publish does not undo the write.
type BasketResponse struct {
	Basket    recommend.Basket   `json:"basket"`
	Op        recommend.ChangeOp `json:"op"`
	Published bool               `json:"published"`
}

// RecordBasket handles POST /api/v1/baskets.
func (h *Handler) RecordBasket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req BasketRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	basket := recommend.Basket{ID: req.BasketID, SessionID: req.SessionID, Items: req.Items}
	op, err := h.baskets.UpsertBasket(r.Context(), &basket)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to record basket")
		respondError(w, r, http.StatusServiceUnavailable, &APIError{Code: CodeSourceUnavailable, Message: "basket could not be recorded"})
		return
	}

	resp := BasketResponse{Basket: basket, Op: op}
	if h.publisher != nil {
		event := eventprocessor.NewChangeEvent(op, basket.ID)
		if err := h.publisher.PublishChange(r.Context(), event); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("basket_id", basket.ID).Msg("change event not published")
		} else {
			resp.Published = true
		}
	}

	status := http.StatusOK
	if op == recommend.ChangeCreated {
		status = http.StatusCreated
	}
	respondSuccess(w, r, status, resp, start)
}

// GetBasket handles GET /api/v1/baskets/{id}.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	if id == "" || len(id) > 128 {
		respondError(w, r, http.StatusBadRequest, &APIError{Code: validation.ErrorCode, Message: "invalid basket id"})
		return
	}

	basket, found, err := h.baskets.GetBasket(r.Context(), id)
	switch {
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to read basket")
		respondError(w, r, http.StatusServiceUnavailable, &APIError{Code: CodeSourceUnavailable, Message: "basket source is unavailable"})
	case !found:
		respondError(w, r, http.StatusNotFound, &APIError{Code: CodeNotFound, Message: "basket not found"})
	default:
		respondSuccess(w, r, http.StatusOK, basket, start)
	}
}
