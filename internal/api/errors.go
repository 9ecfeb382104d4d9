// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"net/http"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/recommend"
)

// Error codes.
const (
	CodeRulesNotReady      = "RULES_NOT_READY"
	CodeRulesCorrupt       = "RULES_CORRUPT"
	CodeUnknownRule        = "UNKNOWN_RULE"
	CodeInvalidCart        = "INVALID_CART_CONTEXT"
	CodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	CodeUpdateInProgress   = "UPDATE_IN_PROGRESS"
	CodeInternal           = "INTERNAL_ERROR"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeBodyTooLarge       = "BODY_TOO_LARGE"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

type kindMapping struct {
	status  int
	code    string
	message string
}

var kindMappings = map[recommend.ErrorKind]kindMapping{
	recommend.KindNotYetGenerated:    {http.StatusNotFound, CodeRulesNotReady, "rules have not been generated yet"},
	recommend.KindCorruptState:       {http.StatusInternalServerError, CodeRulesCorrupt, "stored rules are unreadable; regenerate them"},
	recommend.KindUnknownRule:        {http.StatusNotFound, CodeUnknownRule, "rule is not known"},
	recommend.KindInvalidCartContext: {http.StatusBadRequest, CodeInvalidCart, "cart is invalid"},
	recommend.KindSourceUnavailable:  {http.StatusServiceUnavailable, CodeSourceUnavailable, "basket source is unavailable"},
	recommend.KindUpdateInProgress:   {http.StatusAccepted, CodeUpdateInProgress, "rule update is still in progress"},
}

// respondDomainError maps err to its status and code. Caller errors echo
// their message; internal errors are logged and hidden.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := recommend.KindOf(err)
	m, ok := kindMappings[kind]
	if !ok {
		logging.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		respondError(w, r, http.StatusInternalServerError, &APIError{Code: CodeInternal, Message: "internal error"})
		return
	}

	apiErr := &APIError{Code: m.code, Message: m.message}
	switch kind {
	case recommend.KindUnknownRule, recommend.KindInvalidCartContext:
		apiErr.Message = sanitize(err.Error())
	case recommend.KindCorruptState, recommend.KindSourceUnavailable:
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", kind.String()).Msg("request failed")
	}
	respondError(w, r, m.status, apiErr)
}
