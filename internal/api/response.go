// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/validation"
)

// APIResponse is the envelope of every response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes how the response was produced.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the machine-readable part of an error response.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp *APIResponse) {
	resp.Metadata.Timestamp = time.Now().UTC()
	resp.Metadata.RequestID = logging.RequestIDFromContext(r.Context())

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("failed to write response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}, start time.Time) {
	respondJSON(w, r, status, &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{QueryTimeMS: time.Since(start).Milliseconds()},
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	respondJSON(w, r, status, &APIResponse{Status: "error", Error: apiErr})
}

// decodeJSON reads a single JSON object from the body and validates it.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(w, r, http.StatusRequestEntityTooLarge, &APIError{
				Code:    CodeBodyTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
		case errors.Is(err, io.EOF):
			respondError(w, r, http.StatusBadRequest, &APIError{Code: CodeInvalidJSON, Message: "request body is empty"})
		default:
			respondError(w, r, http.StatusBadRequest, &APIError{Code: CodeInvalidJSON, Message: "request body is not valid JSON: " + sanitize(err.Error())})
		}
		return false
	}

	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, &APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		})
		return false
	}
	return true
}

// sanitize strips control characters from values echoed to clients or logs.
func sanitize(s string) string {
	const maxLen = 200
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
