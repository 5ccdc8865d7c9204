// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package api provides the HTTP surface of the recommendation service.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/placerank/placerank/internal/logging"
)

// APIResponse is the wrapper for every endpoint response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Error    *APIError   `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// APIError is a machine-readable error payload.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error codes for API responses.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationError  = "VALIDATION_ERROR"
	ErrCodeInvalidFilter    = "INVALID_FILTER"
	ErrCodeLocationNotFound = "LOCATION_NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *APIResponse) {
	response.Metadata.Timestamp = time.Now().UTC()
	if response.Metadata.RequestID == "" {
		response.Metadata.RequestID = logging.RequestIDFromContext(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", code).
			Str("request_id", logging.RequestIDFromContext(r.Context())).
			Err(err).
			Msg("API error")
	}

	respondJSON(w, r, status, &APIResponse{
		Status: "error",
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}
