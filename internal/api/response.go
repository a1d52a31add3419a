// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/validation"
)

// APIResponse is the envelope for all JSON responses.
type APIResponse struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(&APIResponse{
		Status:    "ok",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(&APIResponse{
		Status:    "error",
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON error response")
	}
}

func respondFieldErrors(w http.ResponseWriter, verr *validation.RequestError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	err := json.NewEncoder(w).Encode(&APIResponse{
		Status: "error",
		Error: &APIError{
			Code:    "VALIDATION_ERROR",
			Message: verr.Error(),
			Details: verr.Fields(),
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON error response")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
