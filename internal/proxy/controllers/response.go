// Package controllers holds the shared response plumbing of the admin
// HTTP boundary.
package controllers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/state"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Success bool   `json:"success"`
}

// WriteErrorResponse maps engine errors onto HTTP statuses and writes a
// JSON error body.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, state.ErrUnknownTransfer):
		status = http.StatusNotFound
	case errors.Is(err, state.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.Is(err, plan.ErrContextUnavailable), errors.Is(err, plan.ErrUnresolvedToken):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Message: err.Error(),
		Status:  status,
	})
}

// WriteJSON writes a 200 JSON response.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
