// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/shoprec/shoprec/internal/jobs"
	"github.com/shoprec/shoprec/internal/models"
)

// StartRetrain handles POST /api/v1/model/retrain: launches a full model
// retrain and returns 202 immediately. A job already in flight yields 409.
func (h *Handlers) StartRetrain(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, jobs.ModeTrain)
}

// StartInferRun handles POST /api/v1/model/run: launches the lightweight
// infer-only recompute.
func (h *Handlers) StartInferRun(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, jobs.ModeInfer)
}

func (h *Handlers) startJob(w http.ResponseWriter, r *http.Request, mode jobs.Mode) {
	state, err := h.jobs.StartJob(r.Context(), mode)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		respondJSON(w, http.StatusConflict, &models.APIResponse{
			Status:   "error",
			Data:     state,
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error: &models.APIError{
				Code:    models.ErrCodeAlreadyRunning,
				Message: "A refresh job is already running",
			},
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to start job", err)
		return
	}
	respondSuccess(w, http.StatusAccepted, state)
}

// GetJobStatus handles GET /api/v1/model/retrain/status. The read itself
// self-heals orphaned running records.
func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.jobs.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to read job status", err)
		return
	}
	respondSuccess(w, http.StatusOK, state)
}

// GetCounters handles GET /api/v1/model/counters.
func (h *Handlers) GetCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.jobs.Counters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to read counters", err)
		return
	}
	respondSuccess(w, http.StatusOK, counters)
}

// ResetCounters handles POST /api/v1/model/counters/reset.
func (h *Handlers) ResetCounters(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.ResetCounters(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to reset counters", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"message": "Counters reset"})
}

// CleanStaleEntries handles POST /api/v1/model/clean: prunes precomputed
// lists for users no longer present in the user store.
func (h *Handlers) CleanStaleEntries(w http.ResponseWriter, r *http.Request) {
	removed, err := h.jobs.CleanStaleEntries(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to clean stale entries", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int{"removed": removed})
}
