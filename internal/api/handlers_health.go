// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shoprec/shoprec/internal/models"
)

// HealthLive handles GET /healthz/live: process liveness only.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /healthz/ready: the data layer must answer.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, models.ErrCodeInternal, "Database unreachable", err)
			return
		}
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
