// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shoprec/shoprec/internal/metrics"
	"github.com/shoprec/shoprec/internal/models"
	"github.com/shoprec/shoprec/internal/recommend"
)

// recommendTimeout bounds one recommendation computation.
const recommendTimeout = 10 * time.Second

// GetRecommendations handles GET /api/v1/recommendations.
// Query parameters: user_id (defaults to the demo placeholder) and top_n
// (defaults to the configured list size). Degraded outcomes are still HTTP
// 200 with an empty list and a message inside the payload.
func (h *Handlers) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := recommend.Request{
		UserID: r.URL.Query().Get("user_id"),
		TopN:   getIntParam(r, "top_n", 0),
	}

	ctx, cancel := context.WithTimeout(r.Context(), recommendTimeout)
	defer cancel()

	resp, err := h.engine.Recommend(ctx, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to generate recommendations", err)
		return
	}

	elapsed := time.Since(start)
	metrics.RecommendationRequests.WithLabelValues(modelLabel(resp.ModelUsed)).Inc()
	metrics.RecommendationDuration.Observe(elapsed.Seconds())

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: elapsed.Milliseconds(),
			RequestID:   w.Header().Get(requestIDHeader),
		},
	})
}

func modelLabel(modelUsed string) string {
	if modelUsed == "" {
		return "none"
	}
	return modelUsed
}
