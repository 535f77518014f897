// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/shoprec/shoprec/internal/events"
	"github.com/shoprec/shoprec/internal/models"
	"github.com/shoprec/shoprec/internal/recommend"
)

// interactionRequest is the body of POST /api/v1/interactions.
type interactionRequest struct {
	Kind    string                 `json:"kind" validate:"required,oneof=like review"`
	UserID  string                 `json:"user_id" validate:"required"`
	ItemID  string                 `json:"item_id" validate:"required"`
	Rating  float64                `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
	Aspects recommend.AspectVector `json:"aspects,omitempty"`
}

// RecordInteraction handles POST /api/v1/interactions: persists a like or
// review and publishes the event that drives counter bookkeeping and the
// auto-trigger.
func (h *Handlers) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "Invalid JSON body", err)
		return
	}
	if req.UserID == "" || req.ItemID == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "user_id and item_id are required", nil)
		return
	}

	ctx := r.Context()
	switch req.Kind {
	case events.KindLike:
		if err := h.interactions.RecordLike(ctx, req.UserID, req.ItemID); err != nil {
			respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to record like", err)
			return
		}
	case events.KindReview:
		if req.Rating < 0 || req.Rating > 5 {
			respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "rating must be between 0 and 5", nil)
			return
		}
		if err := h.interactions.RecordReview(ctx, req.UserID, req.ItemID, req.Rating, req.Aspects); err != nil {
			respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to record review", err)
			return
		}
	default:
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "kind must be like or review", nil)
		return
	}

	if err := h.bus.PublishInteraction(ctx, events.InteractionEvent{
		Kind:    req.Kind,
		UserID:  req.UserID,
		ItemID:  req.ItemID,
		Rating:  req.Rating,
		Aspects: req.Aspects,
	}); err != nil {
		// The signal is already persisted; a lost event only delays the
		// auto-trigger.
		h.logger.Warn().Err(err).Msg("publishing interaction event failed")
	}

	respondSuccess(w, http.StatusCreated, map[string]string{"message": "Interaction recorded"})
}
