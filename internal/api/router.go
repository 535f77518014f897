// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoprec/shoprec/internal/models"
)

// NewRouter assembles the HTTP surface.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order.
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		MaxAge:         300,
	}))

	// Health endpoints stay outside the rate limiter so monitors are never
	// throttled.
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.cfg.Server.RateLimitReqs > 0 {
			window := h.cfg.Server.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.LimitByIP(h.cfg.Server.RateLimitReqs, window))
		}
		r.Use(Metrics)

		r.Get("/recommendations", h.GetRecommendations)
		r.Post("/interactions", h.RecordInteraction)

		// Admin job controls.
		r.Route("/model", func(r chi.Router) {
			r.Use(AdminAuth(h.cfg.Security.AdminJWTSecret, h.cfg.Security.AdminRole))

			r.Post("/retrain", h.StartRetrain)
			r.Get("/retrain/status", h.GetJobStatus)
			r.Post("/run", h.StartInferRun)
			r.Get("/counters", h.GetCounters)
			r.Post("/counters/reset", h.ResetCounters)
			r.Post("/clean", h.CleanStaleEntries)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "Route not found", nil)
	})

	return r
}
