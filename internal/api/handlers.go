// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package api

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/events"
	"github.com/shoprec/shoprec/internal/jobs"
	"github.com/shoprec/shoprec/internal/recommend"
)

// Recommender serves ranked recommendation lists. Implemented by the
// recommendation engine.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
}

// JobController exposes the orchestration operations to the admin surface.
// Implemented by the jobs manager.
type JobController interface {
	StartJob(ctx context.Context, mode jobs.Mode) (jobs.JobState, error)
	Status(ctx context.Context) (jobs.JobState, error)
	Counters(ctx context.Context) (jobs.Counters, error)
	ResetCounters(ctx context.Context) error
	CleanStaleEntries(ctx context.Context) (int, error)
}

// InteractionRecorder persists like and review signals. Implemented by the
// database layer.
type InteractionRecorder interface {
	RecordLike(ctx context.Context, userID, asin string) error
	RecordReview(ctx context.Context, userID, asin string, rating float64, aspects recommend.AspectVector) error
}

// Pinger reports data-layer liveness for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers bundles the HTTP handlers with their collaborators.
type Handlers struct {
	cfg          config.Config
	engine       Recommender
	jobs         JobController
	interactions InteractionRecorder
	bus          *events.Bus
	db           Pinger
	logger       zerolog.Logger
}

// NewHandlers creates the handler set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandlers(cfg config.Config, engine Recommender, jobCtrl JobController, rec InteractionRecorder, bus *events.Bus, db Pinger, logger zerolog.Logger) *Handlers {
	return &Handlers{
		cfg:          cfg,
		engine:       engine,
		jobs:         jobCtrl,
		interactions: rec,
		bus:          bus,
		db:           db,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}
