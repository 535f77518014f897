// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// GateOutcome describes why the gate did or did not serve a precomputed
// list.
type GateOutcome string

const (
	GateServed         GateOutcome = "served"
	GateBelowThreshold GateOutcome = "below_threshold"
	GateMiss           GateOutcome = "miss"
	GateBreakerOpen    GateOutcome = "breaker_open"
)

// gateResult carries a model-store read through the circuit breaker.
type gateResult struct {
	entries []Entry
	found   bool
}

// ModelGate decides per request whether the precomputed external model's
// output should be served instead of live content scoring. The model is
// always optional: any miss, corruption, or open breaker falls through to
// the scorer, never to an error. Store reads are wrapped in a circuit
// breaker so a persistently failing store stops being probed on the hot
// path.
type ModelGate struct {
	store     ModelStore
	threshold int
	breaker   *gobreaker.CircuitBreaker[gateResult]
	logger    zerolog.Logger
}

// NewModelGate creates a gate over the given precomputed-model store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewModelGate(store ModelStore, threshold int, logger zerolog.Logger) *ModelGate {
	gateLogger := logger.With().Str("component", "model_gate").Logger()

	settings := gobreaker.Settings{
		Name:     "recmodel-store",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gateLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("model store breaker state change")
		},
	}

	return &ModelGate{
		store:     store,
		threshold: threshold,
		breaker:   gobreaker.NewCircuitBreaker[gateResult](settings),
		logger:    gateLogger,
	}
}

// Check consults the precomputed model when the user's interaction count
// meets the threshold. Returns the precomputed entries when available, plus
// the outcome for provenance tagging.
func (g *ModelGate) Check(ctx context.Context, userID string, interactionCount int) ([]Entry, GateOutcome) {
	if g.store == nil || interactionCount < g.threshold {
		return nil, GateBelowThreshold
	}

	result, err := g.breaker.Execute(func() (gateResult, error) {
		entries, found, err := g.store.UserRecommendations(ctx, userID)
		if err != nil {
			return gateResult{}, err
		}
		return gateResult{entries: entries, found: found}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Debug().Str("user_id", userID).Msg("model store breaker open, falling through")
			return nil, GateBreakerOpen
		}
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("precomputed model read failed, falling through")
		return nil, GateMiss
	}

	if !result.found || len(result.entries) == 0 {
		return nil, GateMiss
	}
	return result.entries, GateServed
}
