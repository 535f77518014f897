// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Cold-start strategy names, reported for provenance and metrics.
const (
	StrategyCohort           = "demographic_cohort"
	StrategyDemoFallback     = "demo_user_fallback"
	StrategyGlobalPopularity = "global_popularity"
)

// ColdStartResult is the outcome of one resolution.
type ColdStartResult struct {
	Entries  []Entry
	Strategy string
	// BorrowUserID is set when the chain decided to borrow the result of
	// the placeholder identity instead of producing entries itself.
	BorrowUserID string
}

// coldStartStrategy is one tier of the resolution chain. It either declines
// (nil result, nil error) or produces a result. Strategies are tried in
// order; a declined or empty tier never stops the chain.
type coldStartStrategy interface {
	name() string
	resolve(ctx context.Context, userID string, topN int) (*ColdStartResult, error)
}

// ColdStartResolver produces a ranked list for users with no interaction
// history by trying an ordered chain of strategies: demographic cohort
// popularity, the demo placeholder fallback, then global popularity.
type ColdStartResolver struct {
	data       DataProvider
	cfg        Config
	logger     zerolog.Logger
	strategies []coldStartStrategy
}

// NewColdStartResolver builds the resolver chain.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewColdStartResolver(data DataProvider, cfg Config, logger zerolog.Logger) *ColdStartResolver {
	r := &ColdStartResolver{
		data:   data,
		cfg:    cfg,
		logger: logger.With().Str("component", "coldstart").Logger(),
	}
	r.strategies = []coldStartStrategy{
		&cohortStrategy{r},
		&demoFallbackStrategy{r},
		&globalPopularityStrategy{r},
	}
	return r
}

// Resolve walks the strategy chain until one produces a usable result. The
// final global-popularity tier always produces a (possibly empty) result, so
// Resolve never returns a nil result without an error.
func (r *ColdStartResolver) Resolve(ctx context.Context, userID string, topN int) (*ColdStartResult, error) {
	for _, strat := range r.strategies {
		result, err := strat.resolve(ctx, userID, topN)
		if err != nil {
			return nil, fmt.Errorf("cold-start strategy %s: %w", strat.name(), err)
		}
		if result == nil {
			continue
		}
		if len(result.Entries) == 0 && result.BorrowUserID == "" && strat.name() != StrategyGlobalPopularity {
			// A tier that applied but produced nothing usable does not end
			// the chain.
			r.logger.Debug().
				Str("user_id", userID).
				Str("strategy", strat.name()).
				Msg("cold-start tier produced no candidates, trying next")
			continue
		}
		r.logger.Debug().
			Str("user_id", userID).
			Str("strategy", result.Strategy).
			Int("entries", len(result.Entries)).
			Msg("cold start resolved")
		return result, nil
	}

	// Unreachable: the global tier always resolves. Kept for safety.
	return &ColdStartResult{Strategy: StrategyGlobalPopularity}, nil
}

// cohortStrategy matches users sharing demographic attributes and ranks the
// items they liked or reviewed.
type cohortStrategy struct{ r *ColdStartResolver }

func (s *cohortStrategy) name() string { return StrategyCohort }

func (s *cohortStrategy) resolve(ctx context.Context, userID string, topN int) (*ColdStartResult, error) {
	demo, exists, err := s.r.data.UserDemographics(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists || demo.Empty() {
		// Known users without demographics are handled by the demo
		// fallback; unknown users by global popularity.
		return nil, nil
	}

	// Exact cohort first: all three attributes match. Fall back to any-of.
	cohort, err := s.r.data.CohortUserIDs(ctx, userID, demo, true)
	if err != nil {
		return nil, err
	}
	if len(cohort) == 0 {
		cohort, err = s.r.data.CohortUserIDs(ctx, userID, demo, false)
		if err != nil {
			return nil, err
		}
	}
	if len(cohort) == 0 {
		return nil, nil
	}

	// Over-fetch so the metadata-presence filter still fills topN.
	popular, err := s.r.data.CohortPopularity(ctx, cohort, s.r.cfg.LikeWeight, s.r.cfg.ReviewWeight, topN*4)
	if err != nil {
		return nil, err
	}

	entries, err := s.r.presentable(ctx, popular, topN, true)
	if err != nil {
		return nil, err
	}
	if len(entries) < topN {
		entries, err = s.r.padFromGlobal(ctx, entries, topN)
		if err != nil {
			return nil, err
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &ColdStartResult{Entries: finalizeRanks(entries, topN), Strategy: StrategyCohort}, nil
}

// demoFallbackStrategy applies to known users carrying no demographic
// attributes at all: they borrow the result computed for the designated
// placeholder identity.
type demoFallbackStrategy struct{ r *ColdStartResolver }

func (s *demoFallbackStrategy) name() string { return StrategyDemoFallback }

func (s *demoFallbackStrategy) resolve(ctx context.Context, userID string, _ int) (*ColdStartResult, error) {
	if userID == s.r.cfg.DemoUserID || s.r.cfg.DemoUserID == "" {
		return nil, nil
	}
	demo, exists, err := s.r.data.UserDemographics(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists || !demo.Empty() {
		return nil, nil
	}
	return &ColdStartResult{
		Strategy:     StrategyDemoFallback,
		BorrowUserID: s.r.cfg.DemoUserID,
	}, nil
}

// globalPopularityStrategy is the terminal tier: items ranked purely by
// review count, same metadata-presence filter.
type globalPopularityStrategy struct{ r *ColdStartResolver }

func (s *globalPopularityStrategy) name() string { return StrategyGlobalPopularity }

func (s *globalPopularityStrategy) resolve(ctx context.Context, _ string, topN int) (*ColdStartResult, error) {
	popular, err := s.r.data.GlobalMostReviewed(ctx, topN*4)
	if err != nil {
		return nil, err
	}
	entries, err := s.r.presentable(ctx, popular, topN, false)
	if err != nil {
		return nil, err
	}
	return &ColdStartResult{Entries: finalizeRanks(entries, topN), Strategy: StrategyGlobalPopularity}, nil
}

// presentable applies the catalog metadata filter to popularity candidates:
// items with a title and at least one image come first, then, when
// allowTitleOnly is set, items with a title but no image. Untitled items are
// excluded entirely. Candidate order is preserved within each group.
func (r *ColdStartResolver) presentable(ctx context.Context, popular []PopularItem, topN int, allowTitleOnly bool) ([]Entry, error) {
	if len(popular) == 0 {
		return nil, nil
	}

	ids := make([]string, len(popular))
	for i, p := range popular {
		ids[i] = p.ItemID
	}
	meta, err := r.data.ItemMetadata(ctx, ids)
	if err != nil {
		return nil, err
	}

	var withImage, titleOnly []Entry
	for _, p := range popular {
		m, ok := meta[p.ItemID]
		if !ok || m.Title == "" {
			continue
		}
		entry := Entry{
			ItemID:        p.ItemID,
			Score:         Round6(p.Score),
			TopAspects:    []string{},
			Title:         m.Title,
			Price:         m.Price,
			Category:      m.Category,
			AverageRating: Round6(m.AverageRating),
			Images:        m.Images,
		}
		if m.HasImage() {
			withImage = append(withImage, entry)
		} else if allowTitleOnly {
			titleOnly = append(titleOnly, entry)
		}
	}

	entries := append(withImage, titleOnly...)
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries, nil
}

// padFromGlobal extends a short list with globally most-reviewed items
// (title and image required) not already present.
func (r *ColdStartResolver) padFromGlobal(ctx context.Context, entries []Entry, topN int) ([]Entry, error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.ItemID] = struct{}{}
	}

	popular, err := r.data.GlobalMostReviewed(ctx, topN*4)
	if err != nil {
		return nil, err
	}
	filtered := popular[:0]
	for _, p := range popular {
		if _, dup := seen[p.ItemID]; !dup {
			filtered = append(filtered, p)
		}
	}

	padding, err := r.presentable(ctx, filtered, topN-len(entries), false)
	if err != nil {
		return nil, err
	}
	return append(entries, padding...), nil
}

// finalizeRanks truncates to topN and assigns dense 1-based ranks.
func finalizeRanks(entries []Entry, topN int) []Entry {
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
