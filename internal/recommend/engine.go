// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/metrics"
)

// User-facing messages for degraded outcomes. Total data absence yields a
// well-formed empty response with one of these, never an error.
const (
	msgNoReviews       = "No reviews data found"
	msgNoAspectData    = "No aspect score columns found"
	msgDataUnavailable = "Recommendation data temporarily unavailable"
)

// Engine is the recommendation coordinator. Per request it consults the
// external-model gate, then either the warm content scorer or the cold-start
// resolver, and assembles the final ranked response.
//
// It is safe for concurrent use: the serving path is read-only against the
// scorer's profile snapshot, and each request builds its own transient user
// profile.
type Engine struct {
	cfg      Config
	logger   zerolog.Logger
	data     DataProvider
	gate     *ModelGate
	scorer   *ContentScorer
	resolver *ColdStartResolver

	// trainMu serializes lazy profile rebuilds; TryLock keeps requests from
	// stacking up behind one rebuild.
	trainMu sync.Mutex

	// Response cache.
	cache   map[string]cacheEntry
	cacheMu sync.RWMutex

	requestCount atomic.Int64
	cacheHits    atomic.Int64
}

// cacheEntry holds a cached response.
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// NewEngine creates the coordinator. modelStore may be nil when no
// precomputed model is configured; the gate then always falls through.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg Config, data DataProvider, modelStore ModelStore, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	engineLogger := logger.With().Str("component", "recommend").Logger()
	return &Engine{
		cfg:      cfg,
		logger:   engineLogger,
		data:     data,
		gate:     NewModelGate(modelStore, cfg.GateThreshold, engineLogger),
		scorer:   NewContentScorer(),
		resolver: NewColdStartResolver(data, cfg, engineLogger),
		cache:    make(map[string]cacheEntry),
	}, nil
}

// Scorer exposes the content scorer, mainly for startup warm-up and tests.
func (e *Engine) Scorer() *ContentScorer {
	return e.scorer
}

// Stats reports request and cache-hit counts since startup.
func (e *Engine) Stats() (requests, cacheHits int64) {
	return e.requestCount.Load(), e.cacheHits.Load()
}

// InvalidateCache drops all cached responses. Called after a model refresh.
func (e *Engine) InvalidateCache() {
	e.cacheMu.Lock()
	e.cache = make(map[string]cacheEntry)
	e.cacheMu.Unlock()
}

// Recommend produces the ranked recommendation list for a request.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	e.requestCount.Add(1)

	req = e.prepareRequest(req)
	logger := e.logger.With().
		Str("user_id", req.UserID).
		Int("top_n", req.TopN).
		Logger()
	logger.Debug().Msg("processing recommendation request")

	if resp := e.cachedResponse(req); resp != nil {
		e.cacheHits.Add(1)
		metrics.RecommendationCacheHits.Inc()
		logger.Debug().Msg("serving cached response")
		return resp, nil
	}

	resp, err := e.recommend(ctx, req, logger, false)
	if err != nil {
		return nil, err
	}

	e.cacheResponse(req, resp)
	logger.Debug().
		Str("model_used", resp.ModelUsed).
		Int("entries", len(resp.Recommendations)).
		Dur("elapsed", time.Since(start)).
		Msg("recommendation request served")
	return resp, nil
}

// recommend runs the gate / warm / cold sequencing. borrowed guards the
// single level of demo-user borrowing against recursion.
func (e *Engine) recommend(ctx context.Context, req Request, logger zerolog.Logger, borrowed bool) (*Response, error) {
	count, err := e.data.CountUserInteractions(ctx, req.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("interaction count unavailable")
		return e.degradedResponse(req, msgDataUnavailable), nil
	}

	// External model gate first when interaction volume is high.
	entries, outcome := e.gate.Check(ctx, req.UserID, count)
	metrics.GateDecisions.WithLabelValues(string(outcome)).Inc()
	if outcome == GateServed {
		return &Response{
			UserID:          req.UserID,
			Recommendations: clampEntries(entries, req.TopN),
			ModelUsed:       ModelLightFM,
		}, nil
	}
	gateAttempted := outcome != GateBelowThreshold

	if count == 0 {
		return e.recommendColdStart(ctx, req, logger, borrowed)
	}
	return e.recommendWarm(ctx, req, logger, gateAttempted)
}

// recommendWarm serves the aspect-profile content-scoring path.
func (e *Engine) recommendWarm(ctx context.Context, req Request, logger zerolog.Logger, gateAttempted bool) (*Response, error) {
	if err := e.ensureTrained(ctx); err != nil {
		if errors.Is(err, ErrNoAspectData) {
			return e.degradedResponse(req, msgNoAspectData), nil
		}
		logger.Error().Err(err).Msg("scorer training failed")
		return e.degradedResponse(req, msgDataUnavailable), nil
	}
	if !e.scorer.IsTrained() {
		return e.degradedResponse(req, msgNoReviews), nil
	}

	interactions, err := e.data.UserInteractions(ctx, req.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("user interactions unavailable")
		return e.degradedResponse(req, msgDataUnavailable), nil
	}

	demo, _, err := e.data.UserDemographics(ctx, req.UserID)
	if err != nil {
		// Demographics are not needed on the warm path; log and continue.
		logger.Warn().Err(err).Msg("user demographics unavailable")
	}

	profile := BuildUserProfile(req.UserID, interactions, demo)
	entries := e.scorer.Rank(profile, req.TopN)
	e.attachMetadata(ctx, entries, logger)

	modelUsed := ModelAspectBased
	if gateAttempted {
		modelUsed = ModelAspectFallback
	}
	return &Response{
		UserID:          req.UserID,
		Recommendations: entries,
		ModelUsed:       modelUsed,
	}, nil
}

// recommendColdStart serves users with no interaction history.
func (e *Engine) recommendColdStart(ctx context.Context, req Request, logger zerolog.Logger, borrowed bool) (*Response, error) {
	result, err := e.resolver.Resolve(ctx, req.UserID, req.TopN)
	if err != nil {
		logger.Error().Err(err).Msg("cold-start resolution failed")
		return e.degradedResponse(req, msgDataUnavailable), nil
	}

	strategy := result.Strategy
	if result.BorrowUserID != "" && !borrowed {
		strategy = StrategyDemoFallback
	}
	metrics.ColdStartResolutions.WithLabelValues(strategy).Inc()

	if result.BorrowUserID != "" && !borrowed {
		borrowedResp, err := e.recommend(ctx, Request{UserID: result.BorrowUserID, TopN: req.TopN}, logger, true)
		if err != nil {
			return nil, err
		}
		return &Response{
			UserID:          req.UserID,
			Recommendations: borrowedResp.Recommendations,
			ModelUsed:       ModelAspectBased,
			Message:         "cold start: " + StrategyDemoFallback,
		}, nil
	}

	entries := result.Entries
	if entries == nil {
		entries = []Entry{}
	}
	return &Response{
		UserID:          req.UserID,
		Recommendations: entries,
		ModelUsed:       ModelAspectBased,
		Message:         "cold start: " + result.Strategy,
	}, nil
}

// ensureTrained lazily rebuilds the scorer's item profiles when the snapshot
// is older than the configured TTL. Only one rebuild runs at a time; callers
// that lose the TryLock race serve from the existing snapshot.
func (e *Engine) ensureTrained(ctx context.Context) error {
	fresh := e.scorer.IsTrained() &&
		(e.cfg.CacheTTL <= 0 || time.Since(e.scorer.LastTrained()) < e.cfg.CacheTTL)
	if fresh {
		return nil
	}
	if !e.trainMu.TryLock() {
		// Another request is already rebuilding.
		return nil
	}
	defer e.trainMu.Unlock()

	interactions, err := e.data.ReviewInteractions(ctx)
	if err != nil {
		return fmt.Errorf("loading review interactions: %w", err)
	}
	if len(interactions) == 0 {
		// Leaves the scorer untrained; the caller reports no review data.
		return nil
	}

	if err := e.scorer.Train(interactions); err != nil {
		return err
	}
	e.logger.Info().
		Int("reviews", len(interactions)).
		Int("version", e.scorer.Version()).
		Msg("item profiles rebuilt")
	return nil
}

// attachMetadata fills catalog fields on warm-path entries. Unknown items
// keep a generated placeholder title rather than dropping the entry.
func (e *Engine) attachMetadata(ctx context.Context, entries []Entry, logger zerolog.Logger) {
	if len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ItemID
	}

	meta, err := e.data.ItemMetadata(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("metadata lookup failed, serving partial entries")
		meta = nil
	}

	for i := range entries {
		m, ok := meta[entries[i].ItemID]
		if !ok {
			entries[i].Title = "Product " + entries[i].ItemID
			continue
		}
		entries[i].Title = m.Title
		if entries[i].Title == "" {
			entries[i].Title = "Product " + entries[i].ItemID
		}
		entries[i].Price = m.Price
		entries[i].Category = m.Category
		entries[i].Images = m.Images
	}
}

// prepareRequest applies defaults and clamps.
func (e *Engine) prepareRequest(req Request) Request {
	if req.UserID == "" {
		req.UserID = e.cfg.DemoUserID
	}
	if req.TopN <= 0 {
		req.TopN = e.cfg.DefaultTopN
	}
	if req.TopN > e.cfg.MaxTopN {
		req.TopN = e.cfg.MaxTopN
	}
	return req
}

// degradedResponse is the well-formed empty response for degraded outcomes.
func (e *Engine) degradedResponse(req Request, message string) *Response {
	return &Response{
		UserID:          req.UserID,
		Recommendations: []Entry{},
		Message:         message,
	}
}

func (e *Engine) cacheKey(req Request) string {
	return fmt.Sprintf("%s:%d", req.UserID, req.TopN)
}

func (e *Engine) cachedResponse(req Request) *Response {
	if e.cfg.CacheTTL <= 0 {
		return nil
	}
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	entry, ok := e.cache[e.cacheKey(req)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (e *Engine) cacheResponse(req Request, resp *Response) {
	if e.cfg.CacheTTL <= 0 {
		return
	}
	e.cacheMu.Lock()
	e.cache[e.cacheKey(req)] = cacheEntry{
		response:  resp,
		expiresAt: time.Now().Add(e.cfg.CacheTTL),
	}
	e.cacheMu.Unlock()
}

// clampEntries truncates a precomputed list to the requested count and
// re-densifies ranks.
func clampEntries(entries []Entry, topN int) []Entry {
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].Rank = i + 1
		if out[i].TopAspects == nil {
			out[i].TopAspects = []string{}
		}
	}
	return out
}
