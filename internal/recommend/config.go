// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"fmt"
	"time"
)

// Blend weights for the content scorer. Similarity dominates, rating is a
// secondary correction, and popularity is a mild logarithmic tie-breaker.
const (
	similarityWeight = 0.7
	ratingWeight     = 0.2
	popularityWeight = 0.1
)

// Config tunes the recommendation engine.
type Config struct {
	// DefaultTopN is used when a request does not specify a count.
	DefaultTopN int

	// MaxTopN caps the requested count.
	MaxTopN int

	// GateThreshold is the interaction count at which the precomputed
	// external model is consulted before live scoring.
	GateThreshold int

	// LikeWeight and ReviewWeight drive cold-start cohort popularity.
	LikeWeight   float64
	ReviewWeight float64

	// DemoUserID is the placeholder identity used when a request omits the
	// user and borrowed by users without demographic attributes.
	DemoUserID string

	// CacheTTL bounds both the response cache and the scorer's item-profile
	// snapshot freshness. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTopN:   30,
		MaxTopN:       100,
		GateThreshold: 5,
		LikeWeight:    3,
		ReviewWeight:  1,
		DemoUserID:    "demo_user_1",
		CacheTTL:      5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultTopN < 1 {
		return fmt.Errorf("default_top_n must be positive, got %d", c.DefaultTopN)
	}
	if c.MaxTopN < c.DefaultTopN {
		return fmt.Errorf("max_top_n %d below default_top_n %d", c.MaxTopN, c.DefaultTopN)
	}
	if c.GateThreshold < 0 {
		return fmt.Errorf("gate_threshold must be non-negative, got %d", c.GateThreshold)
	}
	if c.LikeWeight < 0 || c.ReviewWeight < 0 {
		return fmt.Errorf("cold-start weights must be non-negative")
	}
	if c.LikeWeight == 0 && c.ReviewWeight == 0 {
		return fmt.Errorf("cold-start weights cannot both be zero")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative, got %v", c.CacheTTL)
	}
	return nil
}
