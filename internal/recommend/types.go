// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
	"errors"
)

// Source classifies the origin of an interaction.
type Source string

const (
	// SourceReview marks an interaction derived from a written review.
	SourceReview Source = "review"
	// SourceLike marks an interaction derived from a binary like.
	SourceLike Source = "like"
)

// AspectVector maps aspect names to numeric scores. Keys keep their raw
// "_score" suffix until presentation; missing keys are treated as 0.
type AspectVector map[string]float64

// Interaction is a single normalized user-item signal. Immutable once
// ingested. Likes carry no aspect scores.
type Interaction struct {
	UserID  string       `json:"user_id"`
	ItemID  string       `json:"item_id"`
	Rating  float64      `json:"rating"`
	Aspects AspectVector `json:"aspects,omitempty"`
	Source  Source       `json:"source"`
}

// Demographics holds the optional demographic attributes of a user.
type Demographics struct {
	AgeGroup string `json:"age_group,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Location string `json:"location,omitempty"`
}

// Empty reports whether no demographic attribute is set.
func (d Demographics) Empty() bool {
	return d.AgeGroup == "" && d.Gender == "" && d.Location == ""
}

// UserProfile is the transient per-request view of a user.
type UserProfile struct {
	UserID       string
	Vector       AspectVector
	Demographics Demographics
	// Interacted holds the item IDs the user has already reviewed or liked.
	Interacted map[string]struct{}
}

// ItemProfile aggregates the review evidence for one item.
type ItemProfile struct {
	ItemID        string
	Vector        AspectVector
	ReviewCount   int
	AverageRating float64
}

// ItemMetadata is the catalog view of an item.
type ItemMetadata struct {
	Title         string   `json:"title,omitempty"`
	Price         float64  `json:"price,omitempty"`
	Category      string   `json:"category,omitempty"`
	AverageRating float64  `json:"average_rating,omitempty"`
	Images        []string `json:"images,omitempty"`
}

// HasImage reports whether the item carries at least one image.
func (m ItemMetadata) HasImage() bool {
	return len(m.Images) > 0
}

// Entry is one ranked recommendation. Ranks are dense and 1-based within a
// list. Similarity is set only on the warm content-scoring path.
type Entry struct {
	Rank          int      `json:"rank"`
	ItemID        string   `json:"asin"`
	Score         float64  `json:"score"`
	Similarity    *float64 `json:"similarity,omitempty"`
	TopAspects    []string `json:"top_aspects"`
	Title         string   `json:"title,omitempty"`
	Price         float64  `json:"price,omitempty"`
	Category      string   `json:"category,omitempty"`
	AverageRating float64  `json:"avg_rating,omitempty"`
	Images        []string `json:"images,omitempty"`
}

// Request is a recommendation request.
type Request struct {
	UserID string
	TopN   int
}

// Response is the recommendation result for one user.
type Response struct {
	UserID          string  `json:"userId"`
	Recommendations []Entry `json:"recommendations"`
	ModelUsed       string  `json:"model_used,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// Provenance tags reported in Response.ModelUsed.
const (
	// ModelLightFM marks a list served from the precomputed external model.
	ModelLightFM = "lightfm"
	// ModelAspectBased marks live aspect-profile scoring.
	ModelAspectBased = "aspect_based"
	// ModelAspectFallback marks live scoring after a precomputed-model miss.
	ModelAspectFallback = "aspect_based (fallback)"
)

// ErrNoAspectData is returned when no aspect score fields are discoverable
// in the interaction data. The coordinator surfaces it as a message, not an
// HTTP error.
var ErrNoAspectData = errors.New("no aspect score fields in interaction data")

// DataProvider is the read-only view of interaction, demographic, and
// catalog data. Implemented by the database layer.
type DataProvider interface {
	// UserInteractions returns all interactions (reviews and likes) for a
	// user, reviews first.
	UserInteractions(ctx context.Context, userID string) ([]Interaction, error)

	// ReviewInteractions returns every review interaction, for building
	// item profiles.
	ReviewInteractions(ctx context.Context) ([]Interaction, error)

	// CountUserInteractions returns reviews + likes for a user.
	CountUserInteractions(ctx context.Context, userID string) (int, error)

	// UserDemographics returns the user's demographic attributes and
	// whether the user exists in the user store at all.
	UserDemographics(ctx context.Context, userID string) (Demographics, bool, error)

	// CohortUserIDs returns users matching the given demographics, excluding
	// the user themselves. With matchAll true every attribute must match
	// exactly; otherwise any single attribute match qualifies.
	CohortUserIDs(ctx context.Context, userID string, d Demographics, matchAll bool) ([]string, error)

	// CohortPopularity scores items liked or reviewed by the cohort:
	// likeWeight per like plus reviewWeight per review, descending, ties by
	// item ID ascending.
	CohortPopularity(ctx context.Context, userIDs []string, likeWeight, reviewWeight float64, limit int) ([]PopularItem, error)

	// GlobalMostReviewed returns items ranked by review count descending,
	// ties by item ID ascending.
	GlobalMostReviewed(ctx context.Context, limit int) ([]PopularItem, error)

	// ItemMetadata resolves catalog metadata for the given item IDs. An ID
	// may be registered under its parent identifier; absent IDs are simply
	// missing from the result.
	ItemMetadata(ctx context.Context, itemIDs []string) (map[string]ItemMetadata, error)
}

// PopularItem is a popularity-ranked candidate from the data layer.
type PopularItem struct {
	ItemID      string
	Score       float64
	ReviewCount int
}

// ModelStore reads precomputed per-user recommendation lists produced by the
// heavyweight external model. Implemented by the recmodel layer.
type ModelStore interface {
	// UserRecommendations returns the precomputed list for a user. found is
	// false when the store has no (or a corrupt) entry; err is reserved for
	// store-level failures.
	UserRecommendations(ctx context.Context, userID string) (entries []Entry, found bool, err error)
}
