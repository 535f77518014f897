// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"math"
	"sort"
	"sync"
	"time"
)

// ContentScorer ranks candidate items for a user by blending aspect-profile
// similarity with rating and review-volume signals:
//
//	score = 0.7*similarity + 0.2*(avg_rating/5.0) + 0.1*(ln(1+review_count)/10)
//
// Item profiles are built from review interactions by Train. Training takes
// an exclusive lock; scoring takes a shared lock, so concurrent requests are
// safe against a background rebuild.
type ContentScorer struct {
	mu          sync.RWMutex
	profiles    map[string]*ItemProfile
	itemIDs     []string // profile keys sorted ascending, pinning tie-break order
	trained     bool
	lastTrained time.Time
	version     int
}

// NewContentScorer creates an untrained scorer.
func NewContentScorer() *ContentScorer {
	return &ContentScorer{
		profiles: make(map[string]*ItemProfile),
	}
}

// IsTrained reports whether item profiles have been built.
func (s *ContentScorer) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

// LastTrained returns when the profiles were last rebuilt.
func (s *ContentScorer) LastTrained() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTrained
}

// Version returns the profile snapshot version, starting at 1 after the
// first Train.
func (s *ContentScorer) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Train rebuilds the per-item aspect profiles from review interactions.
// Returns ErrNoAspectData when the interactions carry no aspect fields at
// all; the previous snapshot is kept in that case.
func (s *ContentScorer) Train(interactions []Interaction) error {
	grouped := make(map[string][]Interaction)
	for _, in := range interactions {
		if in.Source != SourceReview {
			continue
		}
		grouped[in.ItemID] = append(grouped[in.ItemID], in)
	}

	profiles := make(map[string]*ItemProfile, len(grouped))
	aspectsSeen := false
	for itemID, group := range grouped {
		vector := AverageVector(group)
		if len(vector) > 0 {
			aspectsSeen = true
		}

		var ratingSum float64
		for _, in := range group {
			ratingSum += in.Rating
		}
		profiles[itemID] = &ItemProfile{
			ItemID:        itemID,
			Vector:        vector,
			ReviewCount:   len(group),
			AverageRating: ratingSum / float64(len(group)),
		}
	}

	if !aspectsSeen {
		return ErrNoAspectData
	}

	itemIDs := make([]string, 0, len(profiles))
	for id := range profiles {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
	s.itemIDs = itemIDs
	s.trained = true
	s.lastTrained = time.Now()
	s.version++
	return nil
}

// ItemProfile returns the profile for an item, or nil when the item has no
// review evidence.
func (s *ContentScorer) ItemProfile(itemID string) *ItemProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[itemID]
}

// Rank scores every item the user has not interacted with and returns the
// top entries with dense 1-based ranks. Candidates without review evidence
// are excluded (no profile to score against). Equal scores are broken by
// item ID ascending.
func (s *ContentScorer) Rank(user UserProfile, topN int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]Entry, 0, len(s.itemIDs))
	for _, itemID := range s.itemIDs {
		if _, seen := user.Interacted[itemID]; seen {
			continue
		}
		profile := s.profiles[itemID]

		similarity := CosineSimilarity(user.Vector, profile.Vector)
		score := similarityWeight*similarity +
			ratingWeight*(profile.AverageRating/5.0) +
			popularityWeight*(math.Log(1+float64(profile.ReviewCount))/10.0)

		sim := Round6(similarity)
		scored = append(scored, Entry{
			ItemID:        itemID,
			Score:         Round6(score),
			Similarity:    &sim,
			TopAspects:    TopAspects(profile.Vector),
			AverageRating: Round6(profile.AverageRating),
		})
	}

	// Candidates enter in ascending item-ID order, so a stable sort by
	// score descending yields the pinned ID-ascending tie-break.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}
