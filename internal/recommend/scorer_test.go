// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"errors"
	"math"
	"testing"
)

func TestContentScorerTrain(t *testing.T) {
	tests := []struct {
		name         string
		interactions []Interaction
		wantErr      error
		verify       func(t *testing.T, s *ContentScorer)
	}{
		{
			name: "builds profiles from reviews only",
			interactions: []Interaction{
				{UserID: "u1", ItemID: "i1", Rating: 5, Aspects: AspectVector{"battery_score": 4}, Source: SourceReview},
				{UserID: "u2", ItemID: "i1", Rating: 3, Aspects: AspectVector{"battery_score": 2}, Source: SourceReview},
				{UserID: "u3", ItemID: "i1", Source: SourceLike},
			},
			verify: func(t *testing.T, s *ContentScorer) {
				p := s.ItemProfile("i1")
				if p == nil {
					t.Fatal("expected profile for i1")
				}
				if p.ReviewCount != 2 {
					t.Errorf("review count = %d, want 2 (likes excluded)", p.ReviewCount)
				}
				if p.AverageRating != 4 {
					t.Errorf("average rating = %v, want 4", p.AverageRating)
				}
				if p.Vector["battery_score"] != 3 {
					t.Errorf("battery mean = %v, want 3", p.Vector["battery_score"])
				}
			},
		},
		{
			name: "no aspect fields anywhere",
			interactions: []Interaction{
				{UserID: "u1", ItemID: "i1", Rating: 5, Source: SourceReview},
			},
			wantErr: ErrNoAspectData,
			verify: func(t *testing.T, s *ContentScorer) {
				if s.IsTrained() {
					t.Error("scorer should stay untrained on aspect-free data")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewContentScorer()
			err := s.Train(tt.interactions)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Train error = %v, want %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, s)
			}
		})
	}
}

func TestContentScorerRankProperties(t *testing.T) {
	s := NewContentScorer()
	err := s.Train([]Interaction{
		{UserID: "a", ItemID: "item1", Rating: 5, Aspects: AspectVector{"battery_score": 5}, Source: SourceReview},
		{UserID: "b", ItemID: "item2", Rating: 4, Aspects: AspectVector{"battery_score": 4}, Source: SourceReview},
		{UserID: "c", ItemID: "item3", Rating: 3, Aspects: AspectVector{"camera_score": 3}, Source: SourceReview},
		{UserID: "d", ItemID: "item4", Rating: 2, Aspects: AspectVector{"screen_score": 1}, Source: SourceReview},
	})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	user := BuildUserProfile("u", []Interaction{
		{UserID: "u", ItemID: "item4", Aspects: AspectVector{"battery_score": 5}, Source: SourceReview},
	}, Demographics{})

	entries := s.Rank(user, 10)

	// Interacted items are excluded.
	for _, e := range entries {
		if e.ItemID == "item4" {
			t.Error("interacted item item4 must not be a candidate")
		}
	}

	// Ranks are dense 1..N and scores non-increasing.
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("rank at index %d = %d, want %d", i, e.Rank, i+1)
		}
		if i > 0 && entries[i].Score > entries[i-1].Score {
			t.Errorf("scores increase at rank %d: %v after %v", e.Rank, e.Score, entries[i-1].Score)
		}
		if e.Similarity == nil {
			t.Errorf("warm entry %s missing similarity", e.ItemID)
		}
	}
}

func TestContentScorerTieBreakByItemID(t *testing.T) {
	s := NewContentScorer()
	// Two items with identical evidence produce identical scores.
	err := s.Train([]Interaction{
		{UserID: "a", ItemID: "zzz", Rating: 4, Aspects: AspectVector{"battery_score": 3}, Source: SourceReview},
		{UserID: "b", ItemID: "aaa", Rating: 4, Aspects: AspectVector{"battery_score": 3}, Source: SourceReview},
	})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	user := BuildUserProfile("u", nil, Demographics{})
	entries := s.Rank(user, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ItemID != "aaa" || entries[1].ItemID != "zzz" {
		t.Errorf("tie not broken by item ID ascending: %s, %s", entries[0].ItemID, entries[1].ItemID)
	}
	if entries[0].Score != entries[1].Score {
		t.Fatalf("expected equal scores, got %v and %v", entries[0].Score, entries[1].Score)
	}
}

// TestContentScorerBlendFormula verifies the blended score against a manual
// computation to 6 decimal places.
func TestContentScorerBlendFormula(t *testing.T) {
	// User profile: battery mean (5+4+0)/3 = 3, camera mean (2+0+0)/3.
	userInteractions := []Interaction{
		{UserID: "u", ItemID: "seen1", Aspects: AspectVector{"battery_score": 5, "camera_score": 2}, Source: SourceReview},
		{UserID: "u", ItemID: "seen2", Aspects: AspectVector{"battery_score": 4}, Source: SourceReview},
		{UserID: "u", ItemID: "seen3", Aspects: AspectVector{}, Source: SourceReview},
	}

	training := []Interaction{
		// Candidate A: vector {battery 4, camera 1}, one review rated 4.
		{UserID: "x", ItemID: "candA", Rating: 4, Aspects: AspectVector{"battery_score": 4, "camera_score": 1}, Source: SourceReview},
		// Candidate B: vector {battery 2, camera 4}, two reviews averaging 3.5.
		{UserID: "x", ItemID: "candB", Rating: 3, Aspects: AspectVector{"battery_score": 2, "camera_score": 4}, Source: SourceReview},
		{UserID: "y", ItemID: "candB", Rating: 4, Aspects: AspectVector{"battery_score": 2, "camera_score": 4}, Source: SourceReview},
	}

	s := NewContentScorer()
	if err := s.Train(training); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	user := BuildUserProfile("u", userInteractions, Demographics{})
	entries := s.Rank(user, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	manual := func(itemVec AspectVector, avgRating float64, reviewCount int) float64 {
		sim := CosineSimilarity(user.Vector, itemVec)
		score := 0.7*sim + 0.2*(avgRating/5.0) + 0.1*(math.Log(1+float64(reviewCount))/10.0)
		return Round6(score)
	}

	expected := map[string]float64{
		"candA": manual(AspectVector{"battery_score": 4, "camera_score": 1}, 4, 1),
		"candB": manual(AspectVector{"battery_score": 2, "camera_score": 4}, 3.5, 2),
	}

	for _, e := range entries {
		want, ok := expected[e.ItemID]
		if !ok {
			t.Fatalf("unexpected candidate %s", e.ItemID)
		}
		if e.Score != want {
			t.Errorf("%s: score %v, want %v", e.ItemID, e.Score, want)
		}
	}
}
