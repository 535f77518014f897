// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func testResolver(data *fakeData) *ColdStartResolver {
	return NewColdStartResolver(data, DefaultConfig(), zerolog.Nop())
}

func TestColdStartCohort(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{
			"u1": {AgeGroup: "25-34", Gender: "f", Location: "berlin"},
		},
		exactCohort: []string{"u2", "u3"},
		cohortPop: []PopularItem{
			{ItemID: "i1", Score: 9},
			{ItemID: "i2", Score: 7},
			{ItemID: "i3", Score: 5},
			{ItemID: "i4", Score: 3},
		},
		metadata: map[string]ItemMetadata{
			"i1": {Title: "Alpha", Images: []string{"a.jpg"}},
			"i2": {Title: "Beta"}, // title only
			"i3": {},              // untitled, must be excluded
			"i4": {Title: "Delta", Images: []string{"d.jpg"}},
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Strategy != StrategyCohort {
		t.Fatalf("strategy = %s, want %s", result.Strategy, StrategyCohort)
	}

	// Title+image entries first in popularity order, then title-only.
	wantOrder := []string{"i1", "i4", "i2"}
	if len(result.Entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(result.Entries))
	}
	for i, want := range wantOrder {
		e := result.Entries[i]
		if e.ItemID != want {
			t.Errorf("position %d: got %s, want %s", i, e.ItemID, want)
		}
		if e.Rank != i+1 {
			t.Errorf("position %d: rank %d, want %d", i, e.Rank, i+1)
		}
		if e.Title == "" {
			t.Errorf("entry %s lacks a title", e.ItemID)
		}
	}
}

func TestColdStartAnyOfCohortFallback(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{
			"u1": {AgeGroup: "25-34"},
		},
		exactCohort: nil, // no exact match
		anyCohort:   []string{"u9"},
		cohortPop:   []PopularItem{{ItemID: "i1", Score: 4}},
		metadata: map[string]ItemMetadata{
			"i1": {Title: "Alpha", Images: []string{"a.jpg"}},
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Strategy != StrategyCohort {
		t.Errorf("strategy = %s, want %s", result.Strategy, StrategyCohort)
	}
	if len(result.Entries) != 1 || result.Entries[0].ItemID != "i1" {
		t.Errorf("unexpected entries: %+v", result.Entries)
	}
}

func TestColdStartCohortPadding(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{
			"u1": {Gender: "m"},
		},
		exactCohort: []string{"u2"},
		cohortPop:   []PopularItem{{ItemID: "i1", Score: 6}},
		globalPop: []PopularItem{
			{ItemID: "i1", ReviewCount: 50}, // already included, must not duplicate
			{ItemID: "g1", ReviewCount: 40},
			{ItemID: "g2", ReviewCount: 30}, // no image, excluded from padding
			{ItemID: "g3", ReviewCount: 20},
		},
		metadata: map[string]ItemMetadata{
			"i1": {Title: "Alpha", Images: []string{"a.jpg"}},
			"g1": {Title: "Pad One", Images: []string{"p.jpg"}},
			"g2": {Title: "No Image"},
			"g3": {Title: "Pad Two", Images: []string{"q.jpg"}},
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantOrder := []string{"i1", "g1", "g3"}
	if len(result.Entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d: %+v", len(wantOrder), len(result.Entries), result.Entries)
	}
	for i, want := range wantOrder {
		if result.Entries[i].ItemID != want {
			t.Errorf("position %d: got %s, want %s", i, result.Entries[i].ItemID, want)
		}
	}
}

func TestColdStartDemoFallback(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{
			"u1": {}, // known user, no demographics at all
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Strategy != StrategyDemoFallback {
		t.Fatalf("strategy = %s, want %s", result.Strategy, StrategyDemoFallback)
	}
	if result.BorrowUserID != DefaultConfig().DemoUserID {
		t.Errorf("borrow user = %s, want %s", result.BorrowUserID, DefaultConfig().DemoUserID)
	}
}

// An entirely unknown user falls through every tier to global popularity,
// sorted by review count descending, all entries carrying title and image.
func TestColdStartUnknownUserGlobalPopularity(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{},
		globalPop: []PopularItem{
			{ItemID: "g1", Score: 100, ReviewCount: 100},
			{ItemID: "g2", Score: 80, ReviewCount: 80},
			{ItemID: "g3", Score: 60, ReviewCount: 60}, // untitled
			{ItemID: "g4", Score: 40, ReviewCount: 40}, // no image
			{ItemID: "g5", Score: 20, ReviewCount: 20},
		},
		metadata: map[string]ItemMetadata{
			"g1": {Title: "One", Images: []string{"1.jpg"}},
			"g2": {Title: "Two", Images: []string{"2.jpg"}},
			"g3": {Images: []string{"3.jpg"}},
			"g4": {Title: "Four"},
			"g5": {Title: "Five", Images: []string{"5.jpg"}},
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Strategy != StrategyGlobalPopularity {
		t.Fatalf("strategy = %s, want %s", result.Strategy, StrategyGlobalPopularity)
	}

	wantOrder := []string{"g1", "g2", "g5"}
	if len(result.Entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(result.Entries))
	}
	for i, want := range wantOrder {
		e := result.Entries[i]
		if e.ItemID != want {
			t.Errorf("position %d: got %s, want %s", i, e.ItemID, want)
		}
		if e.Title == "" {
			t.Errorf("entry %s lacks a title", e.ItemID)
		}
		if len(e.Images) == 0 {
			t.Errorf("entry %s lacks an image", e.ItemID)
		}
	}
}

// An applicable cohort that yields no usable items must still end in global
// candidates, never an empty list while global evidence exists.
func TestColdStartEmptyCohortStillServesGlobal(t *testing.T) {
	data := &fakeData{
		users: map[string]Demographics{
			"u1": {Location: "oslo"},
		},
		exactCohort: []string{"u2"},
		cohortPop:   nil, // cohort produced nothing usable
		globalPop:   []PopularItem{{ItemID: "g1", ReviewCount: 10}},
		metadata: map[string]ItemMetadata{
			"g1": {Title: "One", Images: []string{"1.jpg"}},
		},
	}

	result, err := testResolver(data).Resolve(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].ItemID != "g1" {
		t.Fatalf("expected fall-through to global popularity, got %+v", result)
	}
}
