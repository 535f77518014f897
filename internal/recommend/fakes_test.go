// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"context"
)

// fakeData is an in-memory DataProvider for tests.
type fakeData struct {
	reviews  []Interaction
	likes    []Interaction
	users    map[string]Demographics
	metadata map[string]ItemMetadata

	exactCohort []string
	anyCohort   []string
	cohortPop   []PopularItem
	globalPop   []PopularItem

	err error
}

func (f *fakeData) UserInteractions(_ context.Context, userID string) ([]Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Interaction
	for _, in := range f.reviews {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	for _, in := range f.likes {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeData) ReviewInteractions(_ context.Context) ([]Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reviews, nil
}

func (f *fakeData) CountUserInteractions(ctx context.Context, userID string) (int, error) {
	ints, err := f.UserInteractions(ctx, userID)
	return len(ints), err
}

func (f *fakeData) UserDemographics(_ context.Context, userID string) (Demographics, bool, error) {
	if f.err != nil {
		return Demographics{}, false, f.err
	}
	d, ok := f.users[userID]
	return d, ok, nil
}

func (f *fakeData) CohortUserIDs(_ context.Context, _ string, _ Demographics, matchAll bool) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if matchAll {
		return f.exactCohort, nil
	}
	return f.anyCohort, nil
}

func (f *fakeData) CohortPopularity(_ context.Context, _ []string, _, _ float64, limit int) ([]PopularItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return limitPopular(f.cohortPop, limit), nil
}

func (f *fakeData) GlobalMostReviewed(_ context.Context, limit int) ([]PopularItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return limitPopular(f.globalPop, limit), nil
}

func (f *fakeData) ItemMetadata(_ context.Context, itemIDs []string) (map[string]ItemMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]ItemMetadata)
	for _, id := range itemIDs {
		if m, ok := f.metadata[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func limitPopular(items []PopularItem, limit int) []PopularItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// fakeModelStore is an in-memory ModelStore for tests.
type fakeModelStore struct {
	lists map[string][]Entry
	err   error
	calls int
}

func (f *fakeModelStore) UserRecommendations(_ context.Context, userID string) ([]Entry, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	entries, ok := f.lists[userID]
	return entries, ok, nil
}
