// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package recommend

import (
	"math"
	"sort"
	"strings"
)

// aspectSuffix marks numeric aspect fields in raw interaction records. The
// suffix is stripped only for presentation in Entry.TopAspects.
const aspectSuffix = "_score"

// AverageVector returns the arithmetic mean per aspect key across the given
// interactions. The key set is the union of all keys present; a key absent
// from an interaction contributes 0, and non-finite values are treated as 0
// so NaN never propagates. An empty result means no aspect data was
// discoverable.
func AverageVector(interactions []Interaction) AspectVector {
	if len(interactions) == 0 {
		return AspectVector{}
	}

	sums := make(AspectVector)
	for _, in := range interactions {
		for key, val := range in.Aspects {
			if !isFinite(val) {
				val = 0
			}
			sums[key] += val
		}
	}

	n := float64(len(interactions))
	for key := range sums {
		sums[key] /= n
	}
	return sums
}

// CosineSimilarity computes cosine similarity over the union of both key
// sets, with missing keys treated as 0. Returns exactly 0 when either norm
// is 0, never NaN or Inf.
func CosineSimilarity(a, b AspectVector) float64 {
	var dot, normA, normB float64

	for key, av := range a {
		if !isFinite(av) {
			av = 0
		}
		bv := b[key]
		if !isFinite(bv) {
			bv = 0
		}
		dot += av * bv
		normA += av * av
	}
	// Keys missing from a contribute 0 to the dot product but still count
	// toward b's norm.
	for _, bv := range b {
		if !isFinite(bv) {
			bv = 0
		}
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopAspects returns the up-to-3 highest-valued aspect names of the vector,
// stripped of the "_score" suffix. Ties are broken by name ascending so the
// annotation is deterministic.
func TopAspects(v AspectVector) []string {
	type kv struct {
		key string
		val float64
	}
	pairs := make([]kv, 0, len(v))
	for key, val := range v {
		if !isFinite(val) || val <= 0 {
			continue
		}
		pairs = append(pairs, kv{key: key, val: val})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].val != pairs[j].val {
			return pairs[i].val > pairs[j].val
		}
		return pairs[i].key < pairs[j].key
	})

	limit := 3
	if len(pairs) < limit {
		limit = len(pairs)
	}
	names := make([]string, 0, limit)
	for _, p := range pairs[:limit] {
		names = append(names, strings.TrimSuffix(p.key, aspectSuffix))
	}
	return names
}

// BuildUserProfile derives the transient per-request profile for a user from
// their interactions.
func BuildUserProfile(userID string, interactions []Interaction, d Demographics) UserProfile {
	interacted := make(map[string]struct{}, len(interactions))
	for _, in := range interactions {
		interacted[in.ItemID] = struct{}{}
	}
	return UserProfile{
		UserID:       userID,
		Vector:       AverageVector(interactions),
		Demographics: d,
		Interacted:   interacted,
	}
}

// Round6 rounds to 6 decimal places, the precision reported for scores and
// similarities.
func Round6(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return math.Round(x*1e6) / 1e6
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
