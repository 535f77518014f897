// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package recommend implements the hybrid recommendation core: aspect-profile
// content scoring, the tiered cold-start resolution chain, and the gate that
// decides between a precomputed external model and live scoring.
//
// The package has no dependencies on other internal packages. Data access
// goes through the DataProvider interface and precomputed model reads go
// through the ModelStore interface, both implemented by the storage layers.
//
// The serving path is read-only and safe for concurrent requests: every
// request builds its own transient user profile. The only shared mutable
// state is the scorer's item-profile snapshot and the response cache, both
// guarded internally.
package recommend
