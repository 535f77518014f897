// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/shoprec/shoprec/internal/logging"
	"github.com/shoprec/shoprec/internal/metrics"
	"github.com/shoprec/shoprec/internal/recommend"
)

// likeRating is the implicit rating carried by a like signal.
const likeRating = 4.0

// UserInteractions returns all interactions for a user, reviews first.
func (db *DB) UserInteractions(ctx context.Context, userID string) ([]recommend.Interaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	reviews, err := db.queryReviewInteractions(ctx,
		`SELECT user_id, asin, rating, aspects FROM reviews WHERE user_id = ?`, userID)
	metrics.RecordDBQuery("user_reviews", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	likes, err := db.queryLikeInteractions(ctx,
		`SELECT user_id, asin FROM likes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return append(reviews, likes...), nil
}

// ReviewInteractions returns every review interaction for item-profile
// building.
func (db *DB) ReviewInteractions(ctx context.Context) ([]recommend.Interaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	interactions, err := db.queryReviewInteractions(ctx,
		`SELECT user_id, asin, rating, aspects FROM reviews`)
	metrics.RecordDBQuery("all_reviews", time.Since(start), err)
	return interactions, err
}

// AllInteractions returns every review and like interaction, used by the
// infer-only recompute. Likes carry the implicit rating.
func (db *DB) AllInteractions(ctx context.Context) ([]recommend.Interaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	reviews, err := db.queryReviewInteractions(ctx,
		`SELECT user_id, asin, rating, aspects FROM reviews`)
	if err != nil {
		return nil, err
	}
	likes, err := db.queryLikeInteractions(ctx, `SELECT user_id, asin FROM likes`)
	if err != nil {
		return nil, err
	}
	return append(reviews, likes...), nil
}

func (db *DB) queryReviewInteractions(ctx context.Context, query string, args ...interface{}) ([]recommend.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer closeQuietly(rows)

	var interactions []recommend.Interaction
	for rows.Next() {
		var (
			userID  string
			asin    string
			rating  float64
			aspects sql.NullString
		)
		if err := rows.Scan(&userID, &asin, &rating, &aspects); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}

		in := recommend.Interaction{
			UserID: userID,
			ItemID: asin,
			Rating: rating,
			Source: recommend.SourceReview,
		}
		if aspects.Valid && aspects.String != "" {
			var vec recommend.AspectVector
			if err := json.Unmarshal([]byte(aspects.String), &vec); err != nil {
				// Corrupt aspect payloads degrade to an aspect-free review.
				logging.Debug().Str("asin", asin).Msg("corrupt aspect payload, ignoring aspects")
			} else if len(vec) > 0 {
				in.Aspects = vec
			}
		}
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

func (db *DB) queryLikeInteractions(ctx context.Context, query string, args ...interface{}) ([]recommend.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query likes: %w", err)
	}
	defer closeQuietly(rows)

	var interactions []recommend.Interaction
	for rows.Next() {
		var userID, asin string
		if err := rows.Scan(&userID, &asin); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		interactions = append(interactions, recommend.Interaction{
			UserID: userID,
			ItemID: asin,
			Rating: likeRating,
			Source: recommend.SourceLike,
		})
	}
	return interactions, rows.Err()
}

// CountUserInteractions returns reviews + likes for a user.
func (db *DB) CountUserInteractions(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reviews WHERE user_id = ?) +
			(SELECT COUNT(*) FROM likes WHERE user_id = ?)`,
		userID, userID).Scan(&count)
	metrics.RecordDBQuery("count_interactions", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return count, nil
}

// UserDemographics returns a user's demographic attributes and existence.
func (db *DB) UserDemographics(ctx context.Context, userID string) (recommend.Demographics, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d recommend.Demographics
	err := db.conn.QueryRowContext(ctx,
		`SELECT age_group, gender, location FROM users WHERE user_id = ?`, userID).
		Scan(&d.AgeGroup, &d.Gender, &d.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return recommend.Demographics{}, false, nil
	}
	if err != nil {
		return recommend.Demographics{}, false, fmt.Errorf("query demographics: %w", err)
	}
	return d, true, nil
}

// CohortUserIDs returns users sharing demographic attributes with the given
// demographics, excluding the user themselves. matchAll requires all three
// attributes to match exactly; otherwise any one non-empty attribute match
// qualifies.
func (db *DB) CohortUserIDs(ctx context.Context, userID string, d recommend.Demographics, matchAll bool) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var query string
	if matchAll {
		query = `SELECT user_id FROM users
			WHERE user_id != ? AND age_group = ? AND gender = ? AND location = ?
			ORDER BY user_id`
	} else {
		query = `SELECT user_id FROM users
			WHERE user_id != ? AND (
				(age_group = ? AND age_group != '') OR
				(gender = ? AND gender != '') OR
				(location = ? AND location != ''))
			ORDER BY user_id`
	}

	rows, err := db.conn.QueryContext(ctx, query, userID, d.AgeGroup, d.Gender, d.Location)
	if err != nil {
		return nil, fmt.Errorf("query cohort: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cohort user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CohortPopularity scores items liked or reviewed by the cohort, likeWeight
// per like plus reviewWeight per review, descending with ties by item ID.
func (db *DB) CohortPopularity(ctx context.Context, userIDs []string, likeWeight, reviewWeight float64, limit int) ([]recommend.PopularItem, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	query := fmt.Sprintf(`
		SELECT asin,
		       SUM(weight) AS score,
		       SUM(CASE WHEN source = 'review' THEN 1 ELSE 0 END) AS review_count
		FROM (
			SELECT asin, CAST(? AS DOUBLE) AS weight, 'like' AS source
			FROM likes WHERE user_id IN (%[1]s)
			UNION ALL
			SELECT asin, CAST(? AS DOUBLE) AS weight, 'review' AS source
			FROM reviews WHERE user_id IN (%[1]s)
		)
		GROUP BY asin
		ORDER BY score DESC, asin ASC
		LIMIT ?`, placeholders)

	args := make([]interface{}, 0, 2*len(userIDs)+3)
	args = append(args, likeWeight)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, reviewWeight)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("cohort_popularity", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query cohort popularity: %w", err)
	}
	defer closeQuietly(rows)

	return scanPopularItems(rows)
}

// GlobalMostReviewed returns items ranked by review count descending, ties
// by item ID ascending.
func (db *DB) GlobalMostReviewed(ctx context.Context, limit int) ([]recommend.PopularItem, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT asin, CAST(COUNT(*) AS DOUBLE) AS score, COUNT(*) AS review_count
		FROM reviews
		GROUP BY asin
		ORDER BY review_count DESC, asin ASC
		LIMIT ?`, limit)
	metrics.RecordDBQuery("global_most_reviewed", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query global popularity: %w", err)
	}
	defer closeQuietly(rows)

	return scanPopularItems(rows)
}

func scanPopularItems(rows *sql.Rows) ([]recommend.PopularItem, error) {
	var items []recommend.PopularItem
	for rows.Next() {
		var item recommend.PopularItem
		if err := rows.Scan(&item.ItemID, &item.Score, &item.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan popular item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ItemMetadata resolves catalog metadata for the given item IDs. A catalog
// row is registered under its parent identifier first and under its own
// asin only when that key is still free, so variant groups resolve to one
// canonical record.
func (db *DB) ItemMetadata(ctx context.Context, itemIDs []string) (map[string]recommend.ItemMetadata, error) {
	if len(itemIDs) == 0 {
		return map[string]recommend.ItemMetadata{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	start := time.Now()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	query := fmt.Sprintf(`
		SELECT asin, parent_asin, title, price, category, average_rating, images
		FROM metadata
		WHERE parent_asin IN (%[1]s) OR asin IN (%[1]s)`, placeholders)

	args := make([]interface{}, 0, 2*len(itemIDs))
	for _, id := range itemIDs {
		args = append(args, id)
	}
	for _, id := range itemIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("item_metadata", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer closeQuietly(rows)

	requested := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		requested[id] = struct{}{}
	}

	result := make(map[string]recommend.ItemMetadata)
	type pending struct {
		asin string
		meta recommend.ItemMetadata
	}
	var byASIN []pending

	for rows.Next() {
		var (
			asin, parent string
			meta         recommend.ItemMetadata
			images       sql.NullString
		)
		if err := rows.Scan(&asin, &parent, &meta.Title, &meta.Price, &meta.Category, &meta.AverageRating, &images); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		if images.Valid && images.String != "" {
			// Corrupt image payloads degrade to an image-less entry.
			_ = json.Unmarshal([]byte(images.String), &meta.Images)
		}

		// First successful key wins: parent registrations take priority.
		if _, want := requested[parent]; want && parent != "" {
			if _, taken := result[parent]; !taken {
				result[parent] = meta
			}
		}
		if _, want := requested[asin]; want {
			byASIN = append(byASIN, pending{asin: asin, meta: meta})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range byASIN {
		if _, taken := result[p.asin]; !taken {
			result[p.asin] = p.meta
		}
	}
	return result, nil
}

// AllUserIDs returns every user identity in the user store. Used to prune
// stale precomputed-model entries.
func (db *DB) AllUserIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordLike stores a like signal.
func (db *DB) RecordLike(ctx context.Context, userID, asin string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO likes (user_id, asin) VALUES (?, ?)`, userID, asin); err != nil {
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

// RecordReview stores a review signal with its aspect scores.
func (db *DB) RecordReview(ctx context.Context, userID, asin string, rating float64, aspects recommend.AspectVector) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	payload, err := json.Marshal(aspects)
	if err != nil {
		return fmt.Errorf("marshal aspects: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (user_id, asin, rating, aspects) VALUES (?, ?, ?, ?)`,
		userID, asin, rating, string(payload)); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}
