// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package database

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/shoprec/shoprec/internal/logging"
)

// Raw JSONL records are validated into typed rows at the ingestion edge;
// scoring code never sees field-name conventions. Malformed lines are
// skipped and counted, never aborting the batch.

// aspectFieldSuffix marks open-ended numeric aspect attributes in raw
// review records.
const aspectFieldSuffix = "_score"

// maxLineBytes caps a single JSONL line; longer lines are malformed.
const maxLineBytes = 4 << 20

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Reviews  int
	Users    int
	Likes    int
	Metadata int
	Skipped  int
}

// IngestAll loads every configured JSONL source. Missing files are skipped
// silently so the service can start against a partial dataset.
func (db *DB) IngestAll(ctx context.Context) (IngestStats, error) {
	var stats IngestStats

	sources := []struct {
		path string
		load func(ctx context.Context, path string, stats *IngestStats) error
	}{
		{db.cfg.ReviewsPath, db.ingestReviews},
		{db.cfg.UsersPath, db.ingestUsers},
		{db.cfg.LikesPath, db.ingestLikes},
		{db.cfg.MetadataPath, db.ingestMetadata},
	}

	for _, src := range sources {
		if src.path == "" {
			continue
		}
		if _, err := os.Stat(src.path); err != nil {
			logging.Warn().Str("path", src.path).Msg("data source missing, skipping")
			continue
		}
		if err := src.load(ctx, src.path, &stats); err != nil {
			return stats, err
		}
	}

	logging.Info().
		Int("reviews", stats.Reviews).
		Int("users", stats.Users).
		Int("likes", stats.Likes).
		Int("metadata", stats.Metadata).
		Int("skipped", stats.Skipped).
		Msg("data ingestion complete")
	return stats, nil
}

// forEachLine streams a JSONL file, passing each non-empty line to handle.
// handle returns false for a malformed line, which is counted and skipped.
func forEachLine(ctx context.Context, path string, stats *IngestStats, handle func(line []byte) bool) error {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer closeQuietly(f)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !handle(line) {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// reviewRow is the validated form of one raw review line.
type reviewRow struct {
	UserID  string
	ASIN    string
	Rating  float64
	Aspects map[string]float64
}

// parseReviewLine validates a raw review record. The aspect key set is
// open-ended: any top-level numeric field suffixed "_score" is collected.
func parseReviewLine(line []byte) (reviewRow, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return reviewRow{}, false
	}

	row := reviewRow{
		UserID: stringField(raw, "user_id", "reviewerID"),
		ASIN:   stringField(raw, "asin", "item_id"),
	}
	if row.UserID == "" || row.ASIN == "" {
		return reviewRow{}, false
	}

	rating, ok := numericField(raw, "overall", "rating")
	if !ok {
		return reviewRow{}, false
	}
	row.Rating = rating

	row.Aspects = make(map[string]float64)
	for key, val := range raw {
		if !strings.HasSuffix(key, aspectFieldSuffix) {
			continue
		}
		if num, numOK := toFinite(val); numOK {
			row.Aspects[key] = num
		}
	}
	return row, true
}

func (db *DB) ingestReviews(ctx context.Context, path string, stats *IngestStats) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reviews ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reviews (user_id, asin, rating, aspects) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reviews insert: %w", err)
	}
	defer closeQuietly(stmt)

	err = forEachLine(ctx, path, stats, func(line []byte) bool {
		row, ok := parseReviewLine(line)
		if !ok {
			return false
		}
		aspects, marshalErr := json.Marshal(row.Aspects)
		if marshalErr != nil {
			return false
		}
		if _, execErr := stmt.ExecContext(ctx, row.UserID, row.ASIN, row.Rating, string(aspects)); execErr != nil {
			logging.Debug().Err(execErr).Msg("review insert failed, skipping row")
			return false
		}
		stats.Reviews++
		return true
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// userRow is the validated form of one raw user line. Liked products may be
// embedded in the user record.
type userRow struct {
	UserID   string
	AgeGroup string
	Gender   string
	Location string
	Liked    []string
}

func parseUserLine(line []byte) (userRow, bool) {
	var raw struct {
		UserID   string   `json:"user_id"`
		AgeGroup string   `json:"age_group"`
		Gender   string   `json:"gender"`
		Location string   `json:"location"`
		Liked    []string `json:"liked_products"`
	}
	if err := json.Unmarshal(line, &raw); err != nil || raw.UserID == "" {
		return userRow{}, false
	}
	return userRow{
		UserID:   raw.UserID,
		AgeGroup: raw.AgeGroup,
		Gender:   raw.Gender,
		Location: raw.Location,
		Liked:    raw.Liked,
	}, true
}

func (db *DB) ingestUsers(ctx context.Context, path string, stats *IngestStats) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin users ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	userStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO users (user_id, age_group, gender, location) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare users insert: %w", err)
	}
	defer closeQuietly(userStmt)

	likeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO likes (user_id, asin) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare likes insert: %w", err)
	}
	defer closeQuietly(likeStmt)

	err = forEachLine(ctx, path, stats, func(line []byte) bool {
		row, ok := parseUserLine(line)
		if !ok {
			return false
		}
		if _, execErr := userStmt.ExecContext(ctx, row.UserID, row.AgeGroup, row.Gender, row.Location); execErr != nil {
			logging.Debug().Err(execErr).Msg("user insert failed, skipping row")
			return false
		}
		stats.Users++
		for _, asin := range row.Liked {
			if asin == "" {
				continue
			}
			if _, execErr := likeStmt.ExecContext(ctx, row.UserID, asin); execErr == nil {
				stats.Likes++
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) ingestLikes(ctx context.Context, path string, stats *IngestStats) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin likes ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO likes (user_id, asin) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare likes insert: %w", err)
	}
	defer closeQuietly(stmt)

	err = forEachLine(ctx, path, stats, func(line []byte) bool {
		var raw struct {
			UserID string `json:"user_id"`
			ASIN   string `json:"asin"`
		}
		if err := json.Unmarshal(line, &raw); err != nil || raw.UserID == "" || raw.ASIN == "" {
			return false
		}
		if _, execErr := stmt.ExecContext(ctx, raw.UserID, raw.ASIN); execErr != nil {
			return false
		}
		stats.Likes++
		return true
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// metadataRow is the validated form of one raw catalog line.
type metadataRow struct {
	ASIN          string
	ParentASIN    string
	Title         string
	Price         float64
	Category      string
	AverageRating float64
	Images        []string
}

func parseMetadataLine(line []byte) (metadataRow, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return metadataRow{}, false
	}

	row := metadataRow{
		ASIN:       stringField(raw, "asin"),
		ParentASIN: stringField(raw, "parent_asin"),
		Title:      stringField(raw, "title"),
		Category:   stringField(raw, "category", "main_category"),
	}
	if row.ASIN == "" {
		return metadataRow{}, false
	}
	// Prices arrive as numbers or strings like "$13.99".
	if price, ok := numericField(raw, "price"); ok {
		row.Price = price
	}
	if avg, ok := numericField(raw, "average_rating"); ok {
		row.AverageRating = avg
	}
	if imgs, ok := raw["images"].([]interface{}); ok {
		for _, img := range imgs {
			switch v := img.(type) {
			case string:
				if v != "" {
					row.Images = append(row.Images, v)
				}
			case map[string]interface{}:
				if url := stringField(v, "large", "thumb", "hi_res"); url != "" {
					row.Images = append(row.Images, url)
				}
			}
		}
	}
	return row, true
}

func (db *DB) ingestMetadata(ctx context.Context, path string, stats *IngestStats) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO metadata (asin, parent_asin, title, price, category, average_rating, images)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare metadata insert: %w", err)
	}
	defer closeQuietly(stmt)

	err = forEachLine(ctx, path, stats, func(line []byte) bool {
		row, ok := parseMetadataLine(line)
		if !ok {
			return false
		}
		images, marshalErr := json.Marshal(row.Images)
		if marshalErr != nil {
			return false
		}
		if _, execErr := stmt.ExecContext(ctx, row.ASIN, row.ParentASIN, row.Title,
			row.Price, row.Category, row.AverageRating, string(images)); execErr != nil {
			logging.Debug().Err(execErr).Msg("metadata insert failed, skipping row")
			return false
		}
		stats.Metadata++
		return true
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// stringField returns the first non-empty string value among the keys.
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numericField returns the first parseable finite number among the keys.
func numericField(raw map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		if val, present := raw[key]; present {
			if num, ok := toFinite(val); ok {
				return num, true
			}
		}
	}
	return 0, false
}

// toFinite coerces JSON numbers and numeric strings (with an optional
// leading currency sign) to a finite float64.
func toFinite(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
		if s == "" {
			return 0, false
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}
