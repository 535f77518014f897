// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package recmodel stores the precomputed per-user recommendation lists
// produced by the heavyweight external model. The store is the read side of
// the model gate and the write side of background recompute jobs.
package recmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/recommend"
)

// recsKeyPrefix namespaces per-user recommendation lists in BadgerDB.
const recsKeyPrefix = "recs:"

// Store is a BadgerDB-backed precomputed-model store. Safe for concurrent
// use; Badger serializes writes internally.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewStore wraps an open BadgerDB handle.
func NewStore(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "recmodel").Logger(),
	}
}

// UserRecommendations returns the precomputed list for a user. A missing or
// corrupt entry reports found=false; err is reserved for store failures.
func (s *Store) UserRecommendations(ctx context.Context, userID string) ([]recommend.Entry, bool, error) {
	var entries []recommend.Entry
	corrupt := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err != nil {
			return fmt.Errorf("get recommendations: %w", err)
		}
		return item.Value(func(val []byte) error {
			if unmarshalErr := json.Unmarshal(val, &entries); unmarshalErr != nil {
				// A corrupt value is indistinguishable from a miss to the
				// caller; the next recompute overwrites it.
				corrupt = true
				s.logger.Warn().Err(unmarshalErr).Str("user_id", userID).
					Msg("corrupt precomputed entry, treating as miss")
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if corrupt {
		return nil, false, nil
	}
	return entries, true, nil
}

// PutUserRecommendations stores (or replaces) the precomputed list for a
// user.
func (s *Store) PutUserRecommendations(ctx context.Context, userID string, entries []recommend.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), data)
	})
}

// PutAll stores lists for many users in batched writes.
func (s *Store) PutAll(ctx context.Context, lists map[string][]recommend.Entry) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for userID, entries := range lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshal recommendations for %s: %w", userID, err)
		}
		if err := wb.Set(userKey(userID), data); err != nil {
			return fmt.Errorf("batch set for %s: %w", userID, err)
		}
	}
	return wb.Flush()
}

// UserIDs returns every user ID with a stored list.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recsKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			ids = append(ids, string(key[len(recsKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a user's stored list. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(userKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// DeleteStale removes stored lists whose user no longer exists in the user
// store and returns how many were removed.
func (s *Store) DeleteStale(ctx context.Context, liveUserIDs []string) (int, error) {
	live := make(map[string]struct{}, len(liveUserIDs))
	for _, id := range liveUserIDs {
		live[id] = struct{}{}
	}

	stored, err := s.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range stored {
		if _, ok := live[id]; ok {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			return removed, fmt.Errorf("delete stale entry %s: %w", id, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("pruned stale precomputed entries")
	}
	return removed, nil
}

func userKey(userID string) []byte {
	return []byte(recsKeyPrefix + userID)
}
