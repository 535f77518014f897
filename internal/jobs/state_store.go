// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Keys for the two persisted singletons.
const (
	jobStateKey = "job:status"
	countersKey = "job:counters"
)

// StateStore persists the job state and interaction counters in BadgerDB.
// Every read-modify-write runs inside a single Badger update transaction so
// concurrent increments never lose updates.
type StateStore struct {
	db *badger.DB
}

// NewStateStore wraps an open BadgerDB handle.
func NewStateStore(db *badger.DB) *StateStore {
	return &StateStore{db: db}
}

// State returns the persisted job state. A missing or corrupt record
// degrades to idle.
func (s *StateStore) State(ctx context.Context) (JobState, error) {
	state := JobState{Status: StatusIdle}
	err := s.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, jobStateKey, &state)
	})
	if err != nil {
		return JobState{Status: StatusIdle}, err
	}
	if state.Status == "" {
		state.Status = StatusIdle
	}
	return state, nil
}

// SetState overwrites the persisted job state.
func (s *StateStore) SetState(ctx context.Context, state JobState) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return writeJSON(txn, jobStateKey, state)
	})
}

// UpdateState applies fn to the persisted state inside one transaction.
func (s *StateStore) UpdateState(ctx context.Context, fn func(*JobState)) (JobState, error) {
	var state JobState
	err := s.db.Update(func(txn *badger.Txn) error {
		state = JobState{Status: StatusIdle}
		if err := readJSON(txn, jobStateKey, &state); err != nil {
			return err
		}
		if state.Status == "" {
			state.Status = StatusIdle
		}
		fn(&state)
		return writeJSON(txn, jobStateKey, state)
	})
	return state, err
}

// Counters returns the persisted interaction counters. Missing or corrupt
// records degrade to zero.
func (s *StateStore) Counters(ctx context.Context) (Counters, error) {
	var counters Counters
	err := s.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, countersKey, &counters)
	})
	if err != nil {
		return Counters{}, err
	}
	return counters, nil
}

// IncrementCounters bumps pending plus the kind-specific tally atomically
// and returns the post-increment counters.
func (s *StateStore) IncrementCounters(ctx context.Context, kind CounterKind, amount int) (Counters, error) {
	var counters Counters
	err := s.db.Update(func(txn *badger.Txn) error {
		counters = Counters{}
		if err := readJSON(txn, countersKey, &counters); err != nil {
			return err
		}
		counters.Pending += amount
		switch kind {
		case CounterLike:
			counters.Likes += amount
		case CounterReview:
			counters.Reviews += amount
		default:
			return fmt.Errorf("unknown counter kind %q", kind)
		}
		return writeJSON(txn, countersKey, counters)
	})
	return counters, err
}

// ResetCounters zeroes all counters.
func (s *StateStore) ResetCounters(ctx context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return writeJSON(txn, countersKey, Counters{})
	})
}

// readJSON decodes the value at key into out. A missing key or corrupt
// value leaves out at its zero value; corruption is tolerated, not fatal.
func readJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		// A corrupt record degrades to the zero value.
		_ = json.Unmarshal(val, out)
		return nil
	})
}

func writeJSON(txn *badger.Txn, key string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}
