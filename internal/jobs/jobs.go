// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package jobs orchestrates background model-refresh jobs: a persisted
// single-writer state machine, interaction counters with an auto-trigger
// threshold, and the infer-only recompute that refreshes the precomputed
// model store.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/shoprec/shoprec/internal/recommend"
)

// Status is the lifecycle state of the singleton refresh job.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Mode selects between a full retrain and the lightweight infer-only run.
type Mode string

const (
	ModeTrain Mode = "train"
	ModeInfer Mode = "infer"
)

// Counter kinds accepted by IncrementCounters.
type CounterKind string

const (
	CounterLike   CounterKind = "like"
	CounterReview CounterKind = "review"
)

// MsgProcessNotFound is recorded when a persisted running job has no live
// handle, e.g. after a host restart.
const MsgProcessNotFound = "process_not_found"

// ErrAlreadyRunning is returned when a job start is refused because one is
// already in flight.
var ErrAlreadyRunning = errors.New("a refresh job is already running")

// JobState is the persisted singleton job record. Mutated only by the
// Manager.
type JobState struct {
	Status     Status     `json:"status"`
	JobID      string     `json:"job_id,omitempty"`
	Mode       Mode       `json:"mode,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Heartbeat  time.Time  `json:"heartbeat"`
	Message    string     `json:"message,omitempty"`
}

// Counters is the persisted interaction tally since the last successful
// refresh.
type Counters struct {
	Pending int `json:"pending"`
	Likes   int `json:"likes"`
	Reviews int `json:"reviews"`
}

// DataSource is the bulk read view the recompute needs. Implemented by the
// database layer.
type DataSource interface {
	AllInteractions(ctx context.Context) ([]recommend.Interaction, error)
	AllUserIDs(ctx context.Context) ([]string, error)
	ItemMetadata(ctx context.Context, itemIDs []string) (map[string]recommend.ItemMetadata, error)
}

// ModelWriter is the write side of the precomputed model store. Implemented
// by the recmodel layer.
type ModelWriter interface {
	PutAll(ctx context.Context, lists map[string][]recommend.Entry) error
	DeleteStale(ctx context.Context, liveUserIDs []string) (int, error)
}
