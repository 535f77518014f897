// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/metrics"
)

// run is the live handle of an in-flight job. The persisted state may claim
// running without a live handle after a restart; the handle is what the
// liveness probe checks.
type run struct {
	id   string
	mode Mode
	done chan struct{}
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Manager owns the job state machine. All state transitions go through its
// mutex, closing the check-then-write race between concurrent starts.
type Manager struct {
	cfg    config.JobsConfig
	store  *StateStore
	data   DataSource
	models ModelWriter
	logger zerolog.Logger

	// onSuccess runs after a successful refresh, e.g. cache invalidation.
	onSuccess func()

	mu      sync.Mutex
	current *run

	// execute performs one job run; replaced in tests.
	execute func(ctx context.Context, mode Mode) error

	// likeWeight and reviewWeight feed the infer-only popularity recompute.
	likeWeight   float64
	reviewWeight float64
}

// NewManager creates the orchestrator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewManager(cfg config.JobsConfig, rec config.RecommendConfig, store *StateStore, data DataSource, models ModelWriter, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:          cfg,
		store:        store,
		data:         data,
		models:       models,
		logger:       logger.With().Str("component", "jobs").Logger(),
		likeWeight:   rec.LikeWeight,
		reviewWeight: rec.ReviewWeight,
	}
	m.execute = m.executeJob
	return m
}

// OnSuccess registers a callback invoked after every successful job.
func (m *Manager) OnSuccess(fn func()) {
	m.onSuccess = fn
}

// StartJob launches a background refresh and returns its initial state
// immediately. Refuses with ErrAlreadyRunning while a job is in flight.
func (m *Manager) StartJob(ctx context.Context, mode Mode) (JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.store.State(ctx)
	if err != nil {
		return JobState{}, err
	}
	if state.Status == StatusRunning {
		if m.liveLocked(state) {
			metrics.JobRejections.Inc()
			return state, ErrAlreadyRunning
		}
		// Orphaned running record, correct it and proceed.
		if state, err = m.healLocked(ctx, state); err != nil {
			return JobState{}, err
		}
	}

	now := time.Now().UTC()
	state = JobState{
		Status:    StatusRunning,
		JobID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: now,
		Heartbeat: now,
	}
	if err := m.store.SetState(ctx, state); err != nil {
		return JobState{}, err
	}

	r := &run{id: state.JobID, mode: mode, done: make(chan struct{})}
	m.current = r
	metrics.JobStarts.WithLabelValues(string(mode)).Inc()
	m.logger.Info().Str("job_id", r.id).Str("mode", string(mode)).Msg("job started")

	go m.runJob(r)
	return state, nil
}

// runJob executes one job to completion and records the outcome. The job
// itself is not cancellable once launched; a hang is only surfaced by the
// heartbeat going stale.
func (m *Manager) runJob(r *run) {
	ctx := context.Background()
	if m.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.JobTimeout)
		defer cancel()
	}

	stopBeat := m.startHeartbeat(r)
	start := time.Now()
	err := m.execute(ctx, r.mode)
	stopBeat()
	close(r.done)

	m.onJobExit(r, err, time.Since(start))
}

// onJobExit persists the terminal state and, on success, resets counters
// and notifies listeners.
func (m *Manager) onJobExit(r *run, jobErr error, elapsed time.Duration) {
	ctx := context.Background()
	outcome := StatusSuccess
	message := ""
	if jobErr != nil {
		outcome = StatusFailed
		message = jobErr.Error()
	}

	m.mu.Lock()
	_, err := m.store.UpdateState(ctx, func(s *JobState) {
		if s.JobID != r.id {
			// A later start already replaced this record.
			return
		}
		now := time.Now().UTC()
		s.Status = outcome
		s.FinishedAt = &now
		s.Message = message
	})
	if m.current == r {
		m.current = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error().Err(err).Str("job_id", r.id).Msg("persisting job outcome failed")
	}
	metrics.RecordJobOutcome(string(r.mode), string(outcome), elapsed)

	if outcome == StatusFailed {
		m.logger.Error().Err(jobErr).Str("job_id", r.id).Dur("elapsed", elapsed).Msg("job failed")
		return
	}

	m.logger.Info().Str("job_id", r.id).Dur("elapsed", elapsed).Msg("job succeeded")
	// Only a successful refresh re-arms the auto-trigger.
	if err := m.store.ResetCounters(ctx); err != nil {
		m.logger.Error().Err(err).Msg("resetting counters failed")
	} else {
		metrics.PendingInteractions.Set(0)
	}
	if m.onSuccess != nil {
		m.onSuccess()
	}
}

// startHeartbeat refreshes the persisted heartbeat while the job runs.
func (m *Manager) startHeartbeat(r *run) (stop func()) {
	interval := m.cfg.HeartbeatTimeout / 4
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	stopped := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				_, err := m.store.UpdateState(context.Background(), func(s *JobState) {
					if s.JobID == r.id && s.Status == StatusRunning {
						s.Heartbeat = time.Now().UTC()
					}
				})
				if err != nil {
					m.logger.Warn().Err(err).Msg("heartbeat update failed")
				}
			case <-stopped:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stopped)
	}
}

// Status returns the current job state, self-healing an orphaned running
// record whose job has no live handle or a stale heartbeat.
func (m *Manager) Status(ctx context.Context) (JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.store.State(ctx)
	if err != nil {
		return JobState{}, err
	}
	if state.Status != StatusRunning || m.liveLocked(state) {
		return state, nil
	}
	return m.healLocked(ctx, state)
}

// liveLocked reports whether the persisted running record has a live,
// healthy job behind it. Caller holds m.mu.
func (m *Manager) liveLocked(state JobState) bool {
	if m.current == nil || m.current.id != state.JobID || m.current.finished() {
		return false
	}
	if m.cfg.HeartbeatTimeout > 0 && !state.Heartbeat.IsZero() &&
		time.Since(state.Heartbeat) > m.cfg.HeartbeatTimeout {
		return false
	}
	return true
}

// healLocked corrects an orphaned running record to failed. Idempotent:
// repeated calls observe the already-corrected state. Caller holds m.mu.
func (m *Manager) healLocked(ctx context.Context, state JobState) (JobState, error) {
	m.logger.Warn().Str("job_id", state.JobID).Msg("running job has no live handle, marking failed")
	healed, err := m.store.UpdateState(ctx, func(s *JobState) {
		if s.Status != StatusRunning || s.JobID != state.JobID {
			return
		}
		now := time.Now().UTC()
		s.Status = StatusFailed
		s.FinishedAt = &now
		s.Message = MsgProcessNotFound
	})
	if err != nil {
		return JobState{}, err
	}
	if m.current != nil && m.current.id == state.JobID {
		m.current = nil
	}
	return healed, nil
}

// IncrementCounters bumps the interaction tally and starts an automatic
// infer run when pending reaches the configured threshold. A refused start
// (job already running) is not an error for the caller.
func (m *Manager) IncrementCounters(ctx context.Context, kind CounterKind, amount int) (Counters, error) {
	counters, err := m.store.IncrementCounters(ctx, kind, amount)
	if err != nil {
		return Counters{}, err
	}
	metrics.PendingInteractions.Set(float64(counters.Pending))

	if m.cfg.AutoTriggerThreshold > 0 && counters.Pending >= m.cfg.AutoTriggerThreshold {
		if _, startErr := m.StartJob(ctx, ModeInfer); startErr != nil {
			if errors.Is(startErr, ErrAlreadyRunning) {
				return counters, nil
			}
			m.logger.Error().Err(startErr).Msg("auto-triggered job start failed")
		} else {
			m.logger.Info().Int("pending", counters.Pending).Msg("auto-triggered model refresh")
		}
	}
	return counters, nil
}

// Counters returns the persisted interaction tally.
func (m *Manager) Counters(ctx context.Context) (Counters, error) {
	return m.store.Counters(ctx)
}

// ResetCounters zeroes the tally on explicit admin request.
func (m *Manager) ResetCounters(ctx context.Context) error {
	if err := m.store.ResetCounters(ctx); err != nil {
		return err
	}
	metrics.PendingInteractions.Set(0)
	return nil
}

// CleanStaleEntries prunes precomputed lists for users no longer present in
// the user store and reports how many were removed.
func (m *Manager) CleanStaleEntries(ctx context.Context) (int, error) {
	liveIDs, err := m.data.AllUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	return m.models.DeleteStale(ctx, liveIDs)
}
