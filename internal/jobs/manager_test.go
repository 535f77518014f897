// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/recommend"
)

type fakeSource struct {
	interactions []recommend.Interaction
	userIDs      []string
	metadata     map[string]recommend.ItemMetadata
	err          error
}

func (f *fakeSource) AllInteractions(ctx context.Context) ([]recommend.Interaction, error) {
	return f.interactions, f.err
}

func (f *fakeSource) AllUserIDs(ctx context.Context) ([]string, error) {
	return f.userIDs, f.err
}

func (f *fakeSource) ItemMetadata(ctx context.Context, itemIDs []string) (map[string]recommend.ItemMetadata, error) {
	out := make(map[string]recommend.ItemMetadata)
	for _, id := range itemIDs {
		if m, ok := f.metadata[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type fakeModels struct {
	lists   map[string][]recommend.Entry
	removed int
}

func (f *fakeModels) PutAll(ctx context.Context, lists map[string][]recommend.Entry) error {
	f.lists = lists
	return nil
}

func (f *fakeModels) DeleteStale(ctx context.Context, liveUserIDs []string) (int, error) {
	return f.removed, nil
}

func testStateStore(t *testing.T) *StateStore {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("opening badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStateStore(db)
}

func testManager(t *testing.T, data DataSource, models ModelWriter) *Manager {
	t.Helper()
	if data == nil {
		data = &fakeSource{}
	}
	if models == nil {
		models = &fakeModels{}
	}
	cfg := config.JobsConfig{
		AutoTriggerThreshold: 10,
		HeartbeatTimeout:     time.Minute,
		JobTimeout:           time.Minute,
	}
	rec := config.RecommendConfig{LikeWeight: 3, ReviewWeight: 1}
	return NewManager(cfg, rec, testStateStore(t), data, models, zerolog.Nop())
}

// waitTerminal polls until the job state leaves running.
func waitTerminal(t *testing.T, m *Manager) JobState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := m.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if state.Status != StatusRunning {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return JobState{}
}

func TestStateStoreDefaults(t *testing.T) {
	store := testStateStore(t)
	ctx := context.Background()

	state, err := store.State(ctx)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Status != StatusIdle {
		t.Errorf("fresh status = %s, want idle", state.Status)
	}

	counters, err := store.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters failed: %v", err)
	}
	if counters != (Counters{}) {
		t.Errorf("fresh counters = %+v, want zero", counters)
	}
}

func TestStateStoreIncrementCounters(t *testing.T) {
	store := testStateStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.IncrementCounters(ctx, CounterLike, 1); err != nil {
			t.Fatalf("IncrementCounters failed: %v", err)
		}
	}
	counters, err := store.IncrementCounters(ctx, CounterReview, 2)
	if err != nil {
		t.Fatalf("IncrementCounters failed: %v", err)
	}
	if counters.Pending != 5 || counters.Likes != 3 || counters.Reviews != 2 {
		t.Errorf("counters = %+v, want pending 5 likes 3 reviews 2", counters)
	}

	if _, err := store.IncrementCounters(ctx, CounterKind("bogus"), 1); err == nil {
		t.Error("unknown counter kind must be rejected")
	}

	if err := store.ResetCounters(ctx); err != nil {
		t.Fatalf("ResetCounters failed: %v", err)
	}
	counters, _ = store.Counters(ctx)
	if counters != (Counters{}) {
		t.Errorf("counters after reset = %+v, want zero", counters)
	}
}

func TestStartJobRefusesSecondStart(t *testing.T) {
	m := testManager(t, nil, nil)
	release := make(chan struct{})
	m.execute = func(ctx context.Context, mode Mode) error {
		<-release
		return nil
	}
	ctx := context.Background()

	first, err := m.StartJob(ctx, ModeInfer)
	if err != nil {
		t.Fatalf("first StartJob failed: %v", err)
	}
	if first.Status != StatusRunning {
		t.Errorf("first start status = %s, want running", first.Status)
	}

	_, err = m.StartJob(ctx, ModeInfer)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second start err = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	state := waitTerminal(t, m)
	if state.Status != StatusSuccess {
		t.Errorf("terminal status = %s, want success", state.Status)
	}
	if state.FinishedAt == nil {
		t.Error("finished_at not recorded")
	}
}

func TestFailedJobRecordsMessage(t *testing.T) {
	m := testManager(t, nil, nil)
	m.execute = func(ctx context.Context, mode Mode) error {
		return errors.New("trainer exploded")
	}

	if _, err := m.StartJob(context.Background(), ModeTrain); err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	state := waitTerminal(t, m)
	if state.Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if state.Message != "trainer exploded" {
		t.Errorf("message = %q", state.Message)
	}
}

func TestAutoTriggerFiresOnce(t *testing.T) {
	m := testManager(t, nil, nil)
	var starts atomic.Int32
	release := make(chan struct{})
	m.execute = func(ctx context.Context, mode Mode) error {
		starts.Add(1)
		<-release
		return nil
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := m.IncrementCounters(ctx, CounterLike, 1); err != nil {
			t.Fatalf("IncrementCounters failed: %v", err)
		}
	}
	deadline := time.Now().Add(time.Second)
	for starts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Increments past the threshold while the job runs must not start more.
	for i := 0; i < 3; i++ {
		if _, err := m.IncrementCounters(ctx, CounterReview, 1); err != nil {
			t.Fatalf("IncrementCounters failed: %v", err)
		}
	}
	if got := starts.Load(); got != 1 {
		t.Errorf("job starts = %d, want exactly 1", got)
	}

	close(release)
	state := waitTerminal(t, m)
	if state.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", state.Status)
	}

	// Success resets the tally so ten more increments are needed.
	counters, err := m.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters failed: %v", err)
	}
	if counters.Pending != 0 {
		t.Errorf("pending after success = %d, want 0", counters.Pending)
	}
}

func TestFailedAutoTriggerKeepsCounters(t *testing.T) {
	m := testManager(t, nil, nil)
	m.execute = func(ctx context.Context, mode Mode) error {
		return errors.New("no data")
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := m.IncrementCounters(ctx, CounterLike, 1); err != nil {
			t.Fatalf("IncrementCounters failed: %v", err)
		}
	}
	state := waitTerminal(t, m)
	if state.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", state.Status)
	}

	counters, err := m.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters failed: %v", err)
	}
	if counters.Pending != 10 {
		t.Errorf("pending after failed job = %d, want 10 (not reset)", counters.Pending)
	}
}

func TestStatusSelfHealsOrphanedRunning(t *testing.T) {
	m := testManager(t, nil, nil)
	ctx := context.Background()

	// Simulate a record left behind by a dead process: persisted running
	// with no live handle in this Manager.
	err := m.store.SetState(ctx, JobState{
		Status:    StatusRunning,
		JobID:     "orphan",
		Mode:      ModeInfer,
		StartedAt: time.Now().Add(-time.Hour),
		Heartbeat: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seeding state failed: %v", err)
	}

	state, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if state.Message != MsgProcessNotFound {
		t.Errorf("message = %q, want %q", state.Message, MsgProcessNotFound)
	}

	// Repeated calls observe the corrected record unchanged.
	again, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("second Status failed: %v", err)
	}
	if again.Status != StatusFailed || again.Message != MsgProcessNotFound {
		t.Errorf("healing is not idempotent: %+v", again)
	}
}

func TestOrphanedRunningDoesNotBlockStart(t *testing.T) {
	m := testManager(t, nil, nil)
	m.execute = func(ctx context.Context, mode Mode) error { return nil }
	ctx := context.Background()

	if err := m.store.SetState(ctx, JobState{Status: StatusRunning, JobID: "orphan"}); err != nil {
		t.Fatalf("seeding state failed: %v", err)
	}

	state, err := m.StartJob(ctx, ModeInfer)
	if err != nil {
		t.Fatalf("StartJob over orphaned record failed: %v", err)
	}
	if state.Status != StatusRunning || state.JobID == "orphan" {
		t.Errorf("unexpected state after start: %+v", state)
	}
	waitTerminal(t, m)
}

func TestInferRecompute(t *testing.T) {
	data := &fakeSource{
		interactions: []recommend.Interaction{
			// popular: 2 likes + 1 review = 7 with weights 3/1.
			{UserID: "u1", ItemID: "popular", Source: recommend.SourceLike},
			{UserID: "u2", ItemID: "popular", Source: recommend.SourceLike},
			{UserID: "u3", ItemID: "popular", Rating: 5, Source: recommend.SourceReview},
			// mid: 1 like = 3.
			{UserID: "u2", ItemID: "mid", Source: recommend.SourceLike},
			// untitled: 2 likes = 6 but no catalog title.
			{UserID: "u3", ItemID: "untitled", Source: recommend.SourceLike},
			{UserID: "u2", ItemID: "untitled", Source: recommend.SourceLike},
		},
		metadata: map[string]recommend.ItemMetadata{
			"popular": {Title: "Popular", Price: 10},
			"mid":     {Title: "Mid"},
		},
	}
	models := &fakeModels{}
	m := testManager(t, data, models)

	if err := m.executeJob(context.Background(), ModeInfer); err != nil {
		t.Fatalf("executeJob failed: %v", err)
	}
	if models.lists == nil {
		t.Fatal("no lists written")
	}

	// u1 touched popular, so only mid remains; untitled is never served.
	u1 := models.lists["u1"]
	if len(u1) != 1 || u1[0].ItemID != "mid" || u1[0].Rank != 1 {
		t.Errorf("u1 list = %+v, want single mid entry", u1)
	}

	// u3 touched popular and untitled, leaving mid.
	u3 := models.lists["u3"]
	if len(u3) != 1 || u3[0].ItemID != "mid" {
		t.Errorf("u3 list = %+v, want single mid entry", u3)
	}
	if u3[0].Score != 3 {
		t.Errorf("mid score = %v, want 3 (one like at weight 3)", u3[0].Score)
	}
}

func TestInferFallsBackToTrainerOnlyWhenConfigured(t *testing.T) {
	data := &fakeSource{err: errors.New("db gone")}
	m := testManager(t, data, nil)

	// No trainer configured: the in-process failure is the job failure.
	err := m.executeJob(context.Background(), ModeInfer)
	if err == nil {
		t.Fatal("expected failure without trainer fallback")
	}
}

func TestTrainWithoutTrainerFailsFast(t *testing.T) {
	m := testManager(t, nil, nil)
	if err := m.executeJob(context.Background(), ModeTrain); err == nil {
		t.Fatal("full retrain without a configured trainer must fail")
	}
}

func TestCleanStaleEntries(t *testing.T) {
	data := &fakeSource{userIDs: []string{"a", "b"}}
	models := &fakeModels{removed: 4}
	m := testManager(t, data, models)

	removed, err := m.CleanStaleEntries(context.Background())
	if err != nil {
		t.Fatalf("CleanStaleEntries failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4", removed)
	}
}
