// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/shoprec/shoprec/internal/recommend"
)

// inferTopN is how many candidates each user's precomputed list carries.
const inferTopN = 20

// executeJob dispatches one job run. A full retrain always goes through the
// external trainer; the infer mode recomputes in-process and only falls back
// to the trainer when the lightweight path itself fails.
func (m *Manager) executeJob(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeTrain:
		return m.runTrainer(ctx)
	case ModeInfer:
		if err := m.inferRecompute(ctx); err != nil {
			if m.cfg.TrainerCommand == "" {
				return err
			}
			m.logger.Warn().Err(err).Msg("in-process recompute failed, falling back to trainer")
			return m.runTrainer(ctx, "--infer-only")
		}
		return nil
	default:
		return fmt.Errorf("unknown job mode %q", mode)
	}
}

// inferRecompute rebuilds the precomputed per-user candidate lists from
// current interaction data: items scored by weighted like/review popularity,
// each user served the top candidates they have not already touched.
func (m *Manager) inferRecompute(ctx context.Context) error {
	interactions, err := m.data.AllInteractions(ctx)
	if err != nil {
		return fmt.Errorf("loading interactions: %w", err)
	}
	if len(interactions) == 0 {
		m.logger.Info().Msg("no interactions, nothing to recompute")
		return nil
	}

	type itemStat struct {
		score       float64
		reviewCount int
	}
	stats := make(map[string]*itemStat)
	seen := make(map[string]map[string]struct{})

	for _, in := range interactions {
		st := stats[in.ItemID]
		if st == nil {
			st = &itemStat{}
			stats[in.ItemID] = st
		}
		switch in.Source {
		case recommend.SourceLike:
			st.score += m.likeWeight
		case recommend.SourceReview:
			st.score += m.reviewWeight
			st.reviewCount++
		}
		if seen[in.UserID] == nil {
			seen[in.UserID] = make(map[string]struct{})
		}
		seen[in.UserID][in.ItemID] = struct{}{}
	}

	ranked := make([]string, 0, len(stats))
	for itemID := range stats {
		ranked = append(ranked, itemID)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := stats[ranked[i]], stats[ranked[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return ranked[i] < ranked[j]
	})

	meta, err := m.data.ItemMetadata(ctx, ranked)
	if err != nil {
		return fmt.Errorf("loading item metadata: %w", err)
	}

	lists := make(map[string][]recommend.Entry, len(seen))
	for userID, touched := range seen {
		entries := make([]recommend.Entry, 0, inferTopN)
		for _, itemID := range ranked {
			if len(entries) == inferTopN {
				break
			}
			if _, ok := touched[itemID]; ok {
				continue
			}
			md := meta[itemID]
			if md.Title == "" {
				// Never store a blank entry.
				continue
			}
			entries = append(entries, recommend.Entry{
				Rank:          len(entries) + 1,
				ItemID:        itemID,
				Score:         recommend.Round6(stats[itemID].score),
				TopAspects:    []string{},
				Title:         md.Title,
				Price:         md.Price,
				Category:      md.Category,
				AverageRating: md.AverageRating,
				Images:        md.Images,
			})
		}
		lists[userID] = entries
	}

	if err := m.models.PutAll(ctx, lists); err != nil {
		return fmt.Errorf("storing precomputed lists: %w", err)
	}
	m.logger.Info().
		Int("users", len(lists)).
		Int("items", len(ranked)).
		Msg("precomputed lists refreshed")
	return nil
}

// runTrainer invokes the external heavyweight trainer, streaming its output
// to a per-run log file.
func (m *Manager) runTrainer(ctx context.Context, extraArgs ...string) error {
	if m.cfg.TrainerCommand == "" {
		return fmt.Errorf("no trainer command configured")
	}

	args := make([]string, 0, len(m.cfg.TrainerArgs)+len(extraArgs))
	args = append(args, m.cfg.TrainerArgs...)
	args = append(args, extraArgs...)

	out, closeOut, err := m.trainerLog()
	if err != nil {
		return err
	}
	defer closeOut()

	cmd := exec.CommandContext(ctx, m.cfg.TrainerCommand, args...) //nolint:gosec // command comes from operator config
	cmd.Stdout = out
	cmd.Stderr = out

	m.logger.Info().Str("command", m.cfg.TrainerCommand).Strs("args", args).Msg("invoking trainer")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("trainer exited: %w", err)
	}
	return nil
}

// trainerLog opens the per-run trainer log, or discards output when no log
// directory is configured.
func (m *Manager) trainerLog() (io.Writer, func(), error) {
	if m.cfg.LogDir == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(m.cfg.LogDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := fmt.Sprintf("trainer-%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(m.cfg.LogDir, name)) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, nil, fmt.Errorf("creating trainer log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
