// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Shoprec serves aspect-based shop recommendations over HTTP.
//
// On startup the server ingests catalog and interaction data into an
// embedded DuckDB database, opens the badger store holding precomputed
// per-user recommendations and job state, and brings the HTTP API and the
// interaction event consumer up under a suture supervisor tree.
//
// # Configuration
//
// Configuration layers defaults, an optional YAML file (CONFIG_PATH or
// ./config.yaml) and SHOPREC_-prefixed environment variables:
//
//	SHOPREC_SERVER_PORT=8080 \
//	SHOPREC_DATA_REVIEWS_PATH=/data/reviews.jsonl \
//	SHOPREC_STORE_PATH=/var/lib/shoprec/store \
//	shoprec-server
//
// # Endpoints
//
//	GET  /api/v1/recommendations        personalized recommendations
//	POST /api/v1/interactions           record a like or review
//	POST /api/v1/model/retrain          start a full retrain (admin)
//	GET  /api/v1/model/retrain/status   job status (admin)
//	POST /api/v1/model/run              start an inference run (admin)
//	GET  /healthz/live                  liveness probe
//	GET  /healthz/ready                 readiness probe
//	GET  /metrics                       Prometheus metrics
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/shoprec/shoprec/internal/api"
	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/database"
	"github.com/shoprec/shoprec/internal/events"
	"github.com/shoprec/shoprec/internal/jobs"
	"github.com/shoprec/shoprec/internal/logging"
	"github.com/shoprec/shoprec/internal/recmodel"
	"github.com/shoprec/shoprec/internal/recommend"
	"github.com/shoprec/shoprec/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.Logger()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("db_path", cfg.Data.DatabasePath).
		Str("store_path", cfg.Store.Path).
		Msg("Starting Shoprec")

	db, err := database.New(cfg.Data)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	stats, err := db.IngestAll(context.Background())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to ingest data")
	}
	logging.Info().
		Int("reviews", stats.Reviews).
		Int("users", stats.Users).
		Int("likes", stats.Likes).
		Int("metadata", stats.Metadata).
		Int("skipped", stats.Skipped).
		Msg("Data ingested")

	badgerOpts := badger.DefaultOptions(cfg.Store.Path).WithLogger(nil)
	if cfg.Store.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	bdb, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := bdb.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	modelStore := recmodel.NewStore(bdb, logger)
	stateStore := jobs.NewStateStore(bdb)

	manager := jobs.NewManager(cfg.Jobs, cfg.Recommend, stateStore, db, modelStore, logger)

	engine, err := recommend.NewEngine(recommend.Config{
		DefaultTopN:   cfg.Recommend.DefaultTopN,
		MaxTopN:       cfg.Recommend.MaxTopN,
		GateThreshold: cfg.Recommend.GateThreshold,
		LikeWeight:    cfg.Recommend.LikeWeight,
		ReviewWeight:  cfg.Recommend.ReviewWeight,
		DemoUserID:    cfg.Recommend.DemoUserID,
		CacheTTL:      cfg.Recommend.CacheTTL,
	}, db, modelStore, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build recommendation engine")
	}

	// Fresh model output must not be served alongside stale cached responses.
	manager.OnSuccess(engine.InvalidateCache)

	bus := events.NewBus(logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	consumer := events.NewConsumer(bus, manager, logger)

	handlers := api.NewHandlers(*cfg, engine, manager, db, bus, db, logger)
	router := api.NewRouter(handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The supervisor logs through slog; bridge it back to zerolog.
	slogLogger := logging.NewSlogLogger()

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(slogLogger, treeCfg)

	tree.AddDataService(consumer)
	tree.AddAPIService(supervisor.NewHTTPService(cfg.Server, router, logger))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Shoprec stopped gracefully")
}
