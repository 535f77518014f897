// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package database provides the DuckDB-backed store for interaction,
// demographic, and catalog data. It ingests JSONL sources at startup and
// implements the read-only recommend.DataProvider view plus the bulk reads
// used by background model recomputes.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/logging"
)

// queryTimeout bounds individual read queries.
const queryTimeout = 30 * time.Second

// DB wraps the DuckDB connection.
type DB struct {
	conn *sql.DB
	cfg  config.DataConfig
}

// New opens (or creates) the database and initializes the schema. An empty
// DatabasePath opens an in-memory database, used by tests.
func New(cfg config.DataConfig) (*DB, error) {
	path := cfg.DatabasePath
	if path == "" {
		path = ":memory:"
	} else {
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	// Disable auto-install/auto-load so restricted environments cannot hang
	// on extension downloads.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	db.configurePool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (db *DB) configurePool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// initialize creates the schema. Aspect maps and image lists are stored as
// JSON text and decoded at the edge.
func (db *DB) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
			user_id VARCHAR NOT NULL,
			asin VARCHAR NOT NULL,
			rating DOUBLE NOT NULL DEFAULT 0,
			aspects VARCHAR,
			review_time TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR PRIMARY KEY,
			age_group VARCHAR DEFAULT '',
			gender VARCHAR DEFAULT '',
			location VARCHAR DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS likes (
			user_id VARCHAR NOT NULL,
			asin VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			asin VARCHAR PRIMARY KEY,
			parent_asin VARCHAR DEFAULT '',
			title VARCHAR DEFAULT '',
			price DOUBLE DEFAULT 0,
			category VARCHAR DEFAULT '',
			average_rating DOUBLE DEFAULT 0,
			images VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_asin ON reviews (asin)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_user ON likes (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_parent ON metadata (parent_asin)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Conn returns the underlying SQL connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("close failed")
	}
}
