// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package config loads and validates the service configuration.
//
// Configuration is layered with koanf v2:
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config file: optional YAML file (CONFIG_PATH or ./config.yaml)
//  3. Environment variables: SHOPREC_-prefixed overrides, highest priority
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Data      DataConfig      `koanf:"data"`
	Store     StoreConfig     `koanf:"store"`
	Recommend RecommendConfig `koanf:"recommend"`
	Jobs      JobsConfig      `koanf:"jobs"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DataConfig points at the catalog and interaction data sources.
type DataConfig struct {
	// DatabasePath is the DuckDB database file. Empty means in-memory.
	DatabasePath string `koanf:"database_path"`
	// ReviewsPath, UsersPath, LikesPath and MetadataPath are JSONL files
	// ingested at startup when present. Missing files are skipped.
	ReviewsPath  string `koanf:"reviews_path"`
	UsersPath    string `koanf:"users_path"`
	LikesPath    string `koanf:"likes_path"`
	MetadataPath string `koanf:"metadata_path"`
	MaxMemory    string `koanf:"max_memory"`
	Threads      int    `koanf:"threads" validate:"min=0"`
}

// StoreConfig configures the embedded key-value store.
type StoreConfig struct {
	// Path is the badger directory. Empty means in-memory (tests).
	Path string `koanf:"path"`
}

// RecommendConfig tunes the recommendation engine.
type RecommendConfig struct {
	DefaultTopN   int `koanf:"default_top_n" validate:"min=1"`
	MaxTopN       int `koanf:"max_top_n" validate:"min=1"`
	GateThreshold int `koanf:"gate_threshold" validate:"min=0"`
	// LikeWeight and ReviewWeight control cold-start cohort popularity.
	LikeWeight   float64       `koanf:"like_weight" validate:"min=0"`
	ReviewWeight float64       `koanf:"review_weight" validate:"min=0"`
	DemoUserID   string        `koanf:"demo_user_id"`
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// JobsConfig tunes the background job manager.
type JobsConfig struct {
	// AutoTriggerThreshold is the pending-interaction count that starts an
	// automatic model refresh.
	AutoTriggerThreshold int `koanf:"auto_trigger_threshold" validate:"min=1"`
	// HeartbeatTimeout marks a persisted running job as dead when its
	// heartbeat is older than this.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout" validate:"min=1s"`
	// TrainerCommand is the external trainer executable. Empty disables the
	// exec path; full retrains then fail fast and infer runs stay in-process.
	TrainerCommand string        `koanf:"trainer_command"`
	TrainerArgs    []string      `koanf:"trainer_args"`
	LogDir         string        `koanf:"log_dir"`
	JobTimeout     time.Duration `koanf:"job_timeout" validate:"min=1s"`
}

// SecurityConfig configures the admin surface.
type SecurityConfig struct {
	// AdminJWTSecret signs and verifies admin bearer tokens. Empty disables
	// admin auth, for development setups.
	AdminJWTSecret string `koanf:"admin_jwt_secret"`
	// AdminRole is the role claim required on admin tokens.
	AdminRole string `koanf:"admin_role"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for structural errors and cross-field
// consistency. Called by Load(); exported for tests and manual construction.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Recommend.DefaultTopN > c.Recommend.MaxTopN {
		return fmt.Errorf("recommend.default_top_n (%d) exceeds recommend.max_top_n (%d)",
			c.Recommend.DefaultTopN, c.Recommend.MaxTopN)
	}
	if c.Recommend.LikeWeight == 0 && c.Recommend.ReviewWeight == 0 {
		return fmt.Errorf("recommend.like_weight and recommend.review_weight cannot both be zero")
	}

	return nil
}
