// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Recommend.DefaultTopN != 30 {
		t.Errorf("expected default top_n 30, got %d", cfg.Recommend.DefaultTopN)
	}
	if cfg.Recommend.GateThreshold != 5 {
		t.Errorf("expected gate threshold 5, got %d", cfg.Recommend.GateThreshold)
	}
	if cfg.Jobs.AutoTriggerThreshold != 10 {
		t.Errorf("expected auto-trigger threshold 10, got %d", cfg.Jobs.AutoTriggerThreshold)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:   "default top_n above max",
			mutate: func(c *Config) { c.Recommend.DefaultTopN = 500 },
		},
		{
			name: "both cold-start weights zero",
			mutate: func(c *Config) {
				c.Recommend.LikeWeight = 0
				c.Recommend.ReviewWeight = 0
			},
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
		},
		{
			name:   "zero auto-trigger threshold",
			mutate: func(c *Config) { c.Jobs.AutoTriggerThreshold = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SHOPREC_SERVER_PORT", "server.port"},
		{"SHOPREC_RECOMMEND_GATE_THRESHOLD", "recommend.gate_threshold"},
		{"SHOPREC_JOBS_AUTO_TRIGGER_THRESHOLD", "jobs.auto_trigger_threshold"},
		{"SHOPREC_DATA_DATABASE_PATH", "data.database_path"},
		{"SHOPREC_LOGGING_LEVEL", "logging.level"},
		{"SHOPREC_UNRELATED_THING", ""},
		{"SHOPREC_SERVER", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := []byte(`
server:
  port: 9090
recommend:
  gate_threshold: 7
  demo_user_id: yaml_demo
`)
	if err := os.WriteFile(configPath, yamlContent, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("SHOPREC_RECOMMEND_GATE_THRESHOLD", "9")
	t.Setenv("SHOPREC_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// File overrides default.
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from file, got %d", cfg.Server.Port)
	}
	if cfg.Recommend.DemoUserID != "yaml_demo" {
		t.Errorf("expected demo user from file, got %q", cfg.Recommend.DemoUserID)
	}
	// Env overrides file.
	if cfg.Recommend.GateThreshold != 9 {
		t.Errorf("expected gate threshold 9 from env, got %d", cfg.Recommend.GateThreshold)
	}
	// Untouched defaults survive.
	if cfg.Recommend.DefaultTopN != 30 {
		t.Errorf("expected default top_n 30, got %d", cfg.Recommend.DefaultTopN)
	}
	if cfg.Jobs.HeartbeatTimeout != 2*time.Minute {
		t.Errorf("expected default heartbeat timeout, got %v", cfg.Jobs.HeartbeatTimeout)
	}
	// Comma-separated env slice parsed.
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.Server.CORSOrigins)
	}
}

func TestServerAddr(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := cfg.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8080")
	}
}
