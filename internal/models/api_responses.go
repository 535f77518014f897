// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package models defines the shared API response envelope used by every
// HTTP endpoint.
package models

import (
	"time"
)

// APIResponse is the standardized response wrapper for all HTTP endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example:
//
//	{
//	  "status": "success",
//	  "data": {"userId": "u1", "recommendations": [...]},
//	  "metadata": {"timestamp": "2026-08-28T12:00:00Z", "query_time_ms": 12}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields. QueryTimeMS is the
// server-side handling time in milliseconds; Cached marks responses served
// from the engine's response cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError carries structured error details.
//
// Error codes used by this service:
//   - VALIDATION_ERROR: invalid input parameters
//   - ALREADY_RUNNING: a background job is already in flight
//   - UNAUTHORIZED: missing or invalid admin credentials
//   - NOT_FOUND: unknown route or resource
//   - INTERNAL_ERROR: unexpected server failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes shared by handlers.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
