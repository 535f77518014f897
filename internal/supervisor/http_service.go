// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package supervisor

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/config"
)

// HTTPService runs the HTTP listener as a supervised service. When the
// context is cancelled it shuts the server down gracefully within the
// configured timeout.
type HTTPService struct {
	cfg     config.ServerConfig
	handler http.Handler
	logger  zerolog.Logger
}

// NewHTTPService wraps a handler for supervision.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPService(cfg config.ServerConfig, handler http.Handler, logger zerolog.Logger) *HTTPService {
	return &HTTPService{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Serve satisfies suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", server.Addr).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("graceful shutdown failed, closing")
			_ = server.Close()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
