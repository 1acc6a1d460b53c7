// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/logging"
)

// Server wraps http.Server as a supervisable service.
type Server struct {
	srv *http.Server
}

// NewServer builds the HTTP server from the config and the assembled
// route tree.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       timeout,
			// No WriteTimeout: the websocket feed holds connections open
			// indefinitely.
			IdleTimeout: 120 * time.Second,
		},
	}
}

// Serve implements suture.Service: it listens until ctx is cancelled,
// then shuts down gracefully with a 10 second drain window.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("HTTP server shutdown failed")
		} else {
			logging.Info().Msg("HTTP server stopped")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "http-server"
}
