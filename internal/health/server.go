// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/player"
)

const (
	// DefaultRequestLimit is the per-IP request budget per minute.
	DefaultRequestLimit = 120
	shutdownTimeout     = 5 * time.Second
)

// StatusResponse is the /status payload.
type StatusResponse struct {
	Version     string          `json:"version,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	StreamState string          `json:"stream_state"`
	LastEventAt *time.Time      `json:"last_event_at,omitempty"`
	Player      player.Snapshot `json:"player"`
}

// RouterConfig wires the status endpoints.
type RouterConfig struct {
	Manager      *Manager
	Stream       StreamProbe
	Player       PlayerProbe
	RequestLimit int // per IP per minute; <= 0 selects DefaultRequestLimit
}

// NewRouter builds the status router: /healthz, /readyz, /status and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	limit := cfg.RequestLimit
	if limit <= 0 {
		limit = DefaultRequestLimit
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	))

	r.Get("/healthz", cfg.Manager.ServeHealth)
	r.Get("/readyz", cfg.Manager.ServeReady)
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version:   cfg.Manager.version,
			Timestamp: time.Now(),
		}
		if cfg.Stream != nil {
			resp.StreamState = cfg.Stream.State().String()
			if at := cfg.Stream.LastEventAt(); !at.IsZero() {
				resp.LastEventAt = &at
			}
		}
		if cfg.Player != nil {
			resp.Player = cfg.Player.Snapshot()
		}
		writeJSON(w, http.StatusOK, resp, func(err error) {
			logger := log.WithComponentFromContext(r.Context(), "status")
			logger.Error().Err(err).Msg("failed to encode status response")
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Server serves the status router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a status server for addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: log.WithComponent("status"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error().Err(err).Str(log.FieldEvent, "status.server.failed").Msg("status server failed")
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		<-errCh
		s.logger.Info().Msg("status server stopped")
		return nil
	}
}
