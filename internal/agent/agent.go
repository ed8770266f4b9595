// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package agent drives playback from a stream of media paths.
package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sseplay/internal/fsutil"
	"github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/metrics"
	"github.com/ManuGH/sseplay/internal/player"
	"github.com/ManuGH/sseplay/internal/stream"
)

// DefaultRetryDelay is the pause after an unexpected source error.
const DefaultRetryDelay = 3 * time.Second

// Source yields payloads. stream.Consumer satisfies it.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Player plays one file at a time. player.Supervisor satisfies it.
type Player interface {
	Play(path string) error
	Stop()
	IsPlaying() bool
}

// Config configures the control loop.
type Config struct {
	MediaRoot string
	// Confine rejects payloads resolving outside MediaRoot.
	Confine    bool
	RetryDelay time.Duration
	Logger     *zerolog.Logger
}

// Agent pulls payloads from a Source and hands existing files to a Player.
type Agent struct {
	source Source
	player Player
	cfg    Config
	logger zerolog.Logger
	after  func(time.Duration) <-chan time.Time
}

// New wires an agent.
func New(source Source, p Player, cfg Config) (*Agent, error) {
	if source == nil || p == nil {
		return nil, errors.New("agent: source and player are required")
	}
	if cfg.MediaRoot == "" {
		return nil, errors.New("agent: media root is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	logger := log.WithComponent("agent")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Agent{
		source: source,
		player: p,
		cfg:    cfg,
		logger: logger.With().Str(log.FieldMediaRoot, cfg.MediaRoot).Logger(),
		after:  time.After,
	}, nil
}

// Run loops until ctx is cancelled or the source is closed, then stops any
// playback and returns nil. Source errors never end the loop.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().Str(log.FieldEvent, "agent.start").Msg("agent started")

	for a.pull(ctx) {
	}

	a.logger.Info().Str(log.FieldEvent, "agent.shutdown").Msg("shutting down, stopping playback")
	a.player.Stop()
	return nil
}

// pull handles one payload and reports whether the loop should continue.
func (a *Agent) pull(ctx context.Context) bool {
	payload, err := a.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
			return false
		}
		a.logger.Error().
			Err(err).
			Str(log.FieldEvent, "agent.source_error").
			Dur(log.FieldDelay, a.cfg.RetryDelay).
			Msg("event source failed, retrying")
		select {
		case <-ctx.Done():
			return false
		case <-a.after(a.cfg.RetryDelay):
		}
		return true
	}

	a.Handle(payload)
	return true
}

// Handle resolves one payload and starts playback if the file exists.
func (a *Agent) Handle(payload string) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return
	}

	path := Resolve(a.cfg.MediaRoot, payload)
	logger := a.logger.With().Str(log.FieldPayload, payload).Str(log.FieldPath, path).Logger()

	if a.cfg.Confine {
		confined, err := fsutil.Confine(a.cfg.MediaRoot, path)
		if err != nil {
			metrics.IncAgentEvent("rejected")
			logger.Warn().Err(err).Str(log.FieldEvent, "agent.rejected").Msg("path outside media root, skipping")
			return
		}
		path = confined
	}

	if _, err := os.Stat(path); err != nil {
		metrics.IncAgentEvent("missing")
		logger.Warn().Err(err).Str(log.FieldEvent, "agent.missing").Msg("media file not found, skipping")
		return
	}

	if a.player.IsPlaying() {
		logger.Info().Str(log.FieldEvent, "agent.preempt").Msg("stopping current playback")
	}
	if err := a.player.Play(path); err != nil {
		metrics.IncAgentEvent("launch_failed")
		var launchErr *player.LaunchError
		if errors.As(err, &launchErr) {
			logger.Error().Err(err).Strs(log.FieldCommand, launchErr.Command).Str(log.FieldEvent, "agent.launch_failed").Msg("player failed to start")
		} else {
			logger.Error().Err(err).Str(log.FieldEvent, "agent.launch_failed").Msg("player failed to start")
		}
		return
	}
	metrics.IncAgentEvent("played")
	logger.Info().Str(log.FieldEvent, "agent.play").Msg("now playing")
}

// Resolve maps a payload to an absolute path: absolute payloads are cleaned,
// relative ones are joined under root.
func Resolve(root, payload string) string {
	payload = strings.TrimSpace(payload)
	if filepath.IsAbs(payload) {
		return filepath.Clean(payload)
	}
	return filepath.Join(root, payload)
}
