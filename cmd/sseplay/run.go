// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/sseplay/internal/agent"
	"github.com/ManuGH/sseplay/internal/health"
	xglog "github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/player"
	"github.com/ManuGH/sseplay/internal/stream"
	"github.com/ManuGH/sseplay/internal/version"
)

// run wires the agent and blocks until ctx is cancelled. It returns an
// error only for startup failures.
func run(ctx context.Context, opts *options) error {
	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", opts.configPath).
			Msg("failed to load configuration")
		return err
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Version: version.Version,
	})
	logger = xglog.WithComponent("daemon")

	if err := cfg.EnsureMediaDir(); err != nil {
		return fmt.Errorf("media dir: %w", err)
	}

	supervisor, err := player.New(player.Config{
		Command: cfg.PlayerArgs(),
		Grace:   cfg.StopGrace,
	})
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}

	consumer, err := stream.New(stream.Config{
		URL:           cfg.StreamURL,
		RetryDelay:    cfg.ReconnectDelay,
		MaxRetryDelay: cfg.MaxReconnectDelay,
	})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	ag, err := agent.New(consumer, supervisor, agent.Config{
		MediaRoot:  cfg.MediaDir,
		Confine:    cfg.ConfineToMediaDir,
		RetryDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	logger.Info().
		Str(xglog.FieldEvent, "daemon.start").
		Str("version", version.Version).
		Str(xglog.FieldURL, cfg.StreamURL).
		Str(xglog.FieldMediaRoot, cfg.MediaDir).
		Strs(xglog.FieldCommand, cfg.PlayerArgs()).
		Bool("confine", cfg.ConfineToMediaDir).
		Msg("starting sseplay")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ag.Run(gctx)
	})

	if cfg.StatusListen != "" {
		mgr := health.NewManager(version.Version)
		mgr.RegisterChecker(health.NewStreamChecker(consumer))
		mgr.RegisterChecker(health.NewPlayerChecker(supervisor))
		mgr.RegisterChecker(health.NewDirChecker("media_dir", cfg.MediaDir))

		srv := health.NewServer(cfg.StatusListen, health.NewRouter(health.RouterConfig{
			Manager: mgr,
			Stream:  consumer,
			Player:  supervisor,
		}))
		// The status server is auxiliary: its failure is logged and never
		// cancels playback.
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				logger.Error().
					Err(err).
					Str(xglog.FieldEvent, "status.unavailable").
					Str("addr", cfg.StatusListen).
					Msg("status server unavailable, continuing without it")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("sseplay stopped")
	return nil
}
