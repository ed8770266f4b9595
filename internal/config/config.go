// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the agent configuration from defaults, an optional
// YAML file, an optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultMediaDir          = "/workspace/media"
	DefaultStreamURL         = "http://localhost:8000/stream"
	DefaultPlayerCmd         = "ffplay -autoexit -nodisp -loglevel error"
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxReconnectDelay = 60 * time.Second
	DefaultStopGrace         = 3 * time.Second
	DefaultLogLevel          = "info"
)

// ErrInvalidConfig classifies validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the effective agent configuration.
type Config struct {
	MediaDir          string        `yaml:"mediaDir"`
	StreamURL         string        `yaml:"streamURL"`
	PlayerCmd         string        `yaml:"playerCmd"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`
	MaxReconnectDelay time.Duration `yaml:"maxReconnectDelay"`
	StopGrace         time.Duration `yaml:"stopGrace"`
	ConfineToMediaDir bool          `yaml:"confineToMediaDir"`
	StatusListen      string        `yaml:"statusListen"`
	LogLevel          string        `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MediaDir:          DefaultMediaDir,
		StreamURL:         DefaultStreamURL,
		PlayerCmd:         DefaultPlayerCmd,
		ReconnectDelay:    DefaultReconnectDelay,
		MaxReconnectDelay: DefaultMaxReconnectDelay,
		StopGrace:         DefaultStopGrace,
		LogLevel:          DefaultLogLevel,
	}
}

// PlayerArgs splits the player command template into argv.
func (c Config) PlayerArgs() []string {
	return strings.Fields(c.PlayerCmd)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.MediaDir == "" {
		errs = append(errs, errors.New("mediaDir must not be empty"))
	}
	if len(c.PlayerArgs()) == 0 {
		errs = append(errs, errors.New("playerCmd must not be empty"))
	}
	if u, err := url.Parse(c.StreamURL); err != nil {
		errs = append(errs, fmt.Errorf("streamURL: %w", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("streamURL must be an http(s) URL: %q", c.StreamURL))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("reconnectDelay must be positive: %s", c.ReconnectDelay))
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		errs = append(errs, fmt.Errorf("maxReconnectDelay (%s) must be >= reconnectDelay (%s)", c.MaxReconnectDelay, c.ReconnectDelay))
	}
	if c.StopGrace <= 0 {
		errs = append(errs, fmt.Errorf("stopGrace must be positive: %s", c.StopGrace))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// EnsureMediaDir creates the media directory if it does not exist.
func (c Config) EnsureMediaDir() error {
	info, err := os.Stat(c.MediaDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("media dir %s is not a directory", c.MediaDir)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(c.MediaDir, 0o750); err != nil {
			return fmt.Errorf("create media dir: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("stat media dir: %w", err)
	}
}

// fileView is the YAML rendering of Config with readable durations.
type fileView struct {
	MediaDir          string `yaml:"mediaDir"`
	StreamURL         string `yaml:"streamURL"`
	PlayerCmd         string `yaml:"playerCmd"`
	ReconnectDelay    string `yaml:"reconnectDelay"`
	MaxReconnectDelay string `yaml:"maxReconnectDelay"`
	StopGrace         string `yaml:"stopGrace"`
	ConfineToMediaDir bool   `yaml:"confineToMediaDir"`
	StatusListen      string `yaml:"statusListen"`
	LogLevel          string `yaml:"logLevel"`
}

// MarshalYAML renders durations as strings so the output loads back.
func (c Config) MarshalYAML() (any, error) {
	return fileView{
		MediaDir:          c.MediaDir,
		StreamURL:         c.StreamURL,
		PlayerCmd:         c.PlayerCmd,
		ReconnectDelay:    c.ReconnectDelay.String(),
		MaxReconnectDelay: c.MaxReconnectDelay.String(),
		StopGrace:         c.StopGrace.String(),
		ConfineToMediaDir: c.ConfineToMediaDir,
		StatusListen:      c.StatusListen,
		LogLevel:          c.LogLevel,
	}, nil
}

var _ yaml.Marshaler = Config{}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
