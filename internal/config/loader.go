// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/sseplay/internal/log"
)

// DefaultEnvFile is loaded when present and no explicit env file is given.
const DefaultEnvFile = ".env"

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
// defaults < YAML file < .env file < process environment.
type Loader struct {
	configPath string
	envFile    string
	// ConsumedEnvKeys records every environment key read during Load.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. Empty paths select the defaults: no YAML file
// and an optional ./.env.
func NewLoader(configPath, envFile string) *Loader {
	return &Loader{
		configPath:      configPath,
		envFile:         envFile,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load builds and validates the effective configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.loadEnvFile(); err != nil {
		return cfg, fmt.Errorf("load env file: %w", err)
	}
	l.mergeEnv(&cfg)
	if unknown := l.UnknownEnvKeys(); len(unknown) > 0 {
		logger := log.WithComponent("config")
		logger.Warn().
			Strs("keys", unknown).
			Str(log.FieldEvent, "config.unknown_env").
			Msg("ignoring unknown " + EnvPrefix + "* environment variables")
	}

	dir, err := expandHome(cfg.MediaDir)
	if err != nil {
		return cfg, err
	}
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	cfg.MediaDir = dir

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// loadEnvFile populates unset environment variables from the env file.
// A missing default file is ignored; a missing explicit file is an error.
func (l *Loader) loadEnvFile() error {
	path := l.envFile
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return err
	}
	logger := log.WithComponent("config")
	logger.Debug().Str("path", path).Msg("loaded env file")
	return nil
}

// UnknownEnvKeys lists set EnvPrefix variables that Load did not read,
// sorted. Typos such as SSEPLAY_STOP_GRAC end up here.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.MediaDir = l.envString(EnvMediaDir, cfg.MediaDir)
	cfg.StreamURL = l.envString(EnvStreamURL, cfg.StreamURL)
	cfg.PlayerCmd = l.envString(EnvPlayerCmd, cfg.PlayerCmd)
	cfg.ReconnectDelay = l.envDuration(EnvReconnectDelay, cfg.ReconnectDelay)
	cfg.MaxReconnectDelay = l.envDuration(EnvMaxReconnectDelay, cfg.MaxReconnectDelay)
	cfg.StopGrace = l.envDuration(EnvStopGrace, cfg.StopGrace)
	cfg.ConfineToMediaDir = l.envBool(EnvConfineMedia, cfg.ConfineToMediaDir)
	cfg.StatusListen = l.envString(EnvStatusListen, cfg.StatusListen)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
}

func (l *Loader) envString(key, current string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, current)
}

func (l *Loader) envDuration(key string, current time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, current)
}

func (l *Loader) envBool(key string, current bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, current)
}
