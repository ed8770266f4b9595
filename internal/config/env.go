// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sseplay/internal/log"
)

// Environment variable names.
const (
	EnvMediaDir          = "MEDIA_DIR"
	EnvStreamURL         = "SSE_URL"
	EnvPlayerCmd         = "PLAYER_CMD"
	EnvReconnectDelay    = "SSEPLAY_RECONNECT_DELAY"
	EnvMaxReconnectDelay = "SSEPLAY_MAX_RECONNECT_DELAY"
	EnvStopGrace         = "SSEPLAY_STOP_GRACE"
	EnvConfineMedia      = "SSEPLAY_CONFINE_MEDIA"
	EnvStatusListen      = "SSEPLAY_STATUS_LISTEN"
	EnvLogLevel          = "LOG_LEVEL"

	// EnvPrefix marks keys owned by this program; unknown ones are reported.
	EnvPrefix = "SSEPLAY_"
)

// lookup returns a non-empty environment value, logging when an empty one is ignored.
func lookup(logger zerolog.Logger, key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	if strings.TrimSpace(v) == "" {
		logger.Debug().
			Str("key", key).
			Str("source", "default").
			Msg("ignoring empty environment variable")
		return "", false
	}
	return v, true
}

func logDefault(logger zerolog.Logger, key string) {
	logger.Debug().
		Str("key", key).
		Str("source", "default").
		Msg("using default value")
}

// ParseString reads a string from the environment or returns defaultValue.
// The chosen source is logged at debug level.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		logDefault(logger, key)
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Str("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

// ParseDuration reads a Go duration ("5s") from the environment.
// Invalid values fall back to defaultValue with a warning.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		logDefault(logger, key)
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Dur("value", d).
		Str("source", "environment").
		Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from the environment.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		logDefault(logger, key)
		return defaultValue
	}
	var b bool
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		b = true
	case "false", "0", "no":
		b = false
	default:
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Bool("value", b).
		Str("source", "environment").
		Msg("using environment variable")
	return b
}
