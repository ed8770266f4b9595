// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var allEnvKeys = []string{
	EnvMediaDir, EnvStreamURL, EnvPlayerCmd, EnvReconnectDelay,
	EnvMaxReconnectDelay, EnvStopGrace, EnvConfineMedia, EnvStatusListen, EnvLogLevel,
}

// isolateEnv blanks every key the loader reads and moves into an empty
// directory so a stray ./.env cannot leak in.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range allEnvKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultMediaDir, cfg.MediaDir)
	assert.Equal(t, DefaultStreamURL, cfg.StreamURL)
	assert.Equal(t, []string{"ffplay", "-autoexit", "-nodisp", "-loglevel", "error"}, cfg.PlayerArgs())
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 60*time.Second, cfg.MaxReconnectDelay)
	assert.Equal(t, 3*time.Second, cfg.StopGrace)
	assert.False(t, cfg.ConfineToMediaDir)
	assert.Empty(t, cfg.StatusListen)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvMediaDir, "/srv/media")
	t.Setenv(EnvStreamURL, "https://events.example/stream")
	t.Setenv(EnvPlayerCmd, "mpv --no-video")
	t.Setenv(EnvReconnectDelay, "500ms")
	t.Setenv(EnvConfineMedia, "yes")
	t.Setenv(EnvStatusListen, "127.0.0.1:9090")

	l := NewLoader("", "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", cfg.MediaDir)
	assert.Equal(t, "https://events.example/stream", cfg.StreamURL)
	assert.Equal(t, []string{"mpv", "--no-video"}, cfg.PlayerArgs())
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectDelay)
	assert.True(t, cfg.ConfineToMediaDir)
	assert.Equal(t, "127.0.0.1:9090", cfg.StatusListen)
	for _, k := range allEnvKeys {
		assert.Contains(t, l.ConsumedEnvKeys, k)
	}
}

func TestLoadReportsUnknownPrefixedEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SSEPLAY_STOP_GRAC", "5s")
	t.Setenv("SSEPLAY_ZZZ", "1")
	t.Setenv("OTHER_APP_SETTING", "x")

	l := NewLoader("", "")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultStopGrace, cfg.StopGrace)
	assert.Equal(t, []string{"SSEPLAY_STOP_GRAC", "SSEPLAY_ZZZ"}, l.UnknownEnvKeys())
}

func TestUnknownEnvKeysEmptyWhenAllKnown(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvStopGrace, "2s")

	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, l.UnknownEnvKeys())
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvStopGrace, "soon")
	t.Setenv(EnvConfineMedia, "maybe")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultStopGrace, cfg.StopGrace)
	assert.False(t, cfg.ConfineToMediaDir)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolateEnv(t)
	path := writeFile(t, dir, "sseplay.yaml", `
mediaDir: /from/file
streamURL: http://file.example/stream
stopGrace: 5s
logLevel: debug
`)
	t.Setenv(EnvStreamURL, "http://env.example/stream")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.MediaDir, "file beats default")
	assert.Equal(t, "http://env.example/stream", cfg.StreamURL, "env beats file")
	assert.Equal(t, 5*time.Second, cfg.StopGrace)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultPlayerCmd, cfg.PlayerCmd, "unset keys keep defaults")
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolateEnv(t)
	unsetEnv(t, EnvMediaDir)
	unsetEnv(t, EnvPlayerCmd)
	writeFile(t, dir, ".env", "MEDIA_DIR=/from/dotenv\nPLAYER_CMD=\"vlc --play-and-exit\"\n")
	t.Setenv(EnvStreamURL, "http://env.example/stream")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv", cfg.MediaDir)
	assert.Equal(t, []string{"vlc", "--play-and-exit"}, cfg.PlayerArgs())
	assert.Equal(t, "http://env.example/stream", cfg.StreamURL)
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := isolateEnv(t)
	envFile := writeFile(t, dir, "custom.env", "SSE_URL=http://dotenv.example/stream\n")
	t.Setenv(EnvStreamURL, "http://env.example/stream")

	cfg, err := NewLoader("", envFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://env.example/stream", cfg.StreamURL)
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	dir := isolateEnv(t)
	_, err := NewLoader("", filepath.Join(dir, "nope.env")).Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	dir := isolateEnv(t)
	path := writeFile(t, dir, "sseplay.yaml", "mediaDir: /m\nplayer: mpv\n")

	_, err := NewLoader(path, "").Load()
	require.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	dir := isolateEnv(t)
	path := writeFile(t, dir, "sseplay.json", "{}")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	dir := isolateEnv(t)
	path := writeFile(t, dir, "sseplay.yaml", "mediaDir: /a\n---\nmediaDir: /b\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestLoadEmptyYAMLKeepsDefaults(t *testing.T) {
	dir := isolateEnv(t)
	path := writeFile(t, dir, "sseplay.yaml", "")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultStreamURL, cfg.StreamURL)
}

func TestLoadExpandsHomeAndMakesAbsolute(t *testing.T) {
	isolateEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv(EnvMediaDir, "~/clips")
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "clips"), cfg.MediaDir)

	t.Setenv(EnvMediaDir, "relative/media")
	cfg, err = NewLoader("", "").Load()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "relative", "media"), cfg.MediaDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty player", mutate: func(c *Config) { c.PlayerCmd = "   " }, wantErr: true},
		{name: "ftp url", mutate: func(c *Config) { c.StreamURL = "ftp://x/stream" }, wantErr: true},
		{name: "url without host", mutate: func(c *Config) { c.StreamURL = "http://" }, wantErr: true},
		{name: "zero delay", mutate: func(c *Config) { c.ReconnectDelay = 0 }, wantErr: true},
		{name: "max below base", mutate: func(c *Config) { c.MaxReconnectDelay = time.Second }, wantErr: true},
		{name: "zero grace", mutate: func(c *Config) { c.StopGrace = 0 }, wantErr: true},
		{name: "empty media dir", mutate: func(c *Config) { c.MediaDir = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEnsureMediaDir(t *testing.T) {
	cfg := Default()
	cfg.MediaDir = filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, cfg.EnsureMediaDir())

	info, err := os.Stat(cfg.MediaDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, cfg.EnsureMediaDir(), "existing directory is fine")

	cfg.MediaDir = writeFile(t, t.TempDir(), "file", "x")
	require.Error(t, cfg.EnsureMediaDir())
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	dir := isolateEnv(t)
	cfg := Default()
	cfg.StopGrace = 1500 * time.Millisecond
	cfg.MediaDir = "/m"

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "stopGrace: 1.5s")

	path := writeFile(t, dir, "round.yaml", string(out))
	got, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
