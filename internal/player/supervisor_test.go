// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package player

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/sseplay/internal/procgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSupervisor(t *testing.T, grace time.Duration, command ...string) *Supervisor {
	t.Helper()
	logger := zerolog.New(io.Discard)
	s, err := New(Config{Command: command, Grace: grace, ReapTimeout: time.Second, Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = New(Config{Command: []string{""}})
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(Config{Command: []string{"ffplay"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultGrace, s.cfg.Grace)
	assert.Equal(t, DefaultReapTimeout, s.cfg.ReapTimeout)
}

func TestPlayStartsAndStopTerminates(t *testing.T) {
	// The media path doubles as sleep's duration argument.
	s := newSupervisor(t, time.Second, "sleep")

	require.NoError(t, s.Play("30"))
	require.True(t, s.IsPlaying())

	snap := s.Snapshot()
	require.True(t, snap.Playing)
	assert.Equal(t, "30", snap.Path)
	pid := snap.PID

	s.Stop()
	assert.False(t, s.IsPlaying())
	assert.False(t, procgroup.Alive(pid), "player %d should be dead after Stop", pid)
	assert.Equal(t, Snapshot{}, s.Snapshot())
}

func TestPlayAppendsPathAsFinalArgument(t *testing.T) {
	out := filepath.Join(t.TempDir(), "argv")
	// sh -c assigns the first trailing argument to $0.
	s := newSupervisor(t, time.Second, "sh", "-c", `printf '%s' "$0" > "`+out+`"`)

	media := "/media/clip 1.mp4"
	require.NoError(t, s.Play(media))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && string(data) == media
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSequentialPlayLeavesOnlyLast(t *testing.T) {
	s := newSupervisor(t, time.Second, "sleep")

	var pids []int
	for _, p := range []string{"31", "32", "33"} {
		require.NoError(t, s.Play(p))
		pids = append(pids, s.Snapshot().PID)
	}

	snap := s.Snapshot()
	require.True(t, snap.Playing)
	assert.Equal(t, "33", snap.Path)
	assert.Equal(t, pids[2], snap.PID)

	for _, pid := range pids[:2] {
		assert.False(t, procgroup.Alive(pid), "preempted player %d should be dead", pid)
	}
	assert.True(t, procgroup.Alive(pids[2]))
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	s := newSupervisor(t, time.Second, "sleep")

	s.Stop()
	assert.False(t, s.IsPlaying())
	s.Stop()
	assert.False(t, s.IsPlaying())
}

func TestStopTwiceMatchesStopOnce(t *testing.T) {
	s := newSupervisor(t, time.Second, "sleep")
	require.NoError(t, s.Play("30"))

	s.Stop()
	first := s.Snapshot()
	s.Stop()
	assert.Equal(t, first, s.Snapshot())
	assert.False(t, s.IsPlaying())
}

func TestStopAfterNaturalExit(t *testing.T) {
	s := newSupervisor(t, time.Second, "true")
	require.NoError(t, s.Play("ignored"))

	require.Eventually(t, func() bool { return !s.IsPlaying() }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsPlaying())
}

func TestStopForcesKillWhenTermIgnored(t *testing.T) {
	grace := 200 * time.Millisecond
	s := newSupervisor(t, grace, "sh", "-c", "trap '' TERM; while :; do sleep 1; done")
	require.NoError(t, s.Play("player"))
	pid := s.Snapshot().PID

	// The loop's first sleep only runs once the trap is installed.
	require.Eventually(t, func() bool {
		return len(procgroup.Descendants(pid)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	s.Stop()
	assert.GreaterOrEqual(t, time.Since(start), grace)
	assert.False(t, s.IsPlaying())
	assert.False(t, procgroup.Alive(pid))
}

func TestPlayLaunchError(t *testing.T) {
	s := newSupervisor(t, time.Second, "sleep")
	require.NoError(t, s.Play("30"))
	prev := s.Snapshot().PID

	s.cfg.Command = []string{filepath.Join(t.TempDir(), "no-such-player")}
	err := s.Play("clip.mp4")
	require.Error(t, err)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "clip.mp4", launchErr.Path)
	assert.Contains(t, launchErr.Error(), "no-such-player")

	assert.False(t, s.IsPlaying(), "no stale handle after a failed launch")
	assert.False(t, procgroup.Alive(prev), "previous playback is stopped before launching")
}
