// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player supervises the external media player process.
//
// A Supervisor tracks at most one player at a time. Every Play stops the
// previous playback first, and Stop tears down the player's whole process
// group. Termination failures are never reported to the caller: the
// supervisor forgets the handle regardless, so it never claims a playback it
// cannot verify is alive.
package player

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/metrics"
	"github.com/ManuGH/sseplay/internal/procgroup"
)

const (
	DefaultGrace       = 3 * time.Second
	DefaultReapTimeout = 2 * time.Second
)

var ErrEmptyCommand = errors.New("player command is empty")

// LaunchError reports that the player process could not be started.
type LaunchError struct {
	Command []string
	Path    string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch player %q for %s: %v", e.Command[0], e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Config configures a Supervisor.
type Config struct {
	// Command is the player argv; the media path is appended as the final argument.
	Command []string
	// Grace is how long Stop waits after SIGTERM before sending SIGKILL.
	Grace time.Duration
	// ReapTimeout bounds the wait for the process to be reaped after SIGKILL.
	ReapTimeout time.Duration
	Logger      *zerolog.Logger
}

// Handle is the currently supervised player process.
type Handle struct {
	PID       int
	PGID      int
	Args      []string
	Path      string
	StartedAt time.Time

	exited chan struct{} // closed by the reaper after cmd.Wait returns
}

// alive is derived on every call, never cached.
func (h *Handle) alive() bool {
	select {
	case <-h.exited:
		return false
	default:
	}
	return !procgroup.IsZombie(h.PID)
}

// Snapshot is a read-only view of the supervisor state.
type Snapshot struct {
	Playing   bool      `json:"playing"`
	PID       int       `json:"pid,omitempty"`
	Path      string    `json:"path,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Supervisor owns at most one player process.
type Supervisor struct {
	mu      sync.Mutex
	cfg     Config
	logger  zerolog.Logger
	current *Handle
}

// New creates a Supervisor for the given player command.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, ErrEmptyCommand
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.ReapTimeout <= 0 {
		cfg.ReapTimeout = DefaultReapTimeout
	}
	logger := log.WithComponent("player")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Supervisor{cfg: cfg, logger: logger}, nil
}

// IsPlaying reports whether a tracked player process is running and not a zombie.
func (s *Supervisor) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.alive()
}

// Snapshot returns the current playback state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.current
	if h == nil || !h.alive() {
		return Snapshot{}
	}
	return Snapshot{Playing: true, PID: h.PID, Path: h.Path, StartedAt: h.StartedAt}
}

// Stop terminates the current playback, if any. It is idempotent and never fails.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	h := s.current
	s.current = nil
	metrics.SetPlayerActive(false)

	if h == nil || !h.alive() {
		return
	}

	s.logger.Info().
		Str(log.FieldEvent, "player.stop").
		Int(log.FieldPID, h.PID).
		Str(log.FieldPath, h.Path).
		Msg("stopping current playback")

	// Errors are swallowed: the handle is already forgotten.
	if err := procgroup.Terminate(h.PID, h.exited, s.cfg.Grace, s.cfg.ReapTimeout); err != nil {
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "player.stop_incomplete").
			Int(log.FieldPID, h.PID).
			Msg("player did not exit after SIGKILL, dropping handle")
	}
}

// Play stops any current playback and launches the player for path.
// A failed launch returns *LaunchError and leaves the supervisor idle.
func (s *Supervisor) Play(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	args := make([]string, 0, len(s.cfg.Command)+1)
	args = append(args, s.cfg.Command...)
	args = append(args, path)

	// #nosec G204 -- the player command is operator configuration
	cmd := exec.Command(args[0], args[1:]...)
	// nil Stdin/Stdout/Stderr are connected to the null device.
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		metrics.RecordLaunch(err)
		return &LaunchError{Command: s.cfg.Command, Path: path, Err: err}
	}
	metrics.RecordLaunch(nil)

	h := &Handle{
		PID:       cmd.Process.Pid,
		PGID:      cmd.Process.Pid,
		Args:      args,
		Path:      path,
		StartedAt: time.Now(),
		exited:    make(chan struct{}),
	}
	go s.reap(cmd, h)

	s.current = h
	metrics.SetPlayerActive(true)

	s.logger.Info().
		Str(log.FieldEvent, "player.start").
		Int(log.FieldPID, h.PID).
		Strs(log.FieldCommand, args).
		Str(log.FieldPath, path).
		Msg("playback started")
	return nil
}

// reap waits for the process so it never lingers as a zombie.
func (s *Supervisor) reap(cmd *exec.Cmd, h *Handle) {
	err := cmd.Wait()
	// Close before taking the lock: stopLocked holds mu while waiting on exited.
	close(h.exited)

	s.mu.Lock()
	if s.current == h {
		s.current = nil
		metrics.SetPlayerActive(false)
	}
	s.mu.Unlock()

	ev := s.logger.Debug()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str(log.FieldEvent, "player.exit").
		Int(log.FieldPID, h.PID).
		Str(log.FieldPath, h.Path).
		Dur("runtime", time.Since(h.StartedAt)).
		Msg("player process exited")
}
