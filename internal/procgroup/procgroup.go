// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external commands in their own process group and
// tears the whole tree down again with a two-phase SIGTERM -> SIGKILL sequence.
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/metrics"
)

// ErrKillFailed is returned when the tree survives SIGKILL past the reap timeout.
var ErrKillFailed = errors.New("kill operation failed")

// pollInterval is how often descendants are re-checked while waiting out the grace period.
const pollInterval = 25 * time.Millisecond

// Proc identifies a process found while walking a process tree.
type Proc struct {
	PID  int
	PGID int
}

// Set configures the command to start in a new process group.
// Mandatory for Terminate to function as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Descendants returns every live process below pid (children, grandchildren, ...).
// Platforms without process table access return nil; group signalling still
// reaches descendants that stayed in the leader's group.
func Descendants(pid int) []Proc {
	if pid <= 0 {
		return nil
	}
	return descendants(pid)
}

// IsZombie reports whether pid has exited but not been reaped yet.
func IsZombie(pid int) bool {
	if pid <= 0 {
		return false
	}
	return isZombie(pid)
}

// Alive reports whether pid exists and is not a zombie.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return exists(pid) && !isZombie(pid)
}

// Terminate stops the process tree led by pid.
//
// The leader MUST have been spawned with Set(cmd) so that its pid is also its
// process group id. exited is closed by the caller's reaper once cmd.Wait has
// returned; it may be nil, in which case liveness is polled.
//
// Phase one sends SIGTERM to the group and to every descendant that left the
// group, then waits up to grace for all of them to exit. Phase two sends
// SIGKILL to whatever is still alive and waits up to reapTimeout for the
// leader to be reaped and the killed descendants to disappear.
func Terminate(pid int, exited <-chan struct{}, grace, reapTimeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	logger := log.WithComponent("procgroup")

	// Snapshot the tree first: once the leader dies its children are reparented.
	kids := Descendants(pid)

	logger.Debug().Int(log.FieldPID, pid).Int("descendants", len(kids)).Msg("sending SIGTERM to process group")
	signalTree(pid, kids, syscall.SIGTERM)

	if waitTree(pid, exited, kids, grace) {
		metrics.IncProcWait("graceful")
		return nil
	}

	logger.Warn().
		Int(log.FieldPID, pid).
		Dur("grace", grace).
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	survivors := aliveOf(kids)
	signalTree(pid, survivors, syscall.SIGKILL)

	if waitTree(pid, exited, survivors, reapTimeout) {
		metrics.IncProcWait("forced")
		return nil
	}
	metrics.IncProcWait("timeout")
	return ErrKillFailed
}

// signalTree delivers sig to the group led by pid, falling back to the leader
// alone when group delivery fails, and to descendants running in other groups.
func signalTree(pid int, kids []Proc, sig syscall.Signal) {
	if err := signalGroup(pid, sig); err != nil {
		record(sig, err)
		if !isGone(err) {
			record(sig, signalPID(pid, sig))
		}
	} else {
		record(sig, nil)
	}

	for _, k := range kids {
		if k.PGID == pid {
			continue
		}
		record(sig, signalPID(k.PID, sig))
	}
}

func record(sig syscall.Signal, err error) {
	name := signalName(sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case isGone(err):
		metrics.IncProcTerminate(name, "esrch")
	default:
		logger := log.WithComponent("procgroup")
		logger.Debug().Err(err).Str(log.FieldSignal, name).Msg("signal delivery failed")
		metrics.IncProcTerminate(name, "error")
	}
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}

func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone)
}

// waitTree blocks until the leader and all kids are gone or d elapses.
func waitTree(pid int, exited <-chan struct{}, kids []Proc, d time.Duration) bool {
	leaderGone := func() bool {
		if exited == nil {
			return !Alive(pid)
		}
		select {
		case <-exited:
			return true
		default:
			return false
		}
	}
	done := func() bool {
		return leaderGone() && len(aliveOf(kids)) == 0
	}

	if done() {
		return true
	}

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	wake := exited
	for {
		select {
		case <-wake:
			wake = nil
		case <-ticker.C:
		case <-deadline.C:
			return done()
		}
		if done() {
			return true
		}
	}
}

func aliveOf(procs []Proc) []Proc {
	var out []Proc
	for _, p := range procs {
		if Alive(p.PID) {
			out = append(out, p)
		}
	}
	return out
}
