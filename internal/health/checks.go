// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/sseplay/internal/player"
	"github.com/ManuGH/sseplay/internal/stream"
)

// StreamProbe exposes the consumer's connection state. stream.Consumer satisfies it.
type StreamProbe interface {
	State() stream.State
	LastEventAt() time.Time
}

// PlayerProbe exposes the current playback. player.Supervisor satisfies it.
type PlayerProbe interface {
	Snapshot() player.Snapshot
}

// StreamChecker is unhealthy while the event stream is disconnected.
type StreamChecker struct {
	probe StreamProbe
}

func NewStreamChecker(probe StreamProbe) *StreamChecker {
	return &StreamChecker{probe: probe}
}

func (c *StreamChecker) Name() string { return "stream" }

func (c *StreamChecker) Check(context.Context) CheckResult {
	state := c.probe.State()
	if state == stream.Disconnected {
		return CheckResult{Status: StatusUnhealthy, Message: state.String()}
	}
	return CheckResult{Status: StatusHealthy, Message: state.String()}
}

// PlayerChecker reports what is playing. Idle is healthy.
type PlayerChecker struct {
	probe PlayerProbe
}

func NewPlayerChecker(probe PlayerProbe) *PlayerChecker {
	return &PlayerChecker{probe: probe}
}

func (c *PlayerChecker) Name() string { return "player" }

func (c *PlayerChecker) Check(context.Context) CheckResult {
	snap := c.probe.Snapshot()
	if !snap.Playing {
		return CheckResult{Status: StatusHealthy, Message: "idle"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("playing %s (pid %d)", snap.Path, snap.PID)}
}

// DirChecker checks that a directory exists.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a checker for directory existence
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file", Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}
