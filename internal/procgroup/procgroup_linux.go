// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package procgroup

import (
	"github.com/prometheus/procfs"

	"github.com/ManuGH/sseplay/internal/log"
)

func descendants(pid int) []Proc {
	logger := log.WithComponent("procgroup")
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		logger.Debug().Err(err).Msg("procfs unavailable, skipping descendant scan")
		return nil
	}
	procs, err := fs.AllProcs()
	if err != nil {
		logger.Debug().Err(err).Msg("failed to list processes")
		return nil
	}

	children := make(map[int][]Proc)
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			// Raced with exit.
			continue
		}
		if dead(stat.State) {
			continue
		}
		children[stat.PPID] = append(children[stat.PPID], Proc{PID: stat.PID, PGID: stat.PGRP})
	}

	var out []Proc
	queue := []int{pid}
	seen := map[int]bool{pid: true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, c := range children[parent] {
			if seen[c.PID] {
				continue
			}
			seen[c.PID] = true
			out = append(out, c)
			queue = append(queue, c.PID)
		}
	}
	return out
}

func isZombie(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return dead(stat.State)
}

func dead(state string) bool {
	return state == "Z" || state == "X"
}
