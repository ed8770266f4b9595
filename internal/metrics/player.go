// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlayerLaunchTotal counts player process launches by result (ok, error).
	PlayerLaunchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_player_launch_total",
		Help: "Total number of player process launches",
	}, []string{"result"})

	// PlayerActive is 1 while a player process is tracked by the supervisor.
	PlayerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sseplay_player_active",
		Help: "Whether a player process is currently supervised (0/1)",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_proc_terminate_total",
		Help: "Signals delivered while terminating player process groups",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_proc_wait_total",
		Help: "Outcomes of waiting for terminated player processes",
	}, []string{"outcome"})
)

// RecordLaunch records a player launch attempt.
func RecordLaunch(err error) {
	if err != nil {
		PlayerLaunchTotal.WithLabelValues("error").Inc()
		return
	}
	PlayerLaunchTotal.WithLabelValues("ok").Inc()
}

// SetPlayerActive flips the active player gauge.
func SetPlayerActive(active bool) {
	if active {
		PlayerActive.Set(1)
		return
	}
	PlayerActive.Set(0)
}

// IncProcTerminate counts a termination signal (SIGTERM, SIGKILL) and its delivery result
// (sent, esrch, error).
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts how a terminated process finished (graceful, forced, timeout).
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
