// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamState exposes the consumer connection state
	// (0=disconnected, 1=connected, 2=streaming).
	StreamState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sseplay_stream_state",
		Help: "Event stream connection state (0=disconnected, 1=connected, 2=streaming)",
	})

	streamReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_stream_reconnects_total",
		Help: "Total number of event stream reconnect cycles",
	}, []string{"reason"})

	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_stream_events_total",
		Help: "Total number of decoded stream events",
	}, []string{"result"})

	agentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sseplay_agent_events_total",
		Help: "Total number of payloads handled by the control loop",
	}, []string{"outcome"})
)

// SetStreamState records the numeric connection state.
func SetStreamState(state int) {
	StreamState.Set(float64(state))
}

// IncStreamReconnect counts a reconnect cycle (connect, status, read, decode, eof).
func IncStreamReconnect(reason string) {
	streamReconnectsTotal.WithLabelValues(reason).Inc()
}

// IncStreamEvent counts a decoded event (dispatched, empty).
func IncStreamEvent(result string) {
	streamEventsTotal.WithLabelValues(result).Inc()
}

// IncAgentEvent counts how the control loop handled a payload
// (played, missing, rejected, launch_failed).
func IncAgentEvent(outcome string) {
	agentEventsTotal.WithLabelValues(outcome).Inc()
}
