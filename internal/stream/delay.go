// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import "time"

const (
	DefaultRetryDelay    = 3 * time.Second
	DefaultMaxRetryDelay = 60 * time.Second

	// minAdvisedDelay keeps a server sending "retry: 0" from turning the
	// reconnect loop into a busy loop.
	minAdvisedDelay = 100 * time.Millisecond
)

// DelayPolicy returns how long to wait before reconnect attempt n (1-based).
// advised is the server's retry hint and is only meaningful when hasAdvised is true.
type DelayPolicy func(attempt int, advised time.Duration, hasAdvised bool) time.Duration

// FixedDelay always waits d and ignores server hints.
func FixedDelay(d time.Duration) DelayPolicy {
	return func(int, time.Duration, bool) time.Duration { return d }
}

// ServerAdvisedDelay honours the server's retry hint when one was sent, even
// above ceiling, and falls back to fallback otherwise. ceiling (when > 0)
// only bounds the fallback.
func ServerAdvisedDelay(fallback, ceiling time.Duration) DelayPolicy {
	if ceiling > 0 && fallback > ceiling {
		fallback = ceiling
	}
	return func(_ int, advised time.Duration, hasAdvised bool) time.Duration {
		if !hasAdvised {
			return fallback
		}
		return max(advised, minAdvisedDelay)
	}
}

type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
