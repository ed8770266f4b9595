// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream consumes a server-sent event stream as an endless sequence
// of payloads, reconnecting on every failure until the caller gives up.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sseplay/internal/log"
	"github.com/ManuGH/sseplay/internal/metrics"
	"github.com/ManuGH/sseplay/internal/sse"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("stream consumer closed")

// State is the connection state of a Consumer.
type State int32

const (
	Disconnected State = iota
	Connected
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectionError reports that the stream could not be opened.
type ConnectionError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Config tunes the consumer.
type Config struct {
	URL string
	// Client must not set a Timeout: the response body is read indefinitely.
	Client        *http.Client
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Delay overrides the default server-advised policy built from RetryDelay/MaxRetryDelay.
	Delay        DelayPolicy
	MaxLineBytes int
	Logger       *zerolog.Logger
}

// Consumer yields event payloads from a single SSE endpoint.
//
// Next must be called from one goroutine at a time. State, LastEventAt and
// Close are safe for concurrent use.
type Consumer struct {
	cfg    Config
	logger zerolog.Logger
	clock  clock

	state       atomic.Int32
	lastEventAt atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the live connection
	closed bool

	// Owned by the goroutine calling Next.
	body      io.ReadCloser
	dec       *sse.Decoder
	connLog   zerolog.Logger
	lastID    string
	retry     time.Duration
	hasRetry  bool
	failures  int
	needsWait bool
}

// New creates a consumer. No connection is made until the first Next.
func New(cfg Config) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream URL is required")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if cfg.Delay == nil {
		cfg.Delay = ServerAdvisedDelay(cfg.RetryDelay, cfg.MaxRetryDelay)
	}
	logger := log.WithComponent("stream")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str(log.FieldURL, cfg.URL).Logger()

	c := &Consumer{
		cfg:     cfg,
		logger:  logger,
		clock:   realClock{},
		connLog: logger,
	}
	metrics.SetStreamState(int(Disconnected))
	return c, nil
}

// State returns the current connection state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// LastEventAt returns when the last non-empty payload was received (zero if none).
func (c *Consumer) LastEventAt() time.Time {
	ns := c.lastEventAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Next blocks until the next non-empty payload arrives.
//
// Connection, transport and framing failures are logged and followed by a
// reconnect after the policy delay; they are never returned. The only
// errors are ctx.Err() and ErrClosed.
func (c *Consumer) Next(ctx context.Context) (string, error) {
	for {
		if c.isClosed() {
			c.disconnect()
			return "", ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if c.dec == nil {
			if c.needsWait {
				if err := c.wait(ctx); err != nil {
					return "", err
				}
			}
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				c.fail("connect", err)
				continue
			}
		}

		ev, err := c.decode(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.disconnect()
				return "", ctx.Err()
			}
			if c.isClosed() {
				continue
			}
			c.fail(failureReason(err), err)
			continue
		}

		c.failures = 0
		if strings.TrimSpace(ev.Data) == "" {
			metrics.IncStreamEvent("empty")
			continue
		}
		metrics.IncStreamEvent("dispatched")
		c.lastEventAt.Store(c.clock.Now().UnixNano())
		c.connLog.Debug().
			Str(log.FieldEvent, "stream.event").
			Str(log.FieldEventID, ev.ID).
			Str(log.FieldPayload, ev.Data).
			Msg("event received")
		return ev.Data, nil
	}
}

// Events exposes Next as a lazy sequence. It ends when ctx is cancelled or
// the consumer is closed.
func (c *Consumer) Events(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			payload, err := c.Next(ctx)
			if err != nil {
				return
			}
			if !yield(payload) {
				return
			}
		}
	}
}

// Close drops the live connection. Subsequent Next calls return ErrClosed.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Consumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) connect(ctx context.Context) error {
	// The connection outlives this call; it is bound to ctx only while connecting.
	connCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	connID := uuid.NewString()
	connLog := log.WithContext(log.ContextWithConnID(ctx, connID), c.logger)

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		cancel()
		return &ConnectionError{URL: c.cfg.URL, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.lastID != "" {
		req.Header.Set("Last-Event-ID", c.lastID)
	}

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		cancel()
		return &ConnectionError{URL: c.cfg.URL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return &ConnectionError{URL: c.cfg.URL, StatusCode: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		connLog.Debug().Str("content_type", ct).Msg("unexpected content type, decoding as event stream anyway")
	}

	c.mu.Lock()
	c.cancel = cancel
	if c.closed {
		// Close raced with the dial; the first read fails and Next returns ErrClosed.
		cancel()
	}
	c.mu.Unlock()

	c.body = resp.Body
	c.dec = sse.NewDecoder(&firstByteReader{r: resp.Body, onFirst: func() { c.setState(Streaming) }}, c.cfg.MaxLineBytes)
	c.dec.SetLastEventID(c.lastID)
	c.connLog = connLog
	c.setState(Connected)

	connLog.Info().
		Str(log.FieldEvent, "stream.connected").
		Int("status", resp.StatusCode).
		Msg("connected to event stream")
	return nil
}

// decode reads one event, aborting the read if ctx is cancelled meanwhile.
func (c *Consumer) decode(ctx context.Context) (sse.Event, error) {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}
	return c.dec.Decode()
}

// disconnect releases the connection, keeping the resume state (last ID, retry hint).
func (c *Consumer) disconnect() {
	if c.dec != nil {
		c.lastID = c.dec.LastEventID()
		if retry, ok := c.dec.Retry(); ok {
			c.retry, c.hasRetry = retry, true
		}
		c.dec = nil
	}
	if c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.setState(Disconnected)
}

func (c *Consumer) fail(reason string, err error) {
	c.disconnect()
	c.failures++
	c.needsWait = true
	metrics.IncStreamReconnect(reason)

	delay := c.cfg.Delay(c.failures, c.retry, c.hasRetry)
	c.connLog.Warn().
		Err(err).
		Str(log.FieldEvent, "stream.disconnected").
		Str("reason", reason).
		Int(log.FieldAttempt, c.failures).
		Dur(log.FieldDelay, delay).
		Msg("event stream error, reconnecting")
}

func (c *Consumer) wait(ctx context.Context) error {
	delay := c.cfg.Delay(c.failures, c.retry, c.hasRetry)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
	}
	c.needsWait = false
	return nil
}

func (c *Consumer) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.SetStreamState(int(s))
	c.connLog.Debug().
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, s.String()).
		Msg("stream state changed")
}

func failureReason(err error) string {
	var decErr *sse.DecodeError
	switch {
	case errors.As(err, &decErr):
		return "decode"
	case errors.Is(err, io.EOF):
		return "eof"
	default:
		return "read"
	}
}

// firstByteReader calls onFirst once the first byte of the body arrives.
type firstByteReader struct {
	r       io.Reader
	onFirst func()
	seen    bool
}

func (f *firstByteReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if n > 0 && !f.seen {
		f.seen = true
		f.onFirst()
	}
	return n, err
}
