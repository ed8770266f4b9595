// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sse decodes text/event-stream framing.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxLineBytes bounds a single field line.
const DefaultMaxLineBytes = 512 * 1024

// Event captures one dispatched SSE event.
type Event struct {
	ID   string
	Type string
	Data string
}

// DecodeError reports malformed framing. The stream cannot be resynchronised
// after one, so callers drop the connection.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sse: malformed event stream at line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads events from an event stream.
// The last event ID and the server retry hint persist across events.
type Decoder struct {
	scanner *bufio.Scanner
	line    int

	lastID   string
	retry    time.Duration
	hasRetry bool
}

// NewDecoder returns a decoder reading from r. maxLine <= 0 selects DefaultMaxLineBytes.
func NewDecoder(r io.Reader, maxLine int) *Decoder {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	scanner := bufio.NewScanner(r)
	// The token limit is the larger of maxLine and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	scanner.Split(scanLines())
	return &Decoder{scanner: scanner}
}

// Decode returns the next dispatched event.
// It returns io.EOF when the stream ends; a trailing event without its
// terminating blank line is discarded.
func (d *Decoder) Decode() (Event, error) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)

	for d.scanner.Scan() {
		d.line++
		line := d.scanner.Bytes()

		if len(line) == 0 {
			if !hasData {
				eventType = ""
				continue
			}
			return Event{ID: d.lastID, Type: eventType, Data: data.String()}, nil
		}
		if line[0] == ':' {
			continue
		}
		text := string(line)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "\uFFFD")
		}

		field, value := splitField(text)
		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				d.retry = time.Duration(ms) * time.Millisecond
				d.hasRetry = true
			}
		}
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Event{}, &DecodeError{Line: d.line + 1, Err: err}
		}
		return Event{}, err
	}
	return Event{}, io.EOF
}

// LastEventID is the most recent id field seen, to be sent as Last-Event-ID on reconnect.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// SetLastEventID seeds the decoder with the ID carried over from a previous connection.
func (d *Decoder) SetLastEventID(id string) {
	d.lastID = id
}

// Retry returns the server-advised reconnection time, if any was sent.
func (d *Decoder) Retry() (time.Duration, bool) {
	return d.retry, d.hasRetry
}

// scanLines splits on CR, LF or CRLF. A lone CR ends the line at once so a
// CR-terminated event is not held back waiting for the next byte; an LF
// arriving right after it is then skipped.
func scanLines() bufio.SplitFunc {
	afterCR := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if afterCR && len(data) > 0 {
			afterCR = false
			if data[0] == '\n' {
				return 1, nil, nil
			}
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			afterCR = data[i] == '\r'
			return i + 1, data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// splitField splits "name: value" and strips a single leading space from the value.
func splitField(line string) (string, string) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return name, strings.TrimPrefix(value, " ")
}
