// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldConnID    = "conn_id"
	FieldEventID   = "event_id"
	FieldEvent     = "event"
	FieldComponent = "component"

	// Process fields
	FieldPID     = "pid"
	FieldPGID    = "pgid"
	FieldCommand = "command"
	FieldSignal  = "signal"

	// Stream fields
	FieldURL      = "url"
	FieldAttempt  = "attempt"
	FieldDelay    = "delay"
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath      = "path"
	FieldPayload   = "payload"
	FieldMediaRoot = "media_root"
)
