package sqlfrag

import (
	"errors"
	"fmt"

	"github.com/canonical/sqlfrag/engine"
)

var (
	// ErrFinalized is returned when a finalized cursor is used.
	ErrFinalized = errors.New("cursor is finalized")
	// ErrCursorFailed is returned when a cursor is used after a step failed.
	// The cursor must be closed and the statement prepared again.
	ErrCursorFailed = errors.New("cursor has failed")
	// ErrClosed is returned when a closed DB is used.
	ErrClosed = errors.New("database is closed")
)

// EngineError reports a status other than OK from an engine primitive.
type EngineError struct {
	// Op names the failed operation, e.g. "step statement".
	Op   string
	Code engine.Status
	// Msg is the engine's message for the failure.
	Msg string
	// SQL is the text of the statement involved, if any.
	SQL string
}

func (e *EngineError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("cannot %s: %s: %s", e.Op, e.Msg, e.SQL)
}

// OpenError reports a failure to establish a connection. Msg is the
// engine's text for Code since no connection exists to report on.
type OpenError struct {
	Name string
	Code engine.Status
	Msg  string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open database %q: %s", e.Name, e.Msg)
}
