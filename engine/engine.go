// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package engine defines the primitive call surface through which sqlfrag
// drives a relational engine. The surface follows the SQLite C API closely:
// statements are prepared from SQL text, bound by 1-based parameter index,
// stepped one row at a time and read by 0-based column index. Every
// primitive reports a Status rather than an error; turning a status into a
// diagnostic is left to the caller, which knows the statement context.
package engine

// Engine is a process-wide handle on an engine implementation.
type Engine interface {
	// Initialize performs one-time process-wide initialization. It is safe
	// to call more than once.
	Initialize() Status
	// Shutdown releases process-wide resources acquired by Initialize.
	Shutdown() Status
	// Version reports the engine version string.
	Version() string
	// ErrStr returns the English text describing a status code.
	ErrStr(Status) string
	// Open establishes a connection. On failure the returned Conn is nil.
	Open(name string) (Conn, Status)
}

// Conn is an open connection.
type Conn interface {
	// Prepare compiles a single SQL statement.
	Prepare(sql string) (Stmt, Status)
	// ErrMsg returns the message of the most recent failed call on the
	// connection or on any statement prepared from it.
	ErrMsg() string
	Close() Status
}

// Stmt is a prepared statement. Parameter indexes are 1-based, column
// indexes are 0-based.
type Stmt interface {
	Step() Status
	Reset() Status
	Finalize() Status

	BindNull(i int) Status
	BindInt64(i int, v int64) Status
	BindDouble(i int, v float64) Status
	// BindText binds a copy of v; the engine never retains the caller's
	// memory.
	BindText(i int, v string) Status
	BindBlob(i int, v []byte) Status
	// BindParameterIndex returns the index of a named parameter, including
	// its prefix character, or 0 if there is no such parameter.
	BindParameterIndex(name string) int
	BindParameterCount() int

	ColumnCount() int
	ColumnName(i int) string
	ColumnType(i int) StorageClass
	ColumnInt64(i int) int64
	ColumnDouble(i int) float64
	// ColumnText returns the text of column i. ok is false when the engine
	// returns no text at all.
	ColumnText(i int) (s string, ok bool)

	// SQL returns the text the statement was prepared from.
	SQL() string
}
