// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlite implements the engine primitives directly on the SQLite C
// API, as transpiled to Go by modernc.org/sqlite/lib. No cgo is involved.
package sqlite

import (
	"sync"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/canonical/sqlfrag/engine"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// DefaultFlags are the open flags used by Engine.Open.
const DefaultFlags = sqlite3.SQLITE_OPEN_READWRITE | sqlite3.SQLITE_OPEN_CREATE |
	sqlite3.SQLITE_OPEN_FULLMUTEX | sqlite3.SQLITE_OPEN_URI

// Engine is the SQLite engine. The zero value is not usable, see New.
type Engine struct {
	flags int32

	mu          sync.Mutex
	initialized bool
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine opening connections with DefaultFlags.
func New() *Engine {
	return &Engine{flags: DefaultFlags}
}

// NewWithFlags returns an engine opening connections with the given
// sqlite3_open_v2 flags.
func NewWithFlags(flags int32) *Engine {
	return &Engine{flags: flags}
}

// withTLS runs f with a short lived thread local storage handle for calls
// that are not tied to a connection.
func withTLS[T any](f func(tls *libc.TLS) T) T {
	tls := libc.NewTLS()
	defer tls.Close()
	return f(tls)
}

// Initialize calls sqlite3_initialize once for the life of the engine value.
func (e *Engine) Initialize() engine.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return engine.StatusOK
	}
	rc := withTLS(func(tls *libc.TLS) int32 { return sqlite3.Xsqlite3_initialize(tls) })
	if rc == sqlite3.SQLITE_OK {
		e.initialized = true
	}
	return engine.Status(rc)
}

// Shutdown calls sqlite3_shutdown. All connections must be closed first.
func (e *Engine) Shutdown() engine.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	rc := withTLS(func(tls *libc.TLS) int32 { return sqlite3.Xsqlite3_shutdown(tls) })
	if rc == sqlite3.SQLITE_OK {
		e.initialized = false
	}
	return engine.Status(rc)
}

func (e *Engine) Version() string {
	return withTLS(func(tls *libc.TLS) string { return libc.GoString(sqlite3.Xsqlite3_libversion(tls)) })
}

func (e *Engine) ErrStr(st engine.Status) string {
	return withTLS(func(tls *libc.TLS) string { return libc.GoString(sqlite3.Xsqlite3_errstr(tls, int32(st))) })
}

// Open opens the database file name. name may be a URI filename or
// ":memory:".
func (e *Engine) Open(name string) (engine.Conn, engine.Status) {
	tls := libc.NewTLS()
	zName, err := libc.CString(name)
	if err != nil {
		tls.Close()
		return nil, engine.StatusNoMem
	}
	defer libc.Xfree(tls, zName)

	ppDb := tls.Alloc(int(ptrSize))
	rc := sqlite3.Xsqlite3_open_v2(tls, zName, ppDb, e.flags, 0)
	db := *(*uintptr)(unsafe.Pointer(ppDb))
	tls.Free(int(ptrSize))
	if rc != sqlite3.SQLITE_OK {
		// A handle is usually allocated even on failure and must be closed.
		if db != 0 {
			sqlite3.Xsqlite3_close_v2(tls, db)
		}
		tls.Close()
		return nil, engine.Status(rc)
	}
	return &conn{tls: tls, db: db}, engine.StatusOK
}

type conn struct {
	tls *libc.TLS
	db  uintptr // *sqlite3.Xsqlite3
}

func (c *conn) Prepare(sql string) (engine.Stmt, engine.Status) {
	zSQL, err := libc.CString(sql)
	if err != nil {
		return nil, engine.StatusNoMem
	}
	defer libc.Xfree(c.tls, zSQL)

	ppStmt := c.tls.Alloc(int(ptrSize))
	defer c.tls.Free(int(ptrSize))
	rc := sqlite3.Xsqlite3_prepare_v2(c.tls, c.db, zSQL, -1, ppStmt, 0)
	if rc != sqlite3.SQLITE_OK {
		return nil, engine.Status(rc)
	}
	pstmt := *(*uintptr)(unsafe.Pointer(ppStmt))
	if pstmt == 0 {
		// The input held only whitespace or comments.
		return nil, engine.StatusEmpty
	}
	return &stmt{c: c, pstmt: pstmt}, engine.StatusOK
}

func (c *conn) ErrMsg() string {
	return libc.GoString(sqlite3.Xsqlite3_errmsg(c.tls, c.db))
}

// Close uses sqlite3_close_v2, so statements that are still open keep the
// connection alive as a zombie until they are finalized.
func (c *conn) Close() engine.Status {
	if c.db == 0 {
		return engine.StatusOK
	}
	if rc := sqlite3.Xsqlite3_close_v2(c.tls, c.db); rc != sqlite3.SQLITE_OK {
		return engine.Status(rc)
	}
	c.db = 0
	c.tls.Close()
	return engine.StatusOK
}

type stmt struct {
	c     *conn
	pstmt uintptr // *sqlite3.Xsqlite3_stmt
}

func (s *stmt) Step() engine.Status {
	return engine.Status(sqlite3.Xsqlite3_step(s.c.tls, s.pstmt))
}

func (s *stmt) Reset() engine.Status {
	return engine.Status(sqlite3.Xsqlite3_reset(s.c.tls, s.pstmt))
}

func (s *stmt) Finalize() engine.Status {
	rc := sqlite3.Xsqlite3_finalize(s.c.tls, s.pstmt)
	s.pstmt = 0
	return engine.Status(rc)
}

func (s *stmt) BindNull(i int) engine.Status {
	return engine.Status(sqlite3.Xsqlite3_bind_null(s.c.tls, s.pstmt, int32(i)))
}

func (s *stmt) BindInt64(i int, v int64) engine.Status {
	return engine.Status(sqlite3.Xsqlite3_bind_int64(s.c.tls, s.pstmt, int32(i), v))
}

func (s *stmt) BindDouble(i int, v float64) engine.Status {
	return engine.Status(sqlite3.Xsqlite3_bind_double(s.c.tls, s.pstmt, int32(i), v))
}

// BindText binds with SQLITE_TRANSIENT so SQLite takes its own copy and the
// temporary C string can be freed straight away.
func (s *stmt) BindText(i int, v string) engine.Status {
	p, err := libc.CString(v)
	if err != nil {
		return engine.StatusNoMem
	}
	defer libc.Xfree(s.c.tls, p)
	return engine.Status(sqlite3.Xsqlite3_bind_text(s.c.tls, s.pstmt, int32(i), p, int32(len(v)), sqlite3.SQLITE_TRANSIENT))
}

func (s *stmt) BindBlob(i int, v []byte) engine.Status {
	if len(v) == 0 {
		return engine.Status(sqlite3.Xsqlite3_bind_zeroblob(s.c.tls, s.pstmt, int32(i), 0))
	}
	p := libc.Xmalloc(s.c.tls, types.Size_t(len(v)))
	if p == 0 {
		return engine.StatusNoMem
	}
	defer libc.Xfree(s.c.tls, p)
	copy((*libc.RawMem)(unsafe.Pointer(p))[:len(v):len(v)], v)
	return engine.Status(sqlite3.Xsqlite3_bind_blob(s.c.tls, s.pstmt, int32(i), p, int32(len(v)), sqlite3.SQLITE_TRANSIENT))
}

func (s *stmt) BindParameterIndex(name string) int {
	z, err := libc.CString(name)
	if err != nil {
		return 0
	}
	defer libc.Xfree(s.c.tls, z)
	return int(sqlite3.Xsqlite3_bind_parameter_index(s.c.tls, s.pstmt, z))
}

func (s *stmt) BindParameterCount() int {
	return int(sqlite3.Xsqlite3_bind_parameter_count(s.c.tls, s.pstmt))
}

func (s *stmt) ColumnCount() int {
	return int(sqlite3.Xsqlite3_column_count(s.c.tls, s.pstmt))
}

func (s *stmt) ColumnName(i int) string {
	return libc.GoString(sqlite3.Xsqlite3_column_name(s.c.tls, s.pstmt, int32(i)))
}

func (s *stmt) ColumnType(i int) engine.StorageClass {
	return engine.StorageClass(sqlite3.Xsqlite3_column_type(s.c.tls, s.pstmt, int32(i)))
}

func (s *stmt) ColumnInt64(i int) int64 {
	return sqlite3.Xsqlite3_column_int64(s.c.tls, s.pstmt, int32(i))
}

func (s *stmt) ColumnDouble(i int) float64 {
	return sqlite3.Xsqlite3_column_double(s.c.tls, s.pstmt, int32(i))
}

func (s *stmt) ColumnText(i int) (string, bool) {
	p := sqlite3.Xsqlite3_column_text(s.c.tls, s.pstmt, int32(i))
	if p == 0 {
		return "", false
	}
	// sqlite3_column_bytes must be called after sqlite3_column_text.
	n := int(sqlite3.Xsqlite3_column_bytes(s.c.tls, s.pstmt, int32(i)))
	if n == 0 {
		return "", true
	}
	b := make([]byte, n)
	copy(b, (*libc.RawMem)(unsafe.Pointer(p))[:n:n])
	return string(b), true
}

func (s *stmt) SQL() string {
	return libc.GoString(sqlite3.Xsqlite3_sql(s.c.tls, s.pstmt))
}
