// Package sqldb emulates the engine primitives over a database/sql driver.
//
// Each connection pins a single driver connection, so session state such as
// ATTACH or temporary tables behaves as it would on a native handle. A
// statement is executed lazily on its first Step and its result set is read
// one row at a time; column storage classes are inferred from the Go types
// the driver returns.
//
// Result column names are only known once the query has run, so ColumnCount
// and ColumnName report no columns until the first Step. They keep the names
// after the statement is reset.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-pkgz/lgr"

	"github.com/canonical/sqlfrag/engine"
	"github.com/canonical/sqlfrag/internal/placeholder"
)

// Engine opens connections through a registered database/sql driver.
type Engine struct {
	driverName string
	logger     lgr.L
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine for the named database/sql driver, e.g. "sqlite3"
// (github.com/mattn/go-sqlite3) or "sqlite" (modernc.org/sqlite). The
// driver package must be imported by the caller.
func New(driverName string) *Engine {
	return &Engine{driverName: driverName, logger: lgr.NoOp}
}

// WithLogger sets the logger used to report driver errors that cannot be
// carried by a status code.
func (e *Engine) WithLogger(l lgr.L) *Engine {
	e.logger = l
	return e
}

// Initialize is a no-op: database/sql drivers initialize on registration.
func (e *Engine) Initialize() engine.Status { return engine.StatusOK }

func (e *Engine) Shutdown() engine.Status { return engine.StatusOK }

func (e *Engine) Version() string {
	return "database/sql " + e.driverName
}

func (e *Engine) ErrStr(st engine.Status) string {
	return st.Text()
}

// Open opens dsn with the engine's driver and checks it is reachable.
func (e *Engine) Open(dsn string) (engine.Conn, engine.Status) {
	db, err := sql.Open(e.driverName, dsn)
	if err != nil {
		e.logger.Logf("[WARN] can't open %s database: %v", e.driverName, err)
		return nil, engine.StatusCantOpen
	}
	// One pinned connection keeps per-connection state (ATTACH, temp
	// tables, in-memory databases) stable across statements.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	sqlconn, err := db.Conn(context.Background())
	if err != nil {
		e.logger.Logf("[WARN] can't connect to %s database: %v", e.driverName, err)
		db.Close()
		return nil, engine.StatusCantOpen
	}
	return &conn{db: db, conn: sqlconn, logger: e.logger}, engine.StatusOK
}

type conn struct {
	db     *sql.DB
	conn   *sql.Conn
	logger lgr.L
	errMsg string
}

// fail records err as the connection message and returns a status for it.
func (c *conn) fail(st engine.Status, err error) engine.Status {
	c.errMsg = err.Error()
	return st
}

func (c *conn) Prepare(query string) (engine.Stmt, engine.Status) {
	params, err := placeholder.NewScanner().Scan(query)
	if err != nil {
		return nil, c.fail(engine.StatusError, err)
	}
	sqlstmt, err := c.conn.PrepareContext(context.Background(), query)
	if err != nil {
		return nil, c.fail(engine.StatusError, err)
	}
	return &stmt{
		c:      c,
		query:  query,
		stmt:   sqlstmt,
		params: params,
		names:  argNames(params),
		args:   make([]any, params.Count),
	}, engine.StatusOK
}

// argNames returns, per parameter index, the name under which drivers
// expect the argument, or "" for parameters bound by position. Names that
// are not identifiers, such as "$1", are positional.
func argNames(params *placeholder.Params) []string {
	names := make([]string, params.Count)
	for name, i := range params.Names {
		if r, _ := utf8.DecodeRuneInString(name[1:]); unicode.IsLetter(r) {
			names[i-1] = name[1:]
		}
	}
	return names
}

func (c *conn) ErrMsg() string {
	if c.errMsg == "" {
		return engine.StatusOK.Text()
	}
	return c.errMsg
}

func (c *conn) Close() engine.Status {
	if c.conn == nil {
		return engine.StatusOK
	}
	err := c.conn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	c.conn = nil
	if err != nil {
		return c.fail(engine.StatusError, err)
	}
	return engine.StatusOK
}

type stmt struct {
	c      *conn
	query  string
	stmt   *sql.Stmt
	params *placeholder.Params
	names  []string
	args   []any

	rows *sql.Rows
	cols []string
	row  []any
}

func (s *stmt) Step() engine.Status {
	if s.stmt == nil {
		return s.c.fail(engine.StatusMisuse, fmt.Errorf("statement is finalized"))
	}
	if s.rows == nil {
		rows, err := s.stmt.QueryContext(context.Background(), s.queryArgs()...)
		if err != nil {
			return s.c.fail(engine.StatusError, err)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return s.c.fail(engine.StatusError, err)
		}
		s.rows, s.cols = rows, cols
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		if err != nil {
			return s.c.fail(engine.StatusError, err)
		}
		return engine.StatusDone
	}
	row := make([]any, len(s.cols))
	ptrs := make([]any, len(row))
	for i := range row {
		ptrs[i] = &row[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.closeRows()
		return s.c.fail(engine.StatusError, err)
	}
	s.row = row
	return engine.StatusRow
}

func (s *stmt) queryArgs() []any {
	args := make([]any, len(s.args))
	for i, v := range s.args {
		if s.names[i] != "" {
			args[i] = sql.Named(s.names[i], v)
			continue
		}
		args[i] = v
	}
	return args
}

func (s *stmt) closeRows() {
	if s.rows != nil {
		s.rows.Close()
	}
	s.rows, s.row = nil, nil
}

// Reset discards any pending result set. Bindings are retained.
func (s *stmt) Reset() engine.Status {
	s.closeRows()
	return engine.StatusOK
}

func (s *stmt) Finalize() engine.Status {
	s.closeRows()
	if s.stmt == nil {
		return engine.StatusOK
	}
	err := s.stmt.Close()
	s.stmt = nil
	if err != nil {
		return s.c.fail(engine.StatusError, err)
	}
	return engine.StatusOK
}

func (s *stmt) bind(i int, v any) engine.Status {
	if i < 1 || i > len(s.args) {
		return s.c.fail(engine.StatusRange, fmt.Errorf("bind index %d out of range [1, %d]", i, len(s.args)))
	}
	s.args[i-1] = v
	return engine.StatusOK
}

func (s *stmt) BindNull(i int) engine.Status              { return s.bind(i, nil) }
func (s *stmt) BindInt64(i int, v int64) engine.Status    { return s.bind(i, v) }
func (s *stmt) BindDouble(i int, v float64) engine.Status { return s.bind(i, v) }
func (s *stmt) BindText(i int, v string) engine.Status    { return s.bind(i, v) }

func (s *stmt) BindBlob(i int, v []byte) engine.Status {
	return s.bind(i, append([]byte{}, v...))
}

func (s *stmt) BindParameterIndex(name string) int {
	return s.params.Index(name)
}

func (s *stmt) BindParameterCount() int {
	return s.params.Count
}

// ColumnCount is zero until the statement has been stepped once.
func (s *stmt) ColumnCount() int {
	return len(s.cols)
}

func (s *stmt) ColumnName(i int) string {
	if i < 0 || i >= len(s.cols) {
		return ""
	}
	return s.cols[i]
}

func (s *stmt) column(i int) any {
	if i < 0 || i >= len(s.row) {
		return nil
	}
	return s.row[i]
}

// ColumnType infers the storage class from the Go type the driver produced.
func (s *stmt) ColumnType(i int) engine.StorageClass {
	switch s.column(i).(type) {
	case nil:
		return engine.ClassNull
	case int64, int32, int, bool:
		return engine.ClassInteger
	case float64, float32:
		return engine.ClassFloat
	case []byte:
		return engine.ClassBlob
	default:
		return engine.ClassText
	}
}

func (s *stmt) ColumnInt64(i int) int64 {
	switch v := s.column(i).(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (s *stmt) ColumnDouble(i int) float64 {
	switch v := s.column(i).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (s *stmt) ColumnText(i int) (string, bool) {
	switch v := s.column(i).(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999999-07:00"), true
	default:
		return fmt.Sprint(v), true
	}
}

func (s *stmt) SQL() string {
	return s.query
}
