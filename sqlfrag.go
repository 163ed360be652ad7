// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlfrag

import (
	"fmt"

	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"

	"github.com/canonical/sqlfrag/engine"
	"github.com/canonical/sqlfrag/fragment"
)

// DB is a connection to a database opened through an engine. A DB and the
// cursors prepared on it must be used from one goroutine at a time.
type DB struct {
	eng         engine.Engine
	conn        engine.Conn
	name        string
	logger      lgr.L
	autoRelease bool
	// handles tracks the statements prepared on this DB.
	handles *registry
	closed  bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger of the DB. By default nothing is logged.
func WithLogger(l lgr.L) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// WithAutoRelease makes every cursor prepared on the DB release its
// statement automatically once it is garbage collected, as if
// [Cursor.AutoRelease] had been called.
func WithAutoRelease() Option {
	return func(db *DB) {
		db.autoRelease = true
	}
}

// Open initializes eng and opens the named database with it.
func Open(eng engine.Engine, name string, opts ...Option) (*DB, error) {
	if st := eng.Initialize(); st != engine.StatusOK {
		return nil, &OpenError{Name: name, Code: st, Msg: eng.ErrStr(st)}
	}
	conn, st := eng.Open(name)
	if st != engine.StatusOK {
		if conn != nil {
			conn.Close()
		}
		return nil, &OpenError{Name: name, Code: st, Msg: eng.ErrStr(st)}
	}
	db := &DB{
		eng:     eng,
		conn:    conn,
		name:    name,
		logger:  lgr.NoOp,
		handles: newRegistry(),
	}
	for _, opt := range opts {
		opt(db)
	}
	db.logger.Logf("[DEBUG] opened database %q with %s", name, eng.Version())
	return db, nil
}

// Shutdown releases the process-wide resources of eng. It must only be
// called once every DB opened with eng is closed.
func Shutdown(eng engine.Engine) error {
	if st := eng.Shutdown(); st != engine.StatusOK {
		return &EngineError{Op: "shut down engine", Code: st, Msg: eng.ErrStr(st)}
	}
	return nil
}

// Version returns the version string of the engine.
func (db *DB) Version() string {
	return db.eng.Version()
}

// Name returns the name the database was opened with.
func (db *DB) Name() string {
	return db.name
}

// Prepare compiles query into a new cursor.
func (db *DB) Prepare(query string) (*Cursor, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if err := db.ReleasePending(); err != nil {
		db.logger.Logf("[WARN] %v", err)
	}
	stmt, st := db.conn.Prepare(query)
	if st != engine.StatusOK || stmt == nil {
		msg := db.conn.ErrMsg()
		if st == engine.StatusEmpty || (st == engine.StatusOK && stmt == nil) {
			st, msg = engine.StatusEmpty, engine.StatusEmpty.Text()
		}
		return nil, &EngineError{Op: "prepare statement", Code: st, Msg: msg, SQL: query}
	}
	h := db.handles.add(stmt)
	c := &Cursor{db: db, h: h, sql: query}
	if db.autoRelease {
		c.AutoRelease()
	}
	db.logger.Logf("[DEBUG] prepared statement %d: %s", h.id, query)
	return c, nil
}

// MustPrepare is the same as [DB.Prepare] except that it panics on error.
func (db *DB) MustPrepare(query string) *Cursor {
	c, err := db.Prepare(query)
	if err != nil {
		panic(err)
	}
	return c
}

// PrepareFragment renders f and prepares the resulting statement.
func (db *DB) PrepareFragment(f fragment.Fragment) (*Cursor, error) {
	query, err := fragment.Stringify(f)
	if err != nil {
		return nil, err
	}
	return db.Prepare(query)
}

// Exec prepares query, runs it once with args and releases it.
func (db *DB) Exec(query string, args ...any) (err error) {
	c, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()
	return c.Exec(args...)
}

// ExecFragment renders f and runs it once with args.
func (db *DB) ExecFragment(f fragment.Fragment, args ...any) error {
	query, err := fragment.Stringify(f)
	if err != nil {
		return err
	}
	return db.Exec(query, args...)
}

// ReleasePending finalizes the statements of automatically released cursors
// that have been garbage collected. It is called by every DB operation; it
// only needs to be called directly to release statements at a given point.
func (db *DB) ReleasePending() error {
	errs := new(multierror.Error)
	for _, h := range db.handles.takePending() {
		if st := db.handles.release(h); st != engine.StatusOK {
			errs = multierror.Append(errs, db.finalizeError(h, st))
			continue
		}
		db.logger.Logf("[DEBUG] released statement %d", h.id)
	}
	return errs.ErrorOrNil()
}

// Close finalizes every statement still prepared on the DB and closes the
// connection. Cursors prepared on the DB cannot be used afterwards.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	errs := new(multierror.Error)
	for _, h := range db.handles.takeAll() {
		if st := db.handles.release(h); st != engine.StatusOK {
			errs = multierror.Append(errs, db.finalizeError(h, st))
		}
	}
	if st := db.conn.Close(); st != engine.StatusOK {
		errs = multierror.Append(errs, &EngineError{Op: "close database", Code: st, Msg: db.conn.ErrMsg()})
	}
	db.logger.Logf("[DEBUG] closed database %q", db.name)
	return errs.ErrorOrNil()
}

func (db *DB) finalizeError(h *handle, st engine.Status) error {
	return fmt.Errorf("statement %d: %w", h.id, &EngineError{Op: "finalize statement", Code: st, Msg: db.conn.ErrMsg()})
}
