package sqlfrag

import (
	"fmt"
	"strconv"

	"github.com/canonical/sqlfrag/engine"
	"github.com/canonical/sqlfrag/value"
)

// State is the state of a Cursor.
type State int

const (
	// Ready means the cursor is bound and positioned before its first row.
	Ready State = iota
	// HasRow means a row is available.
	HasRow
	// Failed means a step failed. The cursor can only be closed.
	Failed
	// Finalized means the cursor has been closed.
	Finalized
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case HasRow:
		return "has row"
	case Failed:
		return "failed"
	case Finalized:
		return "finalized"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Cursor drives one prepared statement a row at a time.
//
// A cursor that is no longer needed must be closed. Alternatively
// [Cursor.AutoRelease] lets the statement be released after the cursor is
// garbage collected.
type Cursor struct {
	db    *DB
	h     *handle
	sql   string
	state State
	err   error
}

// SQL returns the text the cursor was prepared from.
func (c *Cursor) SQL() string {
	return c.sql
}

// State returns the current state of the cursor.
func (c *Cursor) State() State {
	return c.state
}

func (c *Cursor) check() error {
	switch {
	case c.state == Finalized:
		return ErrFinalized
	case c.db.closed:
		return ErrClosed
	case c.state == Failed:
		return fmt.Errorf("%w: %w", ErrCursorFailed, c.err)
	}
	return nil
}

func (c *Cursor) fail(op string, st engine.Status) error {
	c.err = &EngineError{Op: op, Code: st, Msg: c.db.conn.ErrMsg(), SQL: c.sql}
	c.state = Failed
	c.h.failed = true
	return c.err
}

// Bind resets the cursor and binds args to the statement parameters.
// Argument i is bound to parameter i+1; slices and maps bind their entries
// by index or by parameter name (see [value.Bind]).
func (c *Cursor) Bind(args ...any) error {
	if err := c.Reset(); err != nil {
		return err
	}
	return value.Bind(c.h.stmt, args...)
}

// Step advances the cursor. It returns true when a row is available. When
// the statement is exhausted the cursor is reset and Step returns false.
func (c *Cursor) Step() (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	switch st := c.h.stmt.Step(); st {
	case engine.StatusRow:
		c.state = HasRow
		return true, nil
	case engine.StatusDone:
		c.h.stmt.Reset()
		c.state = Ready
		return false, nil
	default:
		return false, c.fail("step statement", st)
	}
}

// Exec binds args and steps the statement once. If the statement produces
// a row the cursor is left positioned on it.
func (c *Cursor) Exec(args ...any) error {
	if err := c.Bind(args...); err != nil {
		return err
	}
	row, err := c.Step()
	if err != nil {
		return err
	}
	if row {
		c.db.logger.Logf("[DEBUG] statement %d returned a row on exec", c.h.id)
	}
	return nil
}

// Rows binds args and returns an iterator over the result rows. The
// iterator steps the cursor; it cannot be restarted without binding again.
func (c *Cursor) Rows(args ...any) *Rows {
	return &Rows{c: c, err: c.Bind(args...)}
}

// Reset rewinds the cursor to the start of its result. Bindings are kept.
func (c *Cursor) Reset() error {
	if err := c.check(); err != nil {
		return err
	}
	if st := c.h.stmt.Reset(); st != engine.StatusOK {
		return c.fail("reset statement", st)
	}
	c.state = Ready
	return nil
}

// Columns returns the names of the result columns. Engines that only learn
// the columns by running the statement, such as engine/sqldb, return none
// before the first Step.
func (c *Cursor) Columns() []string {
	if c.check() != nil {
		return nil
	}
	cols := make([]string, c.h.stmt.ColumnCount())
	for i := range cols {
		cols[i] = c.h.stmt.ColumnName(i)
	}
	return cols
}

// Values returns the current row in column order, or nil if no row is
// available.
func (c *Cursor) Values() []value.Value {
	if c.state != HasRow || c.db.closed {
		return nil
	}
	return value.Row(c.h.stmt)
}

// Named returns the current row keyed by column name, or nil if no row is
// available. When columns share a name the last one wins.
func (c *Cursor) Named() map[string]value.Value {
	if c.state != HasRow || c.db.closed {
		return nil
	}
	return value.NamedRow(c.h.stmt)
}

// AutoRelease arranges for the statement to be released once the cursor is
// garbage collected. The release happens on the next call to the DB the
// cursor was prepared on. Closing the cursor cancels it.
func (c *Cursor) AutoRelease() *Cursor {
	if c.state != Finalized {
		c.db.handles.arm(c)
	}
	return c
}

// Close finalizes the statement. Closing a cursor more than once has no
// effect.
func (c *Cursor) Close() error {
	if c.state == Finalized {
		return nil
	}
	c.db.handles.disarm(c)
	c.state = Finalized
	if st := c.db.handles.release(c.h); st != engine.StatusOK {
		return &EngineError{Op: "finalize statement", Code: st, Msg: c.db.conn.ErrMsg(), SQL: c.sql}
	}
	return nil
}

// Rows iterates over the rows of a cursor.
//
//	rows := c.Rows(18)
//	for rows.Next() {
//		fmt.Println(rows.Values())
//	}
//	if err := rows.Err(); err != nil {
//		...
//	}
type Rows struct {
	c    *Cursor
	err  error
	done bool
}

// Next advances to the next row and reports whether there is one.
func (r *Rows) Next() bool {
	if r.err != nil || r.done {
		return false
	}
	row, err := r.c.Step()
	if err != nil {
		r.err = err
		return false
	}
	if !row {
		r.done = true
	}
	return row
}

// Values returns the current row in column order.
func (r *Rows) Values() []value.Value {
	return r.c.Values()
}

// Named returns the current row keyed by column name.
func (r *Rows) Named() map[string]value.Value {
	return r.c.Named()
}

// Err returns the error that stopped the iteration, if any.
func (r *Rows) Err() error {
	return r.err
}
