// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlfrag

import (
	"runtime"
	"time"

	. "gopkg.in/check.v1"
)

type ReleaseSuite struct {
	eng *trackingEngine
}

var _ = Suite(&ReleaseSuite{})

func (s *ReleaseSuite) SetUpTest(c *C) {
	s.eng = newTrackingEngine()
}

func (s *ReleaseSuite) TearDownTest(c *C) {
	// Check every test finishes cleanly.
	c.Check(s.eng.finalizedTwice(), HasLen, 0)
	c.Check(s.eng.numFinalized(), Equals, s.eng.numPrepared())
}

func (s *ReleaseSuite) openDB(c *C, opts ...Option) *DB {
	db, err := Open(s.eng, ":memory:", opts...)
	c.Assert(err, IsNil)
	return db
}

// triggerFinalizers runs the garbage collector until cond holds or gives
// up.
func (s *ReleaseSuite) triggerFinalizers(cond func() bool) {
	for i := 0; i <= 100 && !cond(); i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
}

func (s *ReleaseSuite) TestAutoRelease(c *C) {
	db := s.openDB(c)
	defer db.Close()

	// For a Cursor to be released it needs to go out of scope and be
	// garbage collected. A function is used to "forget" the cursor.
	func() {
		cur, err := db.Prepare("SELECT 1")
		c.Assert(err, IsNil)
		cur.AutoRelease()
		c.Assert(cur.Exec(), IsNil)
	}()
	c.Assert(db.NumOpen(), Equals, 1)

	s.triggerFinalizers(func() bool { return db.NumPending() == 1 })
	c.Assert(db.NumPending(), Equals, 1)

	// The finalizer only queues the statement.
	c.Assert(s.eng.numFinalized(), Equals, 0)

	c.Assert(db.ReleasePending(), IsNil)
	c.Assert(s.eng.numFinalized(), Equals, 1)
	c.Assert(db.NumOpen(), Equals, 0)
	c.Assert(db.NumPending(), Equals, 0)
}

func (s *ReleaseSuite) TestPrepareReleasesPending(c *C) {
	db := s.openDB(c, WithAutoRelease())
	defer db.Close()

	func() {
		_, err := db.Prepare("SELECT 1")
		c.Assert(err, IsNil)
	}()
	s.triggerFinalizers(func() bool { return db.NumPending() == 1 })
	c.Assert(db.NumPending(), Equals, 1)

	cur, err := db.Prepare("SELECT 2")
	c.Assert(err, IsNil)
	c.Assert(s.eng.numFinalized(), Equals, 1)
	c.Assert(db.NumOpen(), Equals, 1)
	c.Assert(cur.Close(), IsNil)
}

func (s *ReleaseSuite) TestCloseDisarms(c *C) {
	db := s.openDB(c)
	defer db.Close()

	func() {
		cur, err := db.Prepare("SELECT 1")
		c.Assert(err, IsNil)
		cur.AutoRelease()
		c.Assert(cur.Close(), IsNil)
		c.Assert(cur.Close(), IsNil)
	}()
	c.Assert(s.eng.numFinalized(), Equals, 1)

	// Give a finalizer every chance to run. None is expected.
	for i := 0; i < 10; i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	c.Assert(db.NumPending(), Equals, 0)
	c.Assert(db.ReleasePending(), IsNil)
	c.Assert(s.eng.numFinalized(), Equals, 1)
}

func (s *ReleaseSuite) TestDBCloseFinalizesOpenCursors(c *C) {
	db := s.openDB(c)

	var curs []*Cursor
	for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		cur, err := db.Prepare(q)
		c.Assert(err, IsNil)
		curs = append(curs, cur)
	}
	c.Assert(curs[1].Close(), IsNil)
	c.Assert(db.NumOpen(), Equals, 2)

	c.Assert(db.Close(), IsNil)
	c.Assert(s.eng.numFinalized(), Equals, 3)
	c.Assert(db.NumOpen(), Equals, 0)

	// The cursors are unusable but closing them is harmless.
	_, err := curs[0].Step()
	c.Assert(err, Equals, ErrClosed)
	c.Assert(curs[0].Close(), IsNil)
	c.Assert(curs[2].Close(), IsNil)

	_, err = db.Prepare("SELECT 4")
	c.Assert(err, Equals, ErrClosed)
	c.Assert(db.Close(), IsNil)
}

func (s *ReleaseSuite) TestFailedCursorReleases(c *C) {
	db := s.openDB(c)
	defer db.Close()

	c.Assert(db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"), IsNil)
	cur, err := db.Prepare("INSERT INTO t VALUES (?)")
	c.Assert(err, IsNil)
	c.Assert(cur.Exec(1), IsNil)
	c.Assert(cur.Exec(1), NotNil)
	c.Assert(cur.State(), Equals, Failed)

	// The failure has been reported by Exec already.
	c.Assert(cur.Close(), IsNil)
}
