// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlfrag

import (
	"sync"

	"github.com/canonical/sqlfrag/engine"
	"github.com/canonical/sqlfrag/engine/sqlite"
)

// This file contains a wrapper engine over the SQLite engine which monitors
// the preparation and finalization of statements. Tests use it to check for
// statement leaks and double finalization.

// trackingEngine records, per statement, the SQL it was prepared from and
// the number of times it was finalized. Statements are numbered in
// preparation order.
type trackingEngine struct {
	engine.Engine

	mutex     sync.Mutex
	prepared  []string
	finalized map[int]int
}

func newTrackingEngine() *trackingEngine {
	return &trackingEngine{Engine: sqlite.New(), finalized: map[int]int{}}
}

func (e *trackingEngine) Open(name string) (engine.Conn, engine.Status) {
	conn, st := e.Engine.Open(name)
	if st != engine.StatusOK {
		return nil, st
	}
	return &trackingConn{Conn: conn, e: e}, st
}

func (e *trackingEngine) numPrepared() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.prepared)
}

// numFinalized returns the number of statements finalized at least once.
func (e *trackingEngine) numFinalized() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.finalized)
}

// finalizedTwice returns the SQL of statements finalized more than once.
func (e *trackingEngine) finalizedTwice() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	var twice []string
	for id, n := range e.finalized {
		if n > 1 {
			twice = append(twice, e.prepared[id])
		}
	}
	return twice
}

type trackingConn struct {
	engine.Conn
	e *trackingEngine
}

func (c *trackingConn) Prepare(sql string) (engine.Stmt, engine.Status) {
	s, st := c.Conn.Prepare(sql)
	if st != engine.StatusOK {
		return s, st
	}
	c.e.mutex.Lock()
	defer c.e.mutex.Unlock()
	id := len(c.e.prepared)
	c.e.prepared = append(c.e.prepared, sql)
	return &trackingStmt{Stmt: s, e: c.e, id: id}, st
}

type trackingStmt struct {
	engine.Stmt
	e  *trackingEngine
	id int
}

func (s *trackingStmt) Finalize() engine.Status {
	s.e.mutex.Lock()
	s.e.finalized[s.id]++
	n := s.e.finalized[s.id]
	s.e.mutex.Unlock()
	if n > 1 {
		// Finalizing twice is undefined behaviour in SQLite, only record it.
		return engine.StatusMisuse
	}
	return s.Stmt.Finalize()
}
