// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package schema reflects the databases, tables, columns and foreign keys
// visible on a connection.
//
// Every piece of metadata is read on first access and then kept for the
// life of the Reflector. A Reflector does not notice later schema changes;
// use a new one to see them.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/canonical/sqlfrag"
	"github.com/canonical/sqlfrag/fragment"
	"github.com/canonical/sqlfrag/value"
)

// ErrNotFound is returned by Reflector.Table for unknown tables.
var ErrNotFound = errors.New("not found")

// Database is a database attached to the connection.
type Database struct {
	Name string
	// File is the path of the database file, empty for in-memory and
	// temporary databases.
	File string
}

// Column describes a table column.
type Column struct {
	Name string
	// Type is the declared type in upper case, empty when none was
	// declared.
	Type       string
	Nullable   bool
	PrimaryKey bool
	// Default is the default value expression, or Null if there is none.
	Default value.Value
}

// ForeignKey describes a foreign key constraint of a table.
type ForeignKey struct {
	// Table is the referenced table.
	Table string
	// Columns maps each local column to the referenced column. The
	// referenced column is empty when the key refers to the primary key.
	Columns  map[string]string
	OnUpdate string
	OnDelete string
}

// Table is a table or view. Its columns and foreign keys are read on first
// access.
type Table struct {
	Schema string
	Name   string
	// Type is "table", "view", "virtual" or "shadow".
	Type string

	r     *Reflector
	cache memo
}

// Reflector reads schema metadata through a DB.
type Reflector struct {
	db    *sqlfrag.DB
	cache memo
}

// New returns a Reflector for db.
func New(db *sqlfrag.DB) *Reflector {
	return &Reflector{db: db, cache: memo{}}
}

// memo holds computed fields keyed by field name.
type memo map[string]any

// memoize returns the value stored for field, computing and storing it on
// the first call. Errors are not stored.
func memoize[T any](m memo, field string, compute func() (T, error)) (T, error) {
	if v, ok := m[field]; ok {
		return v.(T), nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	m[field] = v
	return v, nil
}

// query runs the statement built from f and returns every row by column
// name.
func (r *Reflector) query(f fragment.Fragment, args ...any) (res []map[string]value.Value, err error) {
	cur, err := r.db.PrepareFragment(f)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cur.Close(); err == nil {
			err = cerr
		}
	}()
	rows := cur.Rows(args...)
	for rows.Next() {
		res = append(res, rows.Named())
	}
	return res, rows.Err()
}

// Databases returns the databases attached to the connection in the order
// the engine searches them.
func (r *Reflector) Databases() ([]Database, error) {
	return memoize(r.cache, "databases", func() ([]Database, error) {
		rows, err := r.query(fragment.Compose(
			fragment.Select("name", "file"),
			fragment.From("pragma_database_list"),
			fragment.OrderBy("seq"),
		))
		if err != nil {
			return nil, fmt.Errorf("cannot list databases: %w", err)
		}
		dbs := make([]Database, 0, len(rows))
		for _, row := range rows {
			dbs = append(dbs, Database{Name: str(row, "name"), File: str(row, "file")})
		}
		return dbs, nil
	})
}

// Tables returns the tables of every attached database, internal tables
// excluded. Databases are listed in the order unqualified names are
// resolved: temp, main, then attached databases in attachment order. When
// several databases hold a table of the same name only the first one is
// returned, as it is the one an unqualified name resolves to.
func (r *Reflector) Tables() ([]*Table, error) {
	return memoize(r.cache, "tables", func() ([]*Table, error) {
		rows, err := r.query(fragment.Compose(
			fragment.Select(fragment.As("t.schema", "schema"), fragment.As("t.name", "name"), fragment.As("t.type", "type")),
			fragment.From("pragma_table_list AS t", "pragma_database_list AS d"),
			fragment.Where("t.schema = d.name", `t.name NOT LIKE 'sqlite\_%' ESCAPE '\'`),
			fragment.OrderBy("d.name = 'temp' DESC", "d.seq"),
		))
		if err != nil {
			return nil, fmt.Errorf("cannot list tables: %w", err)
		}
		seen := map[string]bool{}
		var tables []*Table
		for _, row := range rows {
			name := str(row, "name")
			if seen[name] {
				continue
			}
			seen[name] = true
			tables = append(tables, &Table{
				Schema: str(row, "schema"),
				Name:   name,
				Type:   str(row, "type"),
				r:      r,
				cache:  memo{},
			})
		}
		return tables, nil
	})
}

// Table returns the table an unqualified name resolves to.
func (r *Reflector) Table(name string) (*Table, error) {
	tables, err := r.Tables()
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table %q: %w", name, ErrNotFound)
}

// Columns returns the columns of the table in declaration order.
func (t *Table) Columns() ([]Column, error) {
	return memoize(t.cache, "columns", func() ([]Column, error) {
		rows, err := t.r.query(fragment.Compose(
			fragment.Select("name", "type", `"notnull"`, "pk", "dflt_value"),
			fragment.From("pragma_table_xinfo(?, ?)"),
			// Hidden columns of virtual tables are not part of the
			// table's visible shape.
			fragment.Where("hidden <> 1"),
			fragment.OrderBy("cid"),
		), t.Name, t.Schema)
		if err != nil {
			return nil, fmt.Errorf("cannot list columns of %s.%s: %w", t.Schema, t.Name, err)
		}
		cols := make([]Column, 0, len(rows))
		for _, row := range rows {
			cols = append(cols, Column{
				Name:       str(row, "name"),
				Type:       strings.ToUpper(str(row, "type")),
				Nullable:   integer(row, "notnull") == 0,
				PrimaryKey: integer(row, "pk") > 0,
				Default:    row["dflt_value"],
			})
		}
		return cols, nil
	})
}

// ForeignKeys returns the foreign keys of the table.
func (t *Table) ForeignKeys() ([]ForeignKey, error) {
	return memoize(t.cache, "foreignKeys", func() ([]ForeignKey, error) {
		rows, err := t.r.query(fragment.Compose(
			fragment.Select("seq", `"table"`, `"from"`, `"to"`, "on_update", "on_delete"),
			fragment.From("pragma_foreign_key_list(?, ?)"),
		), t.Name, t.Schema)
		if err != nil {
			return nil, fmt.Errorf("cannot list foreign keys of %s.%s: %w", t.Schema, t.Name, err)
		}
		// Each key spans consecutive rows, the first of which has seq 0.
		var fks []ForeignKey
		for _, row := range rows {
			if integer(row, "seq") == 0 || len(fks) == 0 {
				fks = append(fks, ForeignKey{
					Table:    str(row, "table"),
					Columns:  map[string]string{},
					OnUpdate: str(row, "on_update"),
					OnDelete: str(row, "on_delete"),
				})
			}
			fks[len(fks)-1].Columns[str(row, "from")] = str(row, "to")
		}
		return fks, nil
	})
}

func str(row map[string]value.Value, col string) string {
	s, _ := row[col].Str()
	return s
}

func integer(row map[string]value.Value, col string) int64 {
	i, _ := row[col].Int()
	return i
}
