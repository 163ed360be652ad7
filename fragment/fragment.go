// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package fragment composes SQL statements from nested, mergeable pieces.
//
// A statement is described by a tree of fragments. Clause maps name the
// clauses they contribute to and may embed other fragments anonymously;
// raw fragments carry tokens tagged with an operator. Flatten merges a tree
// into one clause list per name and Stringify renders the result as SQL
// text:
//
//	q := fragment.Compose(
//		fragment.Select("id", "name"),
//		fragment.From("users"),
//		fragment.Where("age > ?"),
//	)
//	sql, err := fragment.Stringify(q) // SELECT id,name FROM users WHERE age > ?
//
// Fragments are values. Placeholders are written in the target engine's
// syntax and are never rewritten.
package fragment

import "fmt"

// Fragment is a node of a composition tree. The implementations are Map,
// Raw, Text and Pair.
type Fragment interface {
	fragment()
}

// Text is a verbatim piece of SQL.
type Text string

// Raw is an ordered list of tokens tagged with an operator such as "AS".
type Raw struct {
	Op     string
	Tokens []Fragment
}

// Pair associates a column with a value expression in VALUES and SET
// clauses.
type Pair struct {
	Column string
	Value  string
}

// Entry is one entry of a clause map. An entry with an empty Name is an
// anonymous sub-fragment: its items are merged into the enclosing map.
type Entry struct {
	Name  string
	Items []Fragment
}

// Map is a clause map. Entries are kept in the order they were written.
type Map []Entry

func (Text) fragment() {}
func (Raw) fragment()  {}
func (Pair) fragment() {}
func (Map) fragment()  {}

// Compose returns a clause map embedding each of parts anonymously.
func Compose(parts ...Fragment) Map {
	return Map{{Items: parts}}
}

// Clause returns a clause map with a single named entry. Strings become
// Text, fragments are kept as they are and any other item is formatted with
// fmt.Sprint.
func Clause(name string, items ...any) Map {
	frags := make([]Fragment, 0, len(items))
	for _, item := range items {
		switch item := item.(type) {
		case Fragment:
			frags = append(frags, item)
		case string:
			frags = append(frags, Text(item))
		default:
			frags = append(frags, Text(fmt.Sprint(item)))
		}
	}
	return Map{{Name: name, Items: frags}}
}

// Clause names and operator tags.
const (
	kwWith      = "WITH"
	kwSelect    = "SELECT"
	kwFrom      = "FROM"
	kwWhere     = "WHERE"
	kwGroupBy   = "GROUP BY"
	kwHaving    = "HAVING"
	kwOrderBy   = "ORDER BY"
	kwLimit     = "LIMIT"
	kwOffset    = "OFFSET"
	kwInsert    = "INSERT"
	kwValues    = "VALUES"
	kwUpdate    = "UPDATE"
	kwSet       = "SET"
	kwDelete    = "DELETE"
	kwUnion     = "UNION"
	kwUnionAll  = "UNION ALL"
	kwIntersect = "INTERSECT"
	kwExcept    = "EXCEPT"
	kwAs        = "AS"
)

// Select returns a SELECT clause listing exprs.
func Select(exprs ...any) Map { return Clause(kwSelect, exprs...) }

// From returns a FROM clause. Tables are joined with commas.
func From(tables ...any) Map { return Clause(kwFrom, tables...) }

// Where returns a WHERE clause. Predicates are joined with AND.
func Where(preds ...any) Map { return Clause(kwWhere, preds...) }

// GroupBy returns a GROUP BY clause.
func GroupBy(exprs ...any) Map { return Clause(kwGroupBy, exprs...) }

// Having returns a HAVING clause. Predicates are joined with AND.
func Having(preds ...any) Map { return Clause(kwHaving, preds...) }

// OrderBy returns an ORDER BY clause.
func OrderBy(exprs ...any) Map { return Clause(kwOrderBy, exprs...) }

// Limit returns a LIMIT clause. When merged limits conflict the last wins.
func Limit(n any) Map { return Clause(kwLimit, n) }

// Offset returns an OFFSET clause. When merged offsets conflict the last
// wins.
func Offset(n any) Map { return Clause(kwOffset, n) }

// With returns a WITH clause. Each table is usually built with As from a
// statement and its name.
func With(tables ...any) Map { return Clause(kwWith, tables...) }

// InsertInto returns an INSERT clause for table.
func InsertInto(table string) Map { return Clause(kwInsert, table) }

// Values returns a VALUES clause of column/value pairs.
func Values(pairs ...Pair) Map { return Clause(kwValues, pairsToAny(pairs)...) }

// Update returns an UPDATE clause for table.
func Update(table string) Map { return Clause(kwUpdate, table) }

// Set returns a SET clause of column/value pairs.
func Set(pairs ...Pair) Map { return Clause(kwSet, pairsToAny(pairs)...) }

// DeleteFrom returns a DELETE clause for table.
func DeleteFrom(table string) Map { return Clause(kwDelete, table) }

// Col returns a column/value pair.
func Col(column, value string) Pair { return Pair{Column: column, Value: value} }

// As tags expr with the AS operator. In a select list it renders
// "expr AS name"; in a WITH clause expr is a statement and it renders
// "name AS (statement)".
func As(expr any, name string) Raw {
	var e Fragment
	switch v := expr.(type) {
	case Fragment:
		e = v
	case string:
		e = Text(v)
	default:
		e = Text(fmt.Sprint(v))
	}
	return Raw{Op: kwAs, Tokens: []Fragment{e, Text(name)}}
}

// Union combines the statement with each of rhs using UNION.
func Union(rhs ...Fragment) Map { return compound(kwUnion, rhs) }

// UnionAll combines the statement with each of rhs using UNION ALL.
func UnionAll(rhs ...Fragment) Map { return compound(kwUnionAll, rhs) }

// Intersect combines the statement with each of rhs using INTERSECT.
func Intersect(rhs ...Fragment) Map { return compound(kwIntersect, rhs) }

// Except combines the statement with each of rhs using EXCEPT.
func Except(rhs ...Fragment) Map { return compound(kwExcept, rhs) }

func compound(op string, rhs []Fragment) Map {
	return Map{{Name: op, Items: rhs}}
}

func pairsToAny(pairs []Pair) []any {
	items := make([]any, len(pairs))
	for i, p := range pairs {
		items[i] = p
	}
	return items
}
