package fragment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnimplemented is wrapped by a CompositionError when a clause holds a
// structured expression where only SQL text can be rendered.
var ErrUnimplemented = errors.New("structured expressions are not implemented")

// CompositionError is returned when a fragment tree cannot be rendered.
type CompositionError struct {
	// Clause is the clause being rendered, or empty when the statement as a
	// whole is at fault.
	Clause string
	Err    error
}

func (e *CompositionError) Error() string {
	if e.Clause == "" {
		return "cannot compose statement: " + e.Err.Error()
	}
	return fmt.Sprintf("cannot compose statement: %s clause: %s", e.Clause, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// statementKinds are the clauses that select a statement compiler. Exactly
// one must be present.
var statementKinds = []string{kwSelect, kwInsert, kwUpdate, kwDelete}

// compoundOps are listed by priority. When several are present only the
// first one is rendered.
var compoundOps = []string{kwUnion, kwUnionAll, kwIntersect, kwExcept}

// Stringify flattens f and renders it as SQL text.
func Stringify(f Fragment) (string, error) {
	return compile(Flatten(f))
}

// MustStringify is the same as [Stringify] except that it panics on error.
func MustStringify(f Fragment) string {
	s, err := Stringify(f)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(m *Merged) (string, error) {
	var kinds []string
	for _, kind := range statementKinds {
		if m.Has(kind) {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return "", &CompositionError{Err: errors.New("expected top-level statement")}
	}
	if len(kinds) > 1 {
		return "", &CompositionError{Err: fmt.Errorf("ambiguous top-level statement: %s", strings.Join(kinds, ", "))}
	}

	c := &compiler{m: m}
	var err error
	switch kinds[0] {
	case kwSelect:
		err = c.selectStmt()
	case kwInsert:
		err = c.insertStmt()
	case kwUpdate:
		err = c.updateStmt()
	case kwDelete:
		err = c.deleteStmt()
	}
	if err != nil {
		return "", err
	}
	return strings.Join(c.parts, " "), nil
}

type compiler struct {
	m     *Merged
	parts []string
}

type renderFunc func(Fragment) (string, error)

func (c *compiler) emit(s string) {
	c.parts = append(c.parts, s)
}

// render renders every item of the named clause.
func (c *compiler) render(name string, r renderFunc) ([]string, error) {
	items := c.m.Clause(name)
	if len(items) == 0 {
		return nil, clauseError(name, errors.New("empty clause"))
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, err := r(item)
		if err != nil {
			return nil, clauseError(name, err)
		}
		out[i] = s
	}
	return out, nil
}

// list emits "NAME item<sep>item..." if the clause is present.
func (c *compiler) list(name, sep string, r renderFunc) error {
	if !c.m.Has(name) {
		return nil
	}
	out, err := c.render(name, r)
	if err != nil {
		return err
	}
	c.emit(name + " " + strings.Join(out, sep))
	return nil
}

// last emits "NAME item" for the last item of the clause if it is present.
func (c *compiler) last(name string) error {
	if !c.m.Has(name) {
		return nil
	}
	out, err := c.render(name, expression)
	if err != nil {
		return err
	}
	c.emit(name + " " + out[len(out)-1])
	return nil
}

// table renders the single table named by a statement-kind clause.
func (c *compiler) table(name string) (string, error) {
	out, err := c.render(name, expression)
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", clauseError(name, fmt.Errorf("expected one table, got %d", len(out)))
	}
	return out[0], nil
}

func (c *compiler) selectStmt() error {
	if err := c.list(kwWith, ",", withTable); err != nil {
		return err
	}
	for _, step := range []struct {
		name string
		sep  string
	}{
		{kwSelect, ","},
		{kwFrom, ","},
		{kwWhere, " AND "},
		{kwGroupBy, ","},
		{kwHaving, " AND "},
	} {
		if err := c.list(step.name, step.sep, expression); err != nil {
			return err
		}
	}
	for _, op := range compoundOps {
		if !c.m.Has(op) {
			continue
		}
		out, err := c.render(op, statement)
		if err != nil {
			return err
		}
		for _, rhs := range out {
			c.emit(op + " " + rhs)
		}
		break
	}
	if err := c.list(kwOrderBy, ",", expression); err != nil {
		return err
	}
	if err := c.last(kwLimit); err != nil {
		return err
	}
	return c.last(kwOffset)
}

func (c *compiler) insertStmt() error {
	table, err := c.table(kwInsert)
	if err != nil {
		return err
	}
	if !c.m.Has(kwValues) {
		c.emit("INSERT INTO " + table)
		return nil
	}
	pairs, err := c.pairs(kwValues)
	if err != nil {
		return err
	}
	cols := make([]string, len(pairs))
	vals := make([]string, len(pairs))
	for i, p := range pairs {
		cols[i], vals[i] = p.Column, p.Value
	}
	c.emit("INSERT INTO " + table + "(" + strings.Join(cols, ",") + ")")
	c.emit("VALUES (" + strings.Join(vals, ",") + ")")
	return nil
}

func (c *compiler) updateStmt() error {
	table, err := c.table(kwUpdate)
	if err != nil {
		return err
	}
	if !c.m.Has(kwSet) {
		return clauseError(kwUpdate, errors.New("missing SET clause"))
	}
	pairs, err := c.pairs(kwSet)
	if err != nil {
		return err
	}
	assignments := make([]string, len(pairs))
	for i, p := range pairs {
		assignments[i] = p.Column + "=" + p.Value
	}
	c.emit("UPDATE " + table)
	c.emit("SET " + strings.Join(assignments, ","))
	return c.list(kwWhere, " AND ", expression)
}

func (c *compiler) deleteStmt() error {
	table, err := c.table(kwDelete)
	if err != nil {
		return err
	}
	c.emit("DELETE FROM " + table)
	return c.list(kwWhere, " AND ", expression)
}

func (c *compiler) pairs(name string) ([]Pair, error) {
	items := c.m.Clause(name)
	if len(items) == 0 {
		return nil, clauseError(name, errors.New("empty clause"))
	}
	pairs := make([]Pair, len(items))
	for i, item := range items {
		p, ok := item.(Pair)
		if !ok {
			return nil, clauseError(name, fmt.Errorf("expected column/value pair, got %T", item))
		}
		pairs[i] = p
	}
	return pairs, nil
}

// expression renders SQL text, optionally aliased with As.
func expression(f Fragment) (string, error) {
	switch f := f.(type) {
	case Text:
		return string(f), nil
	case Raw:
		if alias, ok := aliasOf(f); ok {
			expr, err := expression(f.Tokens[0])
			if err != nil {
				return "", err
			}
			return expr + " AS " + alias, nil
		}
	}
	return "", ErrUnimplemented
}

// withTable renders a common table expression.
func withTable(f Fragment) (string, error) {
	switch f := f.(type) {
	case Text:
		return string(f), nil
	case Raw:
		if alias, ok := aliasOf(f); ok {
			body, err := statement(f.Tokens[0])
			if err != nil {
				return "", err
			}
			return alias + " AS (" + body + ")", nil
		}
	}
	return "", fmt.Errorf("expected named statement, got %T", f)
}

// statement renders a nested statement.
func statement(f Fragment) (string, error) {
	if t, ok := f.(Text); ok {
		return string(t), nil
	}
	return compile(Flatten(f))
}

func aliasOf(r Raw) (string, bool) {
	if r.Op != kwAs || len(r.Tokens) != 2 {
		return "", false
	}
	alias, ok := r.Tokens[1].(Text)
	return string(alias), ok
}

// clauseError annotates err with the clause it arose in. Errors from
// nested statements already carry their own clause and are kept as they
// are.
func clauseError(name string, err error) error {
	var ce *CompositionError
	if errors.As(err, &ce) {
		return err
	}
	return &CompositionError{Clause: name, Err: err}
}
