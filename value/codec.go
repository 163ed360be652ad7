// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package value

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/canonical/sqlfrag/engine"
)

// BindingError is returned when an argument has no Value representation.
type BindingError struct {
	// Pos is the parameter index the argument was destined for, or 0 when
	// the argument was never associated with an index.
	Pos  int
	Type reflect.Type
	Err  error
}

func (e *BindingError) Error() string {
	var what string
	if e.Type == nil {
		what = "argument"
	} else {
		what = "argument of type " + e.Type.String()
	}
	if e.Pos > 0 {
		what = fmt.Sprintf("%s at position %d", what, e.Pos)
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot bind %s: %s", what, e.Err)
	}
	return "cannot bind " + what
}

func (e *BindingError) Unwrap() error { return e.Err }

// StatusError is returned when the engine rejects a bind.
type StatusError struct {
	Pos    int
	Status engine.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot bind parameter %d: %s", e.Pos, e.Status)
}

// Of converts a Go value to a Value. nil and nil pointers are Null, floats
// are Numbers, all integer kinds and bool are Integers, strings are Text and
// byte slices are Blobs. driver.Valuer implementations are asked for their
// value first.
func Of(arg any) (Value, error) {
	switch v := arg.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return v, nil
	case float64:
		return Float(v), nil
	case float32:
		return Float(float64(v)), nil
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case int32:
		return Int(int64(v)), nil
	case bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case string:
		return Str(v), nil
	case []byte:
		if v == nil {
			return Value{}, nil
		}
		return Bytes(v), nil
	case driver.Valuer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Value{}, nil
		}
		dv, err := v.Value()
		if err != nil {
			return Value{}, &BindingError{Type: reflect.TypeOf(arg), Err: err}
		}
		if _, ok := dv.(driver.Valuer); ok {
			return Value{}, &BindingError{Type: reflect.TypeOf(arg), Err: fmt.Errorf("Value returned another driver.Valuer")}
		}
		return Of(dv)
	}

	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		return Of(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, &BindingError{Type: rv.Type(), Err: fmt.Errorf("%d overflows int64", u)}
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Bool:
		if rv.Bool() {
			return Int(1), nil
		}
		return Int(0), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return Value{}, nil
			}
			return Bytes(rv.Bytes()), nil
		}
	}
	return Value{}, &BindingError{Type: rv.Type()}
}

// fastArgs is the number of arguments Bind handles without packing them
// into a slice.
const fastArgs = 8

// Bind binds args to stmt. Argument i is bound at parameter i+1. Slices and
// maps are composite arguments: their entries are bound recursively, slice
// element k at parameter k+1, integer map keys at that parameter and string
// map keys at the named parameter of that name. Names that are not
// parameters of the statement are skipped.
func Bind(stmt engine.Stmt, args ...any) error {
	if len(args) > fastArgs {
		return bindComposite(stmt, reflect.ValueOf(args))
	}
	for i, arg := range args {
		if err := bindEntry(stmt, i+1, arg); err != nil {
			return err
		}
	}
	return nil
}

// composite returns the reflected value of arg if arg is a composite
// argument.
func composite(arg any) (reflect.Value, bool) {
	if arg == nil {
		return reflect.Value{}, false
	}
	if _, ok := arg.(driver.Valuer); ok {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Map:
		return rv, true
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return reflect.Value{}, false
		}
		return rv, true
	}
	return reflect.Value{}, false
}

func bindEntry(stmt engine.Stmt, pos int, arg any) error {
	if rv, ok := composite(arg); ok {
		return bindComposite(stmt, rv)
	}
	return bindAt(stmt, pos, arg)
}

func bindComposite(stmt engine.Stmt, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := bindEntry(stmt, i+1, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		keys := rv.MapKeys()
		// Sort so that errors are reported deterministically.
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, key := range keys {
			k := key
			if k.Kind() == reflect.Interface {
				k = k.Elem()
			}
			entry := rv.MapIndex(key).Interface()
			var pos int
			switch k.Kind() {
			case reflect.String:
				pos = lookup(stmt, k.String())
				if pos == 0 {
					continue
				}
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				pos = int(k.Int())
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				pos = int(k.Uint())
			default:
				return &BindingError{Type: rv.Type(), Err: fmt.Errorf("unsupported key %v", key.Interface())}
			}
			if err := bindEntry(stmt, pos, entry); err != nil {
				return err
			}
		}
		return nil
	}
	return &BindingError{Type: rv.Type()}
}

// lookup resolves a parameter name to its index. Names without a prefix
// character are tried with each of the prefixes SQLite accepts.
func lookup(stmt engine.Stmt, name string) int {
	if name == "" {
		return 0
	}
	if strings.ContainsRune(":@$?", rune(name[0])) {
		return stmt.BindParameterIndex(name)
	}
	for _, prefix := range []string{":", "@", "$"} {
		if i := stmt.BindParameterIndex(prefix + name); i > 0 {
			return i
		}
	}
	return 0
}

func bindAt(stmt engine.Stmt, pos int, arg any) error {
	v, err := Of(arg)
	if err != nil {
		if be, ok := err.(*BindingError); ok {
			be.Pos = pos
		}
		return err
	}
	var st engine.Status
	switch v.kind {
	case Null:
		st = stmt.BindNull(pos)
	case Number:
		st = stmt.BindDouble(pos, v.n)
	case Integer:
		st = stmt.BindInt64(pos, v.i)
	case Text:
		st = stmt.BindText(pos, v.s)
	case Blob:
		st = stmt.BindBlob(pos, v.b)
	}
	if st != engine.StatusOK {
		return &StatusError{Pos: pos, Status: st}
	}
	return nil
}

// Decode reads column col of the current row. Columns of the Blob and Null
// storage classes decode to Null.
func Decode(stmt engine.Stmt, col int) Value {
	switch stmt.ColumnType(col) {
	case engine.ClassInteger:
		return Int(stmt.ColumnInt64(col))
	case engine.ClassFloat:
		return Float(stmt.ColumnDouble(col))
	case engine.ClassText:
		s, ok := stmt.ColumnText(col)
		if !ok {
			return Value{}
		}
		return Str(s)
	}
	return Value{}
}

// Row decodes every column of the current row in order.
func Row(stmt engine.Stmt) []Value {
	row := make([]Value, stmt.ColumnCount())
	for i := range row {
		row[i] = Decode(stmt, i)
	}
	return row
}

// NamedRow decodes the current row keyed by column name. When two columns
// share a name the later one wins.
func NamedRow(stmt engine.Stmt) map[string]Value {
	n := stmt.ColumnCount()
	row := make(map[string]Value, n)
	for i := 0; i < n; i++ {
		row[stmt.ColumnName(i)] = Decode(stmt, i)
	}
	return row
}
