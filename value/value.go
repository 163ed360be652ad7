// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package value holds the closed set of values exchanged with the engine
// and the codec converting Go values to and from it.
package value

import (
	"bytes"
	"fmt"
	"strconv"
)

// Kind is the storage class of a Value.
type Kind int

const (
	Null Kind = iota
	Number
	Integer
	Text
	Blob
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Number:
		return "number"
	case Integer:
		return "integer"
	case Text:
		return "text"
	case Blob:
		return "blob"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged value. The zero Value is Null.
type Value struct {
	kind Kind
	n    float64
	i    int64
	s    string
	b    []byte
}

// NullValue returns the Null value.
func NullValue() Value { return Value{} }

// Float returns a Number value.
func Float(f float64) Value { return Value{kind: Number, n: f} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{kind: Integer, i: i} }

// Str returns a Text value.
func Str(s string) Value { return Value{kind: Text, s: s} }

// Bytes returns a Blob value holding a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: Blob, b: append([]byte{}, b...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

// Float returns the value of a Number.
func (v Value) Float() (float64, bool) { return v.n, v.kind == Number }

// Int returns the value of an Integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == Integer }

// Str returns the value of a Text.
func (v Value) Str() (string, bool) { return v.s, v.kind == Text }

// Bytes returns the value of a Blob. The slice must not be modified.
func (v Value) Bytes() ([]byte, bool) { return v.b, v.kind == Blob }

// Any returns the value as nil, float64, int64, string or []byte.
func (v Value) Any() any {
	switch v.kind {
	case Number:
		return v.n
	case Integer:
		return v.i
	case Text:
		return v.s
	case Blob:
		return v.b
	}
	return nil
}

// Equal reports whether v and w have the same kind and value.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case Number:
		return v.n == w.n
	case Integer:
		return v.i == w.i
	case Text:
		return v.s == w.s
	case Blob:
		return bytes.Equal(v.b, w.b)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Text:
		return strconv.Quote(v.s)
	case Blob:
		return fmt.Sprintf("x'%x'", v.b)
	}
	return "NULL"
}
