// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package placeholder finds the bind parameters of a SQL statement and
// numbers them the way SQLite does: "?" takes the next free index, "?NNN"
// takes index NNN, and ":name", "@name" and "$name" take the next free index
// on first use and reuse it afterwards.
package placeholder

import (
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Params is the parameter table of one statement.
type Params struct {
	// Count is the largest parameter index used.
	Count int
	// Names maps each named parameter, prefix included, to its index.
	Names map[string]int
}

// Index returns the index of the named parameter or 0.
func (p *Params) Index(name string) int {
	return p.Names[name]
}

// Scanner walks SQL text looking for parameters outside of string literals,
// quoted identifiers and comments.
type Scanner struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune

	params Params
}

// NewScanner returns a scanner ready for Scan.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan returns the parameter table for the statement in input.
func (s *Scanner) Scan(input string) (params *Params, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot scan parameters: %s", err)
		}
	}()

	s.init(input)
	for s.pos < len(s.input) {
		if ok, err := s.skipQuoted(); err != nil {
			return nil, err
		} else if ok {
			continue
		}
		if s.skipComment() {
			continue
		}
		switch s.char {
		case '?':
			if err := s.numbered(); err != nil {
				return nil, err
			}
			continue
		case ':', '@', '$':
			if s.named() {
				continue
			}
		}
		s.advanceChar()
	}
	p := s.params
	return &p, nil
}

// init resets the state of the scanner and sets the input string.
func (s *Scanner) init(input string) {
	s.input = input
	s.pos = 0
	s.nextPos = 0
	s.char = 0
	s.params = Params{Names: map[string]int{}}
	s.advanceChar()
}

// advanceChar moves the scanner to the next character in the input.
func (s *Scanner) advanceChar() bool {
	if s.nextPos >= len(s.input) {
		s.char = 0
		s.pos = s.nextPos
		return false
	}
	var size int
	s.char, size = utf8.DecodeRuneInString(s.input[s.nextPos:])
	s.pos = s.nextPos
	s.nextPos += size
	return true
}

// A checkpoint holds scanner state to restore after a failed match.
type checkpoint struct {
	scanner *Scanner
	pos     int
	nextPos int
	char    rune
}

func (s *Scanner) save() *checkpoint {
	return &checkpoint{scanner: s, pos: s.pos, nextPos: s.nextPos, char: s.char}
}

func (cp *checkpoint) restore() {
	cp.scanner.pos = cp.pos
	cp.scanner.nextPos = cp.nextPos
	cp.scanner.char = cp.char
}

// skipChar jumps over the current char if it matches c.
func (s *Scanner) skipChar(c rune) bool {
	if s.pos < len(s.input) && s.char == c {
		s.advanceChar()
		return true
	}
	return false
}

// peekChar returns true if the current char equals c.
func (s *Scanner) peekChar(c rune) bool {
	return s.pos < len(s.input) && s.char == c
}

// skipCharFind advances past the next occurrence of c. If c is not found the
// scanner is left unchanged.
func (s *Scanner) skipCharFind(c rune) bool {
	cp := s.save()
	for s.pos < len(s.input) {
		if s.char == c {
			s.advanceChar()
			return true
		}
		s.advanceChar()
	}
	cp.restore()
	return false
}

// skipQuoted jumps over string literals and quoted identifiers. Doubled up
// quotes are escaped. Square bracket identifiers cannot be escaped.
func (s *Scanner) skipQuoted() (bool, error) {
	c := s.char
	var closer rune
	switch c {
	case '\'', '"', '`':
		closer = c
	case '[':
		closer = ']'
	default:
		return false, nil
	}
	cp := s.save()
	s.advanceChar()

	maybeCloser := true
	for s.skipCharFind(closer) {
		if closer == ']' {
			return true, nil
		}
		// If this looks like a closing quote, check if it might be an
		// escape for a following quote. If not, we're done.
		if maybeCloser && !s.peekChar(closer) {
			return true, nil
		}
		maybeCloser = !maybeCloser
	}

	// Reached end of string and didn't find the closing quote.
	cp.restore()
	return false, fmt.Errorf("column %d: missing closing quote in %q", s.pos+1, s.input[s.pos:])
}

// skipComment jumps over "--" and "/* */" comments. If no comment is found
// the scanner state is left unchanged.
func (s *Scanner) skipComment() bool {
	cp := s.save()
	c := s.char
	if s.skipChar('-') || s.skipChar('/') {
		if c == '-' && s.skipChar('-') {
			// Don't consume the newline.
			for s.pos < len(s.input) && s.char != '\n' {
				s.advanceChar()
			}
			return true
		}
		if c == '/' && s.skipChar('*') {
			for s.pos < len(s.input) {
				if s.skipChar('*') {
					if s.skipChar('/') {
						return true
					}
					continue
				}
				s.advanceChar()
			}
			// Reached end of input (valid comment end).
			return true
		}
		cp.restore()
	}
	return false
}

// numbered handles "?" and "?NNN".
func (s *Scanner) numbered() error {
	s.advanceChar()
	start := s.pos
	for s.pos < len(s.input) && unicode.IsDigit(s.char) {
		s.advanceChar()
	}
	if start == s.pos {
		s.params.Count++
		return nil
	}
	n, err := strconv.Atoi(s.input[start:s.pos])
	if err != nil || n < 1 {
		return fmt.Errorf("column %d: invalid parameter index %q", start+1, s.input[start:s.pos])
	}
	if n > s.params.Count {
		s.params.Count = n
	}
	return nil
}

// named handles ":name", "@name" and "$name". A prefix char not followed by
// a name is not a parameter (e.g. the "::" cast operator).
func (s *Scanner) named() bool {
	cp := s.save()
	start := s.pos
	s.advanceChar()
	if s.pos < len(s.input) && s.char == ':' && s.input[start] == ':' {
		// PostgreSQL cast operator.
		s.advanceChar()
		return true
	}
	mark := s.pos
	for s.pos < len(s.input) && isNameChar(s.char) {
		s.advanceChar()
	}
	if mark == s.pos {
		cp.restore()
		return false
	}
	name := s.input[start:s.pos]
	if _, ok := s.params.Names[name]; !ok {
		s.params.Count++
		s.params.Names[name] = s.params.Count
	}
	return true
}

// isNameChar returns true if the given char can be part of a parameter
// name.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}
