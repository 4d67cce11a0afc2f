// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"strings"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/nquads"
	"github.com/pdiddy/indexer/pkg/types"
)

// Slot is one position of a triple pattern: either a variable or a
// constant term.
type Slot struct {
	// Var is the variable name without the leading '?'. Blank nodes in a
	// pattern are variables whose name starts with "_:".
	Var  string
	Term types.Term
}

// IsVar reports whether the slot is a variable.
func (s Slot) IsVar() bool { return s.Var != "" }

// IsBlank reports whether the slot is a blank-node variable.
func (s Slot) IsBlank() bool { return strings.HasPrefix(s.Var, "_:") }

func (s Slot) String() string {
	if s.IsBlank() {
		return s.Var
	}
	if s.IsVar() {
		return "?" + s.Var
	}
	return nquads.FormatTerm(s.Term)
}

// Pattern is a triple pattern.
type Pattern struct {
	Subject   Slot
	Predicate Slot
	Object    Slot
}

func (p Pattern) String() string {
	return p.Subject.String() + " " + p.Predicate.String() + " " + p.Object.String() + " ."
}

// Vars returns the variable names used by the pattern, in position order.
func (p Pattern) Vars() []string {
	var out []string
	for _, s := range []Slot{p.Subject, p.Predicate, p.Object} {
		if s.IsVar() {
			out = append(out, s.Var)
		}
	}
	return out
}

// parsePatterns reads a sequence of triple patterns. Terms are variables
// (?x or $x), IRIs (<...>), prefixed names, "a", blank nodes and
// N-Triples literals. Statements end with '.'; the final '.' is optional.
func parsePatterns(src string, prefixes map[string]string) ([]Pattern, error) {
	tz := &tokenizer{src: src, prefixes: prefixes}
	var out []Pattern
	var cur []Slot
	for {
		slot, end, done, err := tz.next()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if end {
			if len(cur) == 0 {
				continue
			}
			if len(cur) != 3 {
				return nil, errors.Newf("pattern %d: expected 3 terms, got %d", len(out)+1, len(cur))
			}
			out = append(out, Pattern{cur[0], cur[1], cur[2]})
			cur = nil
			continue
		}
		cur = append(cur, slot)
		if len(cur) > 3 {
			return nil, errors.Newf("pattern %d: more than 3 terms before '.'", len(out)+1)
		}
	}
	switch len(cur) {
	case 0:
	case 3:
		out = append(out, Pattern{cur[0], cur[1], cur[2]})
	default:
		return nil, errors.Newf("pattern %d: expected 3 terms, got %d", len(out)+1, len(cur))
	}

	for i, p := range out {
		if !p.Subject.IsVar() && !p.Subject.Term.IsIdentifier() {
			return nil, errors.Newf("pattern %d: subject must not be a literal", i+1)
		}
		if p.Predicate.IsBlank() || !p.Predicate.IsVar() && p.Predicate.Term.Kind != types.KindIRI {
			return nil, errors.Newf("pattern %d: predicate must be an IRI or variable", i+1)
		}
	}
	return out, nil
}

type tokenizer struct {
	src      string
	pos      int
	prefixes map[string]string
}

// next returns the next slot, or end=true for a '.' separator, or
// done=true at end of input.
func (t *tokenizer) next() (slot Slot, end, done bool, err error) {
	t.skip()
	if t.pos >= len(t.src) {
		return Slot{}, false, true, nil
	}
	rest := t.src[t.pos:]
	c := rest[0]
	switch {
	case c == '.':
		t.pos++
		return Slot{}, true, false, nil
	case c == '?' || c == '$':
		name := takeName(rest[1:])
		if name == "" {
			return Slot{}, false, false, errors.Newf("empty variable name at offset %d", t.pos)
		}
		t.pos += 1 + len(name)
		return Slot{Var: name}, false, false, nil
	case strings.HasPrefix(rest, "_:"):
		name := takeName(rest[2:])
		if name == "" {
			return Slot{}, false, false, errors.Newf("empty blank node label at offset %d", t.pos)
		}
		t.pos += 2 + len(name)
		return Slot{Var: "_:" + name}, false, false, nil
	case c == '<' || c == '"':
		term, n, perr := nquads.ParseTerm(rest)
		if perr != nil {
			return Slot{}, false, false, errors.Wrapf(perr, "term at offset %d", t.pos)
		}
		t.pos += n
		return Slot{Term: term}, false, false, nil
	case c == 'a' && (len(rest) == 1 || isSpace(rest[1])):
		t.pos++
		return Slot{Term: types.IRI(types.RDFType)}, false, false, nil
	}

	// Prefixed name.
	prefix := takeName(rest)
	colon := len(prefix)
	if colon >= len(rest) || rest[colon] != ':' {
		return Slot{}, false, false, errors.Newf("unexpected token at offset %d", t.pos)
	}
	ns, ok := t.prefixes[prefix]
	if !ok {
		return Slot{}, false, false, errors.Newf("undeclared prefix %q", prefix)
	}
	local := takeLocal(rest[colon+1:])
	t.pos += colon + 1 + len(local)
	return Slot{Term: types.IRI(ns + local)}, false, false, nil
}

func (t *tokenizer) skip() {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case isSpace(c):
			t.pos++
		case c == '#':
			for t.pos < len(t.src) && t.src[t.pos] != '\n' {
				t.pos++
			}
		default:
			return
		}
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func takeName(s string) string {
	i := 0
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	return s[:i]
}

// takeLocal reads the local part of a prefixed name. A trailing '.' ends
// the statement rather than belonging to the name.
func takeLocal(s string) string {
	i := 0
	for i < len(s) && (isNameByte(s[i]) || s[i] == '.' || s[i] == '%' || s[i] == '/') {
		i++
	}
	for i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
