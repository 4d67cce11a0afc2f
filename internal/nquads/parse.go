// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package nquads reads and writes the N-Triples and N-Quads line formats
// used for cached documents and ingest dumps.
package nquads

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

// maxLineBytes bounds a single statement line.
const maxLineBytes = 4 << 20

// Quad is a fact together with the named graph it belongs to. An empty
// Graph denotes the default graph.
type Quad struct {
	types.Fact
	Graph string
}

// SyntaxError reports the line and column of a malformed statement.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return "nquads: line " + strconv.Itoa(e.Line) + ", col " + strconv.Itoa(e.Col) + ": " + e.Msg
}

// Parse reads every statement from r. Malformed input is reported as a
// *SyntaxError marked with errors.ErrValidation.
func Parse(r io.Reader) ([]Quad, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var quads []Quad
	line := 0
	for sc.Scan() {
		line++
		q, ok, err := parseLine(sc.Text())
		if err != nil {
			var se *SyntaxError
			if errors.As(err, &se) {
				se.Line = line
			}
			return nil, errors.Mark(err, errors.ErrValidation)
		}
		if ok {
			quads = append(quads, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading statements")
	}
	return quads, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) ([]Quad, error) {
	return Parse(strings.NewReader(s))
}

// Graphs groups quads by graph name, in first-seen order.
func Graphs(quads []Quad) []types.Graph {
	index := make(map[string]int)
	var out []types.Graph
	for _, q := range quads {
		i, ok := index[q.Graph]
		if !ok {
			i = len(out)
			index[q.Graph] = i
			out = append(out, types.Graph{Name: q.Graph})
		}
		out[i].Facts = append(out[i].Facts, q.Fact)
	}
	return out
}

// ReadGraph parses a document and merges all its statements into one
// graph named name, ignoring graph labels.
func ReadGraph(r io.Reader, name string) (types.Graph, error) {
	quads, err := Parse(r)
	if err != nil {
		return types.Graph{}, err
	}
	g := types.Graph{Name: name, Facts: make([]types.Fact, len(quads))}
	for i, q := range quads {
		g.Facts[i] = q.Fact
	}
	return g, nil
}

func parseLine(s string) (Quad, bool, error) {
	p := &lineParser{s: s}
	p.skipSpace()
	if p.eof() || p.peek() == '#' {
		return Quad{}, false, nil
	}

	var q Quad
	var err error
	if q.Subject, err = p.term(); err != nil {
		return q, false, err
	}
	if !q.Subject.IsIdentifier() {
		return q, false, p.errorf("subject must be an IRI or blank node")
	}
	if q.Predicate, err = p.term(); err != nil {
		return q, false, err
	}
	if q.Predicate.Kind != types.KindIRI {
		return q, false, p.errorf("predicate must be an IRI")
	}
	if q.Object, err = p.term(); err != nil {
		return q, false, err
	}

	p.skipSpace()
	if !p.eof() && p.peek() != '.' {
		g, err := p.term()
		if err != nil {
			return q, false, err
		}
		switch g.Kind {
		case types.KindIRI:
			q.Graph = g.Value
		case types.KindBlank:
			q.Graph = "_:" + g.Value
		default:
			return q, false, p.errorf("graph label must be an IRI or blank node")
		}
		p.skipSpace()
	}
	if p.eof() || p.peek() != '.' {
		return q, false, p.errorf("expected '.' at end of statement")
	}
	p.pos++
	p.skipSpace()
	if !p.eof() && p.peek() != '#' {
		return q, false, p.errorf("unexpected content after '.'")
	}
	return q, true, nil
}

// ParseTerm reads one IRI, blank node or literal from the start of s and
// returns it with the number of bytes consumed.
func ParseTerm(s string) (types.Term, int, error) {
	p := &lineParser{s: s}
	t, err := p.term()
	if err != nil {
		return types.Term{}, 0, err
	}
	return t, p.pos, nil
}

type lineParser struct {
	s   string
	pos int
}

func (p *lineParser) eof() bool  { return p.pos >= len(p.s) }
func (p *lineParser) peek() byte { return p.s[p.pos] }

func (p *lineParser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\r') {
		p.pos++
	}
}

func (p *lineParser) errorf(msg string) error {
	return &SyntaxError{Col: p.pos + 1, Msg: msg}
}

func (p *lineParser) term() (types.Term, error) {
	p.skipSpace()
	if p.eof() {
		return types.Term{}, p.errorf("unexpected end of line")
	}
	switch {
	case p.peek() == '<':
		v, err := p.iri()
		if err != nil {
			return types.Term{}, err
		}
		return types.IRI(v), nil
	case strings.HasPrefix(p.s[p.pos:], "_:"):
		return p.blank()
	case p.peek() == '"':
		return p.literal()
	}
	return types.Term{}, p.errorf("expected IRI, blank node or literal")
}

func (p *lineParser) iri() (string, error) {
	p.pos++ // <
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '>':
			p.pos++
			if b.Len() == 0 {
				return "", p.errorf("empty IRI")
			}
			if !utf8.ValidString(b.String()) {
				return "", p.errorf("IRI is not valid UTF-8")
			}
			return b.String(), nil
		case c == '\\':
			r, err := p.escape(false)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		case c <= ' ' || c == '<' || c == '"' || c == '{' || c == '}' || c == '|' || c == '^' || c == '`':
			return "", p.errorf("invalid character in IRI")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated IRI")
}

func (p *lineParser) blank() (types.Term, error) {
	p.pos += 2
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ' ' || c == '\t' || c == '.' && (p.pos+1 == len(p.s) || p.s[p.pos+1] == ' ' || p.s[p.pos+1] == '\t') {
			break
		}
		if c == '<' || c == '"' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return types.Term{}, p.errorf("empty blank node label")
	}
	return types.Blank(p.s[start:p.pos]), nil
}

func (p *lineParser) literal() (types.Term, error) {
	p.pos++ // opening quote
	var b strings.Builder
	closed := false
	for !p.eof() {
		c := p.peek()
		if c == '"' {
			p.pos++
			closed = true
			break
		}
		if c == '\\' {
			r, err := p.escape(true)
			if err != nil {
				return types.Term{}, err
			}
			b.WriteRune(r)
			continue
		}
		if c == '\n' || c == '\r' {
			return types.Term{}, p.errorf("raw line break in literal")
		}
		b.WriteByte(c)
		p.pos++
	}
	if !closed {
		return types.Term{}, p.errorf("unterminated literal")
	}
	if !utf8.ValidString(b.String()) {
		return types.Term{}, p.errorf("literal is not valid UTF-8")
	}
	t := types.Literal(b.String())

	switch {
	case !p.eof() && p.peek() == '@':
		p.pos++
		start := p.pos
		for !p.eof() && (isAlnum(p.peek()) || p.peek() == '-') {
			p.pos++
		}
		if p.pos == start {
			return types.Term{}, p.errorf("empty language tag")
		}
		t.Lang = strings.ToLower(p.s[start:p.pos])
	case strings.HasPrefix(p.s[p.pos:], "^^"):
		p.pos += 2
		if p.eof() || p.peek() != '<' {
			return types.Term{}, p.errorf("expected datatype IRI after ^^")
		}
		dt, err := p.iri()
		if err != nil {
			return types.Term{}, err
		}
		if dt != types.XSDString {
			t.Datatype = dt
		}
	}
	return t, nil
}

// escape decodes one backslash sequence. String escapes are only legal
// inside literals; \u and \U are legal in both IRIs and literals.
func (p *lineParser) escape(inLiteral bool) (rune, error) {
	p.pos++ // backslash
	if p.eof() {
		return 0, p.errorf("dangling escape")
	}
	c := p.peek()
	p.pos++
	switch c {
	case 'u', 'U':
		n := 4
		if c == 'U' {
			n = 8
		}
		if p.pos+n > len(p.s) {
			return 0, p.errorf("short unicode escape")
		}
		v, err := strconv.ParseUint(p.s[p.pos:p.pos+n], 16, 32)
		if err != nil || !utf8.ValidRune(rune(v)) {
			return 0, p.errorf("invalid unicode escape")
		}
		p.pos += n
		return rune(v), nil
	}
	if !inLiteral {
		return 0, p.errorf("invalid escape in IRI")
	}
	switch c {
	case 't':
		return '\t', nil
	case 'b':
		return '\b', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 'f':
		return '\f', nil
	case '"':
		return '"', nil
	case '\'':
		return '\'', nil
	case '\\':
		return '\\', nil
	}
	return 0, p.errorf("invalid escape sequence")
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
