// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"sort"
	"strings"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

// Node is one position of a query pattern: a variable when Var is set,
// otherwise the bound term.
type Node struct {
	Var  string
	Term types.Term
}

// Var returns an unbound position. An empty name matches anything
// without producing a binding.
func Var(name string) Node { return Node{Var: "?" + name} }

// Any matches every term without binding it.
func Any() Node { return Node{Var: "?"} }

// Bound returns a position fixed to t.
func Bound(t types.Term) Node { return Node{Term: t} }

func (n Node) unbound() bool { return n.Var != "" }

func (n Node) name() string { return strings.TrimPrefix(n.Var, "?") }

// Pattern is a quad pattern. An empty Graph searches every graph.
type Pattern struct {
	Graph     string
	Subject   Node
	Predicate Node
	Object    Node
}

// Binding maps variable names (without '?') to terms.
type Binding map[string]types.Term

// column groups the SQL columns of one position.
type column struct {
	kind, value string
	extra       []string // datatype, lang for objects
}

var (
	subjectCol   = column{kind: "subject_kind", value: "subject"}
	predicateCol = column{value: "predicate"}
	objectCol    = column{kind: "object_kind", value: "object", extra: []string{"datatype", "lang"}}
)

// buildQuery turns p into a WHERE clause and its arguments. Bound terms
// are always passed as arguments.
func buildQuery(p Pattern) (string, []any, error) {
	var where []string
	var args []any
	if p.Graph != "" {
		where = append(where, "graph = ?")
		args = append(args, p.Graph)
	}

	firstSeen := make(map[string]column)
	positions := []struct {
		n   Node
		col column
	}{{p.Subject, subjectCol}, {p.Predicate, predicateCol}, {p.Object, objectCol}}

	for _, pos := range positions {
		if pos.n.unbound() {
			name := pos.n.name()
			if name == "" {
				continue
			}
			prev, ok := firstSeen[name]
			if !ok {
				firstSeen[name] = pos.col
				continue
			}
			// Repeated variable: both positions must hold the same term.
			where = append(where, prev.value+" = "+pos.col.value)
			if prev.kind != "" && pos.col.kind != "" {
				where = append(where, prev.kind+" = "+pos.col.kind)
			} else {
				k := prev.kind
				if k == "" {
					k = pos.col.kind
				}
				if k != "" {
					where = append(where, k+" = 'iri'")
				}
			}
			continue
		}

		t := pos.n.Term
		if t.Kind == 0 {
			return "", nil, errors.Mark(errors.New("bound position without a term"), errors.ErrValidation)
		}
		if pos.col.kind == "" {
			if t.Kind != types.KindIRI {
				return "", nil, errors.Mark(errors.Newf("predicate must be an IRI, got %s", t), errors.ErrValidation)
			}
		} else {
			where = append(where, pos.col.kind+" = ?")
			args = append(args, t.Kind.String())
		}
		where = append(where, pos.col.value+" = ?")
		args = append(args, t.Value)
		if pos.col.extra != nil {
			where = append(where, "datatype = ?", "lang = ?")
			args = append(args, t.Datatype, t.Lang)
		}
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	return clause, args, nil
}

// QueryPattern returns the distinct bindings of the pattern's variables.
// A limit of 0 returns every binding.
func (s *Store) QueryPattern(ctx context.Context, p Pattern, limit int) ([]Binding, error) {
	clause, args, err := buildQuery(p)
	if err != nil {
		return nil, err
	}
	q := `SELECT DISTINCT subject_kind, subject, predicate, object_kind, object, datatype, lang FROM quads` +
		clause + ` ORDER BY subject, predicate, object`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying pattern")
	}
	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(facts))
	out := make([]Binding, 0, len(facts))
	for _, f := range facts {
		b := Binding{}
		bind(b, p.Subject, f.Subject)
		bind(b, p.Predicate, f.Predicate)
		bind(b, p.Object, f.Object)
		key := bindingKey(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out, nil
}

// Ask reports whether any quad matches the pattern.
func (s *Store) Ask(ctx context.Context, p Pattern) (bool, error) {
	clause, args, err := buildQuery(p)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM quads`+clause+`)`, args...).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "asking pattern")
	}
	return exists, nil
}

func bind(b Binding, n Node, t types.Term) {
	if n.unbound() && n.name() != "" {
		b[n.name()] = t
	}
}

func bindingKey(b Binding) string {
	var sb strings.Builder
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b[k].Key())
		sb.WriteByte(0)
	}
	return sb.String()
}
