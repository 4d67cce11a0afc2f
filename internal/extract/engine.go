// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract applies the rule base to a harvested document and
// returns the facts each rule derives.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/indexer/internal/rules"
	"github.com/pdiddy/indexer/pkg/types"
)

// Derivation is the non-empty set of facts one rule derived from one
// document.
type Derivation struct {
	RuleID   string
	Fragment string
	Facts    []types.Fact
}

// Engine evaluates rules. It holds no state besides its settings and is
// safe for concurrent use across documents.
type Engine struct {
	// Parallelism bounds concurrent rule evaluation for one document.
	// Zero uses GOMAXPROCS.
	Parallelism int
}

// Apply evaluates every rule against input and returns one Derivation per
// rule that matched, in rule order. Rules with no match are omitted. The
// input graph is never modified.
func (e Engine) Apply(ctx context.Context, rs []rules.Rule, input types.Graph) ([]Derivation, error) {
	idx := newIndex(input.Facts)
	results := make([]Derivation, len(rs))

	g, ctx := errgroup.WithContext(ctx)
	limit := e.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i := range rs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Derivation{
				RuleID:   rs[i].ID,
				Fragment: rs[i].Fragment(),
				Facts:    evaluate(rs[i], idx),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0:0]
	for _, d := range results {
		if len(d.Facts) > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// ByRule indexes derivations by rule id.
func ByRule(ds []Derivation) map[string]Derivation {
	m := make(map[string]Derivation, len(ds))
	for _, d := range ds {
		m[d.RuleID] = d
	}
	return m
}

// Count returns the total number of derived facts.
func Count(ds []Derivation) int {
	n := 0
	for _, d := range ds {
		n += len(d.Facts)
	}
	return n
}

// evaluate matches the rule's patterns and instantiates its template once
// per distinct binding. All bindings are collected before any output is
// built.
func evaluate(r rules.Rule, idx *index) []types.Fact {
	bindings := []binding{{}}
	for _, p := range r.Where {
		bindings = idx.match(p, bindings)
		if len(bindings) == 0 {
			return nil
		}
	}

	seen := make(map[string]bool, len(bindings))
	var facts []types.Fact
	for _, b := range bindings {
		key := b.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		for _, tp := range r.Construct {
			if f, ok := instantiate(tp, b, r.ID, key); ok {
				facts = append(facts, f)
			}
		}
	}
	if len(facts) == 0 {
		return nil
	}
	return types.SortFacts(facts)
}

// instantiate fills a template pattern. Combinations that would produce an
// ill-formed fact (literal subject, non-IRI predicate) are skipped.
func instantiate(tp rules.Pattern, b binding, ruleID, bindingKey string) (types.Fact, bool) {
	fill := func(s rules.Slot) types.Term {
		switch {
		case s.IsBlank():
			return freshBlank(s.Var, ruleID, bindingKey)
		case s.IsVar():
			return b[s.Var]
		}
		return s.Term
	}
	f := types.NewFact(fill(tp.Subject), fill(tp.Predicate), fill(tp.Object))
	if !f.Subject.IsIdentifier() || f.Predicate.Kind != types.KindIRI || f.Object.IsZero() {
		return types.Fact{}, false
	}
	return f, true
}

// freshBlank labels a template blank node deterministically from the rule
// and binding, so reprocessing the same document yields the same labels.
func freshBlank(name, ruleID, bindingKey string) types.Term {
	h := sha256.Sum256([]byte(ruleID + "\x00" + bindingKey))
	return types.Blank(strings.TrimPrefix(name, "_:") + "_" + hex.EncodeToString(h[:6]))
}

// binding maps variable names to terms.
type binding map[string]types.Term

func (b binding) key() string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, k := range names {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b[k].Key())
		sb.WriteByte(0)
	}
	return sb.String()
}

func (b binding) extend() binding {
	nb := make(binding, len(b)+3)
	for k, v := range b {
		nb[k] = v
	}
	return nb
}
