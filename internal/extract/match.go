// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"github.com/pdiddy/indexer/internal/rules"
	"github.com/pdiddy/indexer/pkg/types"
)

// index is a read-only view of a document's facts keyed by subject and by
// predicate. It never aliases the caller's slice for writing.
type index struct {
	all         []types.Fact
	bySubject   map[string][]int
	byPredicate map[string][]int
}

func newIndex(facts []types.Fact) *index {
	idx := &index{
		all:         facts,
		bySubject:   make(map[string][]int),
		byPredicate: make(map[string][]int),
	}
	for i, f := range facts {
		sk, pk := f.Subject.Key(), f.Predicate.Key()
		idx.bySubject[sk] = append(idx.bySubject[sk], i)
		idx.byPredicate[pk] = append(idx.byPredicate[pk], i)
	}
	return idx
}

// candidates returns fact positions that can match p once the variables
// already bound in b are substituted.
func (idx *index) candidates(p rules.Pattern, b binding) []int {
	if t, ok := resolveSlot(p.Subject, b); ok {
		return idx.bySubject[t.Key()]
	}
	if t, ok := resolveSlot(p.Predicate, b); ok {
		return idx.byPredicate[t.Key()]
	}
	all := make([]int, len(idx.all))
	for i := range all {
		all[i] = i
	}
	return all
}

// match joins bindings with pattern p, returning every consistent
// extension.
func (idx *index) match(p rules.Pattern, bindings []binding) []binding {
	var out []binding
	for _, b := range bindings {
		for _, i := range idx.candidates(p, b) {
			f := idx.all[i]
			nb, ok := unify(p.Subject, f.Subject, b, nil)
			if !ok {
				continue
			}
			if nb, ok = unify(p.Predicate, f.Predicate, b, nb); !ok {
				continue
			}
			if nb, ok = unify(p.Object, f.Object, b, nb); !ok {
				continue
			}
			if nb == nil {
				nb = b
			}
			out = append(out, nb)
		}
	}
	return out
}

// unify matches one slot against a term. ext is the binding being built
// for this fact (nil until a variable is first bound); base is never
// modified.
func unify(s rules.Slot, t types.Term, base, ext binding) (binding, bool) {
	if !s.IsVar() {
		return ext, s.Term == t
	}
	cur := base
	if ext != nil {
		cur = ext
	}
	if v, ok := cur[s.Var]; ok {
		return ext, v == t
	}
	if ext == nil {
		ext = base.extend()
	}
	ext[s.Var] = t
	return ext, true
}

func resolveSlot(s rules.Slot, b binding) (types.Term, bool) {
	if !s.IsVar() {
		return s.Term, true
	}
	t, ok := b[s.Var]
	return t, ok
}
