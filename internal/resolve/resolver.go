// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve consolidates the subjects of derived facts into
// canonical proxy identifiers.
//
// Subjects linked by owl:sameAs within a batch form one equivalence class.
// A class reuses a proxy assigned earlier in the same run, else the first
// proxy found in the store for any member, else a freshly minted one.
// Members already registered to a different proxy keep it.
// Objects are only rewritten to proxies that already exist; they never
// cause a proxy to be minted.
package resolve

import (
	"context"
	"slices"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/extract"
	"github.com/pdiddy/indexer/internal/logging"
	"github.com/pdiddy/indexer/pkg/types"
)

// ProxyLookup finds the proxy an identifier already belongs to. A proxy
// identifier resolves to itself.
type ProxyLookup interface {
	LookupProxy(ctx context.Context, id string) (proxy string, found bool, err error)
}

// Options configures a Resolver.
type Options struct {
	// Base prefixes minted proxy identifiers.
	Base string

	// Policy decides what happens when members of one class already
	// belong to different proxies. Empty means types.ConflictFirst.
	Policy types.ConflictPolicy

	// Mint overrides proxy identifier generation (tests).
	Mint func() string

	Log *zap.SugaredLogger
}

// Assignment records that Member belongs to Proxy.
type Assignment struct {
	Member string
	Proxy  string
	// Minted is true when Proxy was created by this run.
	Minted bool
}

// Result is the outcome of resolving one batch.
type Result struct {
	// Derivations holds the rewritten facts per rule. sameAs links between
	// identifiers are consumed and appear only in Membership.
	Derivations []extract.Derivation

	// Membership holds one "proxy owl:sameAs member" fact per member that
	// joins the class proxy. Members kept by another proxy get none.
	Membership []types.Fact

	// Subjects maps every class member to the proxy it belongs to.
	Subjects map[string]string

	// Objects maps object identifiers rewritten to pre-existing proxies.
	Objects map[string]string

	Assignments []Assignment
	Minted      []string
	Conflicts   []types.ProxyConflict
}

// Resolver rewrites derived facts to canonical identifiers. A Resolver
// must be driven by a single writer: lookups and minting are not atomic
// against the store.
type Resolver struct {
	lookup ProxyLookup
	base   string
	policy types.ConflictPolicy
	mint   func() string
	log    *zap.SugaredLogger
}

// New returns a Resolver backed by lookup.
func New(lookup ProxyLookup, opts Options) *Resolver {
	r := &Resolver{
		lookup: lookup,
		base:   opts.Base,
		policy: opts.Policy,
		mint:   opts.Mint,
		log:    logging.OrNop(opts.Log),
	}
	if r.policy == "" {
		r.policy = types.ConflictFirst
	}
	if r.mint == nil {
		r.mint = func() string { return r.base + uuid.NewString() + "#id" }
	}
	return r
}

// Resolve rewrites ds for source sourceID. Any lookup failure aborts the
// whole batch with an error marked errors.ErrResolution and an empty
// Result, so nothing minted here can be persisted on its own.
func (r *Resolver) Resolve(ctx context.Context, ds []extract.Derivation, sourceID string) (Result, error) {
	uf := newClosure()
	var subjects []string
	seenSubject := make(map[string]bool)
	for _, d := range ds {
		for _, f := range d.Facts {
			if isSameAsLink(f) {
				uf.union(f.Subject.Value, f.Object.Value)
			}
			if f.Subject.Kind == types.KindIRI && !seenSubject[f.Subject.Value] {
				seenSubject[f.Subject.Value] = true
				subjects = append(subjects, f.Subject.Value)
				uf.find(f.Subject.Value)
			}
		}
	}
	sort.Strings(subjects)
	classes := uf.classes()

	res := Result{
		Subjects: make(map[string]string),
		Objects:  make(map[string]string),
	}
	// lookups caches store answers for this run; "" means no proxy.
	lookups := make(map[string]string)
	lookup := func(id string) (string, error) {
		if p, ok := lookups[id]; ok {
			return p, nil
		}
		p, found, err := r.lookup.LookupProxy(ctx, id)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "looking up proxy for %s", id), errors.ErrResolution)
		}
		if !found {
			p = ""
		}
		lookups[id] = p
		return p, nil
	}

	for _, s := range subjects {
		if _, done := res.Subjects[s]; done {
			continue
		}
		members := orderMembers(s, classes[uf.find(s)])

		canonical := ""
		for _, m := range members {
			if p, ok := res.Subjects[m]; ok {
				canonical = p
				break
			}
		}

		minted := false
		if canonical == "" {
			found, others, err := r.searchStore(members, lookup)
			if err != nil {
				return Result{}, err
			}
			canonical = found
			if len(others) > 0 {
				c := types.ProxyConflict{SourceID: sourceID, Chosen: found, Others: others, Members: members}
				if err := r.conflict(c); err != nil {
					return Result{}, err
				}
				res.Conflicts = append(res.Conflicts, c)
			}
		}
		if canonical == "" {
			canonical = r.mint()
			minted = true
			res.Minted = append(res.Minted, canonical)
		}

		for _, m := range members {
			// A member registered to another proxy stays there; the clash
			// is only recorded as a conflict.
			owner, err := lookup(m)
			if err != nil {
				return Result{}, err
			}
			if owner != "" && owner != canonical {
				res.Subjects[m] = owner
				continue
			}
			res.Subjects[m] = canonical
			res.Assignments = append(res.Assignments, Assignment{Member: m, Proxy: canonical, Minted: minted})
			if m != canonical {
				res.Membership = append(res.Membership,
					types.NewFact(types.IRI(canonical), types.IRI(types.SameAs), types.IRI(m)))
			}
		}
		r.log.Debugw("resolved subject class",
			"source", sourceID, "proxy", canonical, "members", len(members), "minted", minted)
	}

	for _, d := range ds {
		var out []types.Fact
		for _, f := range d.Facts {
			if isSameAsLink(f) {
				continue
			}
			if f.Subject.Kind == types.KindIRI {
				f.Subject = types.IRI(res.Subjects[f.Subject.Value])
			}
			if f.Object.Kind == types.KindIRI {
				if p, ok := res.Subjects[f.Object.Value]; ok {
					f.Object = types.IRI(p)
				} else {
					p, err := lookup(f.Object.Value)
					if err != nil {
						return Result{}, err
					}
					if p != "" && p != f.Object.Value {
						res.Objects[f.Object.Value] = p
						f.Object = types.IRI(p)
					}
				}
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			continue
		}
		res.Derivations = append(res.Derivations, extract.Derivation{
			RuleID:   d.RuleID,
			Fragment: d.Fragment,
			Facts:    types.SortFacts(out),
		})
	}
	res.Membership = types.SortFacts(res.Membership)
	return res, nil
}

// searchStore queries members one at a time. The first proxy found wins;
// distinct proxies held by other members are returned as conflicts.
func (r *Resolver) searchStore(members []string, lookup func(string) (string, error)) (string, []string, error) {
	first := ""
	var others []string
	for _, m := range members {
		p, err := lookup(m)
		if err != nil {
			return "", nil, err
		}
		switch {
		case p == "":
		case first == "":
			first = p
		case p != first && !slices.Contains(others, p):
			others = append(others, p)
		}
	}
	return first, others, nil
}

// conflict applies the conflict policy. Proxies are never merged here.
func (r *Resolver) conflict(c types.ProxyConflict) error {
	r.log.Warnw("equivalence class spans several proxies",
		"source", c.SourceID, "chosen", c.Chosen, "others", c.Others, "policy", string(r.policy))
	if r.policy == types.ConflictReject {
		err := errors.Newf("members of %s already belong to proxies %s and %v", c.SourceID, c.Chosen, c.Others)
		return errors.Mark(errors.WithHint(err, "review the proxies and merge them manually"), errors.ErrValidation)
	}
	return nil
}

// orderMembers puts the subject first, then the remaining members sorted.
func orderMembers(subject string, class []string) []string {
	out := make([]string, 0, len(class)+1)
	out = append(out, subject)
	for _, m := range class {
		if m != subject {
			out = append(out, m)
		}
	}
	return out
}

func isSameAsLink(f types.Fact) bool {
	return f.Predicate.Kind == types.KindIRI && f.Predicate.Value == types.SameAs &&
		f.Subject.Kind == types.KindIRI && f.Object.Kind == types.KindIRI
}
