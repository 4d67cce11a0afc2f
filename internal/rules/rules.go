// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules loads and compiles the rule base: ordered pattern and
// template pairs that derive normalized facts from harvested documents.
package rules

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/indexer/internal/errors"
)

// Rule derives facts: every distinct binding of the Where patterns
// against a document instantiates the Construct template once.
type Rule struct {
	// ID is the rule identifier, usually an IRI.
	ID string

	// Description is free text shown by "rules check".
	Description string

	Where     []Pattern
	Construct []Pattern
}

// Fragment is the short name used to label the rule's output graph:
// the IRI fragment, else the last path segment, sanitized.
func (r Rule) Fragment() string {
	id := r.ID
	if i := strings.LastIndexByte(id, '#'); i >= 0 && i < len(id)-1 {
		id = id[i+1:]
	} else if i := strings.LastIndexByte(strings.TrimRight(id, "/"), '/'); i >= 0 {
		id = strings.TrimRight(id, "/")[i+1:]
	}
	id = unsafeFragment.ReplaceAllString(id, "_")
	if id == "" {
		return "rule"
	}
	return id
}

var unsafeFragment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ruleFile is the on-disk YAML layout.
type ruleFile struct {
	Prefixes map[string]string `yaml:"prefixes"`
	Rules    []ruleRecord      `yaml:"rules"`
}

type ruleRecord struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	Where       string `yaml:"where"`
	Construct   string `yaml:"construct"`
}

// Load reads and compiles the rule file at path. Every failure is marked
// errors.ErrRuleLoad.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading rules %s", path), errors.ErrRuleLoad)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rules %s", path)
	}
	return rs, nil
}

// Parse compiles rules from YAML. Rules keep their file order.
func Parse(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing rule YAML"), errors.ErrRuleLoad)
	}
	if len(f.Rules) == 0 {
		return nil, errors.Mark(errors.New("rule file defines no rules"), errors.ErrRuleLoad)
	}

	seen := make(map[string]bool, len(f.Rules))
	out := make([]Rule, 0, len(f.Rules))
	for i, rec := range f.Rules {
		r, err := compile(rec, f.Prefixes)
		if err != nil {
			label := rec.ID
			if label == "" {
				label = "#" + strconv.Itoa(i+1)
			}
			return nil, errors.Mark(errors.Wrapf(err, "rule %s", label), errors.ErrRuleLoad)
		}
		if seen[r.ID] {
			return nil, errors.Mark(errors.Newf("duplicate rule id %s", r.ID), errors.ErrRuleLoad)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

func compile(rec ruleRecord, prefixes map[string]string) (Rule, error) {
	r := Rule{ID: strings.TrimSpace(rec.ID), Description: strings.TrimSpace(rec.Description)}
	if r.ID == "" {
		return r, errors.New("missing id")
	}
	if strings.TrimSpace(rec.Where) == "" {
		return r, errors.New("missing pattern (where)")
	}
	if strings.TrimSpace(rec.Construct) == "" {
		return r, errors.New("missing template (construct)")
	}

	var err error
	if r.Where, err = parsePatterns(rec.Where, prefixes); err != nil {
		return r, errors.Wrap(err, "where")
	}
	if r.Construct, err = parsePatterns(rec.Construct, prefixes); err != nil {
		return r, errors.Wrap(err, "construct")
	}
	if len(r.Where) == 0 || len(r.Construct) == 0 {
		return r, errors.New("where and construct must each hold at least one pattern")
	}

	bound := make(map[string]bool)
	for _, p := range r.Where {
		for _, v := range p.Vars() {
			bound[v] = true
		}
	}
	for _, p := range r.Construct {
		for _, v := range p.Vars() {
			if strings.HasPrefix(v, "_:") {
				continue // fresh node per binding
			}
			if !bound[v] {
				return r, errors.Newf("template variable ?%s is not bound by the pattern", v)
			}
		}
	}
	return r, nil
}
