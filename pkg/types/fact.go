// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"strings"
)

// Well-known vocabulary used across stages.
const (
	SameAs        = "http://www.w3.org/2002/07/owl#sameAs"
	RDFType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	XSDDateTime   = "http://www.w3.org/2001/XMLSchema#dateTime"
	ProvActivity  = "http://www.w3.org/ns/prov#Activity"
	ProvDerived   = "http://www.w3.org/ns/prov#wasDerivedFrom"
	ProvGenerated = "http://www.w3.org/ns/prov#wasGeneratedBy"
	ProvStarted   = "http://www.w3.org/ns/prov#startedAtTime"
	ProvEnded     = "http://www.w3.org/ns/prov#endedAtTime"

	RDFSLabel   = "http://www.w3.org/2000/01/rdf-schema#label"
	RDFSComment = "http://www.w3.org/2000/01/rdf-schema#comment"
	VoidDataset = "http://rdfs.org/ns/void#Dataset"
	IsPartOf    = "http://purl.org/dc/terms/isPartOf"
)

// TermKind distinguishes identifiers from literal values.
type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindBlank
	KindLiteral
)

// String returns the kind name used in storage and logs.
func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	}
	return "unknown"
}

// ParseTermKind is the inverse of TermKind.String.
func ParseTermKind(s string) (TermKind, bool) {
	switch s {
	case "iri":
		return KindIRI, true
	case "blank":
		return KindBlank, true
	case "literal":
		return KindLiteral, true
	}
	return 0, false
}

// Term is one position of a Fact. Value holds the IRI, the blank node
// label (without "_:") or the lexical form of a literal.
type Term struct {
	Kind  TermKind `json:"kind" yaml:"kind"`
	Value string   `json:"value" yaml:"value"`

	// Datatype is the datatype IRI of a typed literal.
	Datatype string `json:"datatype,omitempty" yaml:"datatype,omitempty"`

	// Lang is the language tag of a literal.
	Lang string `json:"lang,omitempty" yaml:"lang,omitempty"`
}

// IRI returns an identifier term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank node term.
func Blank(label string) Term { return Term{Kind: KindBlank, Value: label} }

// Literal returns a plain string literal.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// LangLiteral returns a language-tagged literal.
func LangLiteral(v, lang string) Term { return Term{Kind: KindLiteral, Value: v, Lang: lang} }

// TypedLiteral returns a literal with a datatype IRI.
func TypedLiteral(v, datatype string) Term {
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// IsIdentifier reports whether the term names a resource (IRI or blank node).
func (t Term) IsIdentifier() bool { return t.Kind == KindIRI || t.Kind == KindBlank }

// IsZero reports whether the term is unset.
func (t Term) IsZero() bool { return t.Kind == 0 && t.Value == "" }

// Key is a compact, unambiguous string form used for map keys and ordering.
func (t Term) Key() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		var b strings.Builder
		b.WriteByte('"')
		b.WriteString(t.Value)
		b.WriteByte('"')
		if t.Lang != "" {
			b.WriteByte('@')
			b.WriteString(t.Lang)
		} else if t.Datatype != "" && t.Datatype != XSDString {
			b.WriteString("^^<")
			b.WriteString(t.Datatype)
			b.WriteByte('>')
		}
		return b.String()
	}
	return ""
}

// String implements fmt.Stringer.
func (t Term) String() string { return t.Key() }

// Fact is a subject-predicate-object statement.
type Fact struct {
	Subject   Term `json:"subject" yaml:"subject"`
	Predicate Term `json:"predicate" yaml:"predicate"`
	Object    Term `json:"object" yaml:"object"`
}

// NewFact is shorthand for building a fact.
func NewFact(s, p, o Term) Fact { return Fact{Subject: s, Predicate: p, Object: o} }

// Key identifies the fact for de-duplication.
func (f Fact) Key() string {
	return f.Subject.Key() + " " + f.Predicate.Key() + " " + f.Object.Key()
}

// Graph is a FactSet tagged with its origin label (named graph).
type Graph struct {
	// Name is the named-graph label, usually an IRI.
	Name string `json:"name" yaml:"name"`

	// Facts holds the statements of the graph.
	Facts []Fact `json:"facts" yaml:"facts"`
}

// Len returns the number of facts in the graph.
func (g Graph) Len() int { return len(g.Facts) }

// Canonical returns a copy of the graph with duplicate facts removed and
// the remaining facts sorted by Key, so equal content compares equal.
func (g Graph) Canonical() Graph {
	return Graph{Name: g.Name, Facts: SortFacts(g.Facts)}
}

// SortFacts returns a de-duplicated, sorted copy of facts.
func SortFacts(facts []Fact) []Fact {
	seen := make(map[string]Fact, len(facts))
	keys := make([]string, 0, len(facts))
	for _, f := range facts {
		k := f.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = f
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Fact, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}
