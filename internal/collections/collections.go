// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collections groups proxies into void:Dataset collections. Every
// proxy is part of "everything" and of the collection of the host its
// source came from; instances of a few well-known classes also join a
// collection per class.
package collections

import (
	"net/url"
	"strings"

	"github.com/pdiddy/indexer/internal/extract"
	"github.com/pdiddy/indexer/pkg/types"
)

// Suffix names the collections graph below a document key.
const Suffix = "#collections"

// Collection describes one void:Dataset.
type Collection struct {
	Name        string
	Label       string
	Description string
}

// IRI returns the collection identifier under base.
func (c Collection) IRI(base string) string { return base + c.Name }

// Everything holds every proxy.
var Everything = Collection{Name: "everything", Label: "Everything", Description: "Everything in this database"}

var (
	images = Collection{Name: "images", Label: "Images", Description: "All the images"}
	videos = Collection{Name: "videos", Label: "Videos", Description: "All the TV content"}
)

var byType = map[string]Collection{
	"http://xmlns.com/foaf/0.1/Image":       images,
	"http://schema.org/ImageObject":         images,
	"http://purl.org/ontology/po/TVContent": videos,
}

// ForType returns the collection instances of class join, if any.
func ForType(class string) (Collection, bool) {
	c, ok := byType[class]
	return c, ok
}

// ForSource returns the collection of everything derived from the host of
// sourceID. Identifiers without a host have none.
func ForSource(sourceID string) (Collection, bool) {
	u, err := url.Parse(sourceID)
	if err != nil || u.Hostname() == "" {
		return Collection{}, false
	}
	host := strings.ToLower(u.Hostname())
	return Collection{
		Name:        strings.ReplaceAll(host, ".", "_"),
		Label:       host,
		Description: "Everything with data coming from " + host,
	}, true
}

// Facts returns the collections graph for resolved derivations of one
// source: a description of each collection used and one dcterms:isPartOf
// link per subject proxy and collection. Blank subjects are skipped.
func Facts(base, sourceID string, ds []extract.Derivation) []types.Fact {
	src, hasSource := ForSource(sourceID)
	used := make(map[string]Collection)
	var facts []types.Fact
	join := func(proxy string, c Collection) {
		used[c.Name] = c
		facts = append(facts, types.NewFact(types.IRI(proxy), types.IRI(types.IsPartOf), types.IRI(c.IRI(base))))
	}

	for _, d := range ds {
		for _, f := range d.Facts {
			if f.Subject.Kind != types.KindIRI {
				continue
			}
			join(f.Subject.Value, Everything)
			if hasSource {
				join(f.Subject.Value, src)
			}
			if f.Predicate.Value == types.RDFType && f.Object.Kind == types.KindIRI {
				if c, ok := byType[f.Object.Value]; ok {
					join(f.Subject.Value, c)
				}
			}
		}
	}
	if len(facts) == 0 {
		return nil
	}

	for _, c := range used {
		id := types.IRI(c.IRI(base))
		facts = append(facts,
			types.NewFact(id, types.IRI(types.RDFType), types.IRI(types.VoidDataset)),
			types.NewFact(id, types.IRI(types.RDFSLabel), types.Literal(c.Label)),
			types.NewFact(id, types.IRI(types.RDFSComment), types.Literal(c.Description)),
		)
	}
	return types.SortFacts(facts)
}
