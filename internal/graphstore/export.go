// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graphstore

import (
	"context"
	"encoding/json"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/nquads"
	"github.com/pdiddy/indexer/pkg/types"
)

// Format selects an export encoding.
type Format string

const (
	FormatNQuads Format = "nquads"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

// ProxyExport is the serialized description of a proxy.
type ProxyExport struct {
	ID      string       `json:"id" yaml:"id"`
	Members []string     `json:"members" yaml:"members"`
	Facts   []ExportFact `json:"facts" yaml:"facts"`
}

// ExportFact is a fact in N-Triples term syntax.
type ExportFact struct {
	Predicate string `json:"predicate" yaml:"predicate"`
	Object    string `json:"object" yaml:"object"`
}

// Dump writes every stored quad as canonical N-Quads.
func (s *Store) Dump(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `SELECT graph, subject_kind, subject, predicate, object_kind, object, datatype, lang
		FROM quads ORDER BY graph`)
	if err != nil {
		return errors.Wrap(err, "reading quads")
	}
	defer rows.Close()

	var graphs []types.Graph
	for rows.Next() {
		var graph string
		f, err := scanFact(rows, &graph)
		if err != nil {
			return err
		}
		if len(graphs) == 0 || graphs[len(graphs)-1].Name != graph {
			graphs = append(graphs, types.Graph{Name: graph})
		}
		graphs[len(graphs)-1].Facts = append(graphs[len(graphs)-1].Facts, f)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "reading quads")
	}
	return nquads.WriteGraphs(w, graphs)
}

// WriteProxy writes p in the requested format.
func WriteProxy(w io.Writer, p types.Proxy, format Format) error {
	switch format {
	case FormatNQuads, "":
		facts := append([]types.Fact(nil), p.Facts...)
		for _, m := range p.Members {
			facts = append(facts, types.NewFact(types.IRI(p.ID), types.IRI(types.SameAs), types.IRI(m)))
		}
		return nquads.WriteFacts(w, facts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exportProxy(p))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(exportProxy(p))
	}
	return errors.Newf("unknown format %q", format)
}

func exportProxy(p types.Proxy) ProxyExport {
	out := ProxyExport{ID: p.ID, Members: p.Members, Facts: make([]ExportFact, 0, len(p.Facts))}
	if out.Members == nil {
		out.Members = []string{}
	}
	for _, f := range p.Facts {
		out.Facts = append(out.Facts, ExportFact{
			Predicate: f.Predicate.Value,
			Object:    nquads.FormatTerm(f.Object),
		})
	}
	return out
}
