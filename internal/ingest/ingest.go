// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest loads harvested N-Quads dumps into the document cache.
// Every named graph labelled with an http(s) IRI becomes one cache entry
// keyed by that label.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/indexer/internal/cache"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/nquads"
	"github.com/pdiddy/indexer/pkg/types"
)

// Cache is the part of the document cache ingest writes to.
type Cache interface {
	Store(ctx context.Context, g types.Graph) (cache.StoreOutcome, error)
}

// BatchResult holds the outcome of an ingest run.
type BatchResult struct {
	Stored  int
	Updated int
	Skipped int
	Failed  int
	Sources []string
}

// Total returns the number of graphs seen.
func (r BatchResult) Total() int {
	return r.Stored + r.Updated + r.Skipped + r.Failed
}

// HasFailures reports whether any graph or file failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

func (r *BatchResult) add(o BatchResult) {
	r.Stored += o.Stored
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Sources = append(r.Sources, o.Sources...)
}

// IsSource reports whether a graph label names a harvestable source.
func IsSource(label string) bool {
	return strings.HasPrefix(label, "http://") || strings.HasPrefix(label, "https://")
}

// Reader caches the graphs of one N-Quads stream. A stream that does not
// parse is rejected as a whole.
func Reader(ctx context.Context, c Cache, r io.Reader, w io.Writer) (BatchResult, error) {
	quads, err := nquads.Parse(r)
	if err != nil {
		return BatchResult{}, err
	}
	var result BatchResult
	for _, g := range nquads.Graphs(quads) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !IsSource(g.Name) {
			label := g.Name
			if label == "" {
				label = "default graph"
			}
			fmt.Fprintf(w, "skipped: %s (not an http(s) source, %d facts)\n", label, len(g.Facts))
			result.Skipped++
			continue
		}
		outcome, err := c.Store(ctx, g)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", g.Name, err)
			result.Failed++
			continue
		}
		switch outcome {
		case cache.Created:
			fmt.Fprintf(w, "stored:  %s (%d facts)\n", g.Name, len(g.Facts))
			result.Stored++
		case cache.Updated:
			fmt.Fprintf(w, "updated: %s (%d facts)\n", g.Name, len(g.Facts))
			result.Updated++
		default:
			fmt.Fprintf(w, "skipped: %s (unchanged)\n", g.Name)
			result.Skipped++
			continue
		}
		result.Sources = append(result.Sources, g.Name)
	}
	return result, nil
}

// File caches the graphs of the N-Quads file at path.
func File(ctx context.Context, c Cache, path string, w io.Writer) (BatchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return BatchResult{}, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	result, err := Reader(ctx, c, f, w)
	if err != nil {
		return result, errors.Wrapf(err, "ingesting %s", path)
	}
	return result, nil
}

// Batch ingests several files, continuing after individual failures, and
// prints a summary. A file that cannot be read or parsed counts as one
// failure.
func Batch(ctx context.Context, c Cache, paths []string, w io.Writer) BatchResult {
	var result BatchResult
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(w, "reading: %s\n", path)
		r, err := File(ctx, c, path, w)
		result.add(r)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", path, err)
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nIngest summary: %d stored, %d updated, %d skipped, %d failed (total: %d)\n",
		result.Stored, result.Updated, result.Skipped, result.Failed, result.Total())
	return result
}
