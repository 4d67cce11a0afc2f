// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provenance derives document graph keys and builds the PROV-O
// record that links derived graphs to their source.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

// Graph name suffixes below a document key.
const (
	MembershipSuffix = "#membership"
	ProvSuffix       = "#prov"
	ActivitySuffix   = "#activity"
)

// GraphKey returns the deterministic named-graph key of a source
// document: base followed by the hex sha256 of the source identifier.
func GraphKey(base, sourceID string) string {
	sum := sha256.Sum256([]byte(sourceID))
	return base + hex.EncodeToString(sum[:])
}

// RuleGraph names the graph holding one rule's output for a document.
func RuleGraph(key, fragment string) string {
	return key + "#" + fragment
}

// Record builds the provenance record of one processing run. It fails with
// a validation error when the interval is inverted or an input is empty.
func Record(sourceID, graphKey string, startedAt, endedAt time.Time) (types.ProvenanceRecord, error) {
	if sourceID == "" || graphKey == "" {
		return types.ProvenanceRecord{}, errors.Mark(errors.New("provenance needs a source and a graph key"), errors.ErrValidation)
	}
	if endedAt.Before(startedAt) {
		return types.ProvenanceRecord{}, errors.Mark(
			errors.Newf("activity ends (%s) before it starts (%s)", endedAt.Format(time.RFC3339Nano), startedAt.Format(time.RFC3339Nano)),
			errors.ErrValidation)
	}
	return types.ProvenanceRecord{
		SourceID:    sourceID,
		GraphKey:    graphKey,
		Activity:    graphKey + ActivitySuffix,
		StartedAt:   startedAt.UTC(),
		EndedAt:     endedAt.UTC(),
		DerivedFrom: sourceID,
	}, nil
}

// Facts renders rec as PROV-O statements. Every graph in derived is
// linked to the source and to the activity that generated it.
func Facts(rec types.ProvenanceRecord, derived []string) []types.Fact {
	activity := types.IRI(rec.Activity)
	source := types.IRI(rec.DerivedFrom)
	facts := []types.Fact{
		types.NewFact(activity, types.IRI(types.RDFType), types.IRI(types.ProvActivity)),
		types.NewFact(activity, types.IRI(types.ProvStarted), types.TypedLiteral(rec.StartedAt.Format(time.RFC3339Nano), types.XSDDateTime)),
		types.NewFact(activity, types.IRI(types.ProvEnded), types.TypedLiteral(rec.EndedAt.Format(time.RFC3339Nano), types.XSDDateTime)),
		types.NewFact(types.IRI(rec.GraphKey), types.IRI(types.ProvDerived), source),
	}
	for _, g := range derived {
		facts = append(facts,
			types.NewFact(types.IRI(g), types.IRI(types.ProvDerived), source),
			types.NewFact(types.IRI(g), types.IRI(types.ProvGenerated), activity),
		)
	}
	return types.SortFacts(facts)
}
