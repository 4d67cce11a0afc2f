// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

func TestGraphKeyIsDeterministic(t *testing.T) {
	a := GraphKey("http://ex.org/idx/", "http://source.org/doc1")
	b := GraphKey("http://ex.org/idx/", "http://source.org/doc1")
	c := GraphKey("http://ex.org/idx/", "http://source.org/doc2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("http://ex.org/idx/")+64)
	assert.Equal(t, a+"#Title", RuleGraph(a, "Title"))
}

func TestRecord(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	end := start.Add(2 * time.Second)

	rec, err := Record("http://source.org/doc1", "http://ex.org/idx/abc", start, end)
	require.NoError(t, err)
	assert.Equal(t, "http://source.org/doc1", rec.DerivedFrom)
	assert.Equal(t, "http://ex.org/idx/abc#activity", rec.Activity)
	assert.Equal(t, time.UTC, rec.StartedAt.Location())

	_, err = Record("http://source.org/doc1", "http://ex.org/idx/abc", start, start)
	assert.NoError(t, err, "zero-length activity is valid")
}

func TestRecordRejectsInvertedInterval(t *testing.T) {
	start := time.Now()
	_, err := Record("s", "k", start, start.Add(-time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = Record("", "k", start, start)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestFacts(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec, err := Record("http://source.org/doc1", "http://ex.org/idx/abc", start, start.Add(time.Second))
	require.NoError(t, err)

	facts := Facts(rec, []string{"http://ex.org/idx/abc#Title"})
	assert.Len(t, facts, 6)
	assert.Contains(t, facts, types.NewFact(
		types.IRI("http://ex.org/idx/abc#Title"), types.IRI(types.ProvDerived), types.IRI("http://source.org/doc1")))
	assert.Contains(t, facts, types.NewFact(
		types.IRI("http://ex.org/idx/abc#activity"), types.IRI(types.ProvStarted),
		types.TypedLiteral("2026-03-01T09:00:00Z", types.XSDDateTime)))
}
