// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/indexer/internal/cache"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/pkg/types"
)

const dump = `# harvested 2026-03-01
<http://src.org/docA> <http://purl.org/dc/terms/title> "Hamlet" <http://src.org/dump1> .
<http://src.org/docA> <http://www.w3.org/2002/07/owl#sameAs> <http://src.org/docB> <http://src.org/dump1> .
<http://src.org/docC> <http://purl.org/dc/terms/title> "Macbeth"@en <https://src.org/dump2> .
<http://src.org/docD> <http://purl.org/dc/terms/title> "local" _:g .
<http://src.org/docE> <http://purl.org/dc/terms/title> "default" .
`

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReader(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	var out bytes.Buffer
	r, err := Reader(ctx, c, strings.NewReader(dump), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Stored)
	assert.Equal(t, 2, r.Skipped, "blank-node and default graphs")
	assert.Equal(t, []string{"http://src.org/dump1", "https://src.org/dump2"}, r.Sources)
	assert.Contains(t, out.String(), "stored:  http://src.org/dump1 (2 facts)")
	assert.Contains(t, out.String(), "skipped: default graph")

	g, err := c.Retrieve(ctx, "http://src.org/dump1")
	require.NoError(t, err)
	assert.Len(t, g.Facts, 2)

	queue, err := c.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, queue, 2)
}

func TestReader_UnchangedIsSkipped(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	_, err := Reader(ctx, c, strings.NewReader(dump), io.Discard)
	require.NoError(t, err)
	require.NoError(t, c.MarkProcessed(ctx, "http://src.org/dump1"))

	r, err := Reader(ctx, c, strings.NewReader(dump), io.Discard)
	require.NoError(t, err)
	assert.Zero(t, r.Stored)
	assert.Equal(t, 4, r.Skipped)

	e, err := c.Entry(ctx, "http://src.org/dump1")
	require.NoError(t, err)
	assert.True(t, e.Processed, "unchanged content is not re-queued")
}

func TestReader_ChangedIsRequeued(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	_, err := Reader(ctx, c, strings.NewReader(dump), io.Discard)
	require.NoError(t, err)
	require.NoError(t, c.MarkProcessed(ctx, "http://src.org/dump1"))

	changed := `<http://src.org/docA> <http://purl.org/dc/terms/title> "Hamlet, Prince of Denmark" <http://src.org/dump1> .` + "\n"
	r, err := Reader(ctx, c, strings.NewReader(changed), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Updated)

	e, err := c.Entry(ctx, "http://src.org/dump1")
	require.NoError(t, err)
	assert.False(t, e.Processed)
}

func TestReader_SyntaxError(t *testing.T) {
	c := testCache(t)
	_, err := Reader(context.Background(), c, strings.NewReader("<http://a> <http://b> .\n"), io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	queue, err := c.Queue(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, queue, "a broken file stores nothing")
}

type failingCache struct{}

func (failingCache) Store(context.Context, types.Graph) (cache.StoreOutcome, error) {
	return 0, errors.New("disk full")
}

func TestReader_StoreFailureContinues(t *testing.T) {
	var out bytes.Buffer
	r, err := Reader(context.Background(), failingCache{}, strings.NewReader(dump), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Failed)
	assert.True(t, r.HasFailures())
	assert.Contains(t, out.String(), "failed:  http://src.org/dump1 (disk full)")
}

func TestBatch(t *testing.T) {
	c := testCache(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.nq")
	bad := filepath.Join(dir, "bad.nq")
	require.NoError(t, os.WriteFile(good, []byte(dump), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("not n-quads\n"), 0o644))

	var out bytes.Buffer
	r := Batch(context.Background(), c, []string{good, bad, filepath.Join(dir, "missing.nq")}, &out)
	assert.Equal(t, 2, r.Stored)
	assert.Equal(t, 2, r.Failed)
	assert.Equal(t, 6, r.Total())
	assert.Contains(t, out.String(), "Ingest summary: 2 stored, 0 updated, 2 skipped, 2 failed (total: 6)")
}

func TestIsSource(t *testing.T) {
	assert.True(t, IsSource("http://src.org/x"))
	assert.True(t, IsSource("https://src.org/x"))
	assert.False(t, IsSource(""))
	assert.False(t, IsSource("urn:x"))
	assert.False(t, IsSource("b0"))
}
