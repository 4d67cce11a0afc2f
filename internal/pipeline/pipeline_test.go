// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/indexer/internal/cache"
	"github.com/pdiddy/indexer/internal/collections"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/graphstore"
	"github.com/pdiddy/indexer/internal/metrics"
	"github.com/pdiddy/indexer/internal/provenance"
	"github.com/pdiddy/indexer/internal/rules"
	"github.com/pdiddy/indexer/pkg/types"
)

const (
	title = "http://purl.org/dc/terms/title"
	cites = "http://purl.org/spar/cito/cites"

	passthrough = `rules:
  - id: http://ex.org/rules#All
    where: ?s ?p ?o .
    construct: ?s ?p ?o .
`
	titlesOnly = `rules:
  - id: http://ex.org/rules#Titles
    where: ?s <http://purl.org/dc/terms/title> ?t .
    construct: ?s <http://purl.org/dc/terms/title> ?t .
`
)

type staticRules []rules.Rule

func (s staticRules) Rules() []rules.Rule { return s }

func mustRules(t *testing.T, src string) staticRules {
	t.Helper()
	rs, err := rules.Parse([]byte(src))
	require.NoError(t, err)
	return rs
}

// sequence mints P1, P2, ... and is safe to share with the writer.
func sequence() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("http://ex.org/proxy/P%d", n)
	}
}

type env struct {
	cfg   types.Config
	cache *cache.Cache
	store *graphstore.Store
	mint  func() string
	clock time.Time
}

func setup(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.Base = "http://ex.org/doc/"
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Store.Path = filepath.Join(dir, "graph.db")
	cfg.Store.Timeout = 5 * time.Second
	cfg.Store.RetryBaseDelay = time.Millisecond
	require.NoError(t, cfg.Validate())

	c, err := cache.Open(cfg.Cache.Path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	s, err := graphstore.Open(cfg.Store.Path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &env{
		cfg:   cfg,
		cache: c,
		store: s,
		mint:  sequence(),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (e *env) pipeline(rs RuleSource, opts ...func(*Options)) *Pipeline {
	o := Options{
		Config: e.cfg,
		Cache:  e.cache,
		Store:  e.store,
		Rules:  rs,
		Now:    func() time.Time { return e.clock },
		Mint:   e.mint,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func (e *env) put(t *testing.T, source string, facts ...types.Fact) {
	t.Helper()
	_, err := e.cache.Store(context.Background(), types.Graph{Name: source, Facts: facts})
	require.NoError(t, err)
}

func (e *env) dump(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.store.Dump(context.Background(), &buf))
	return buf.String()
}

func iri(s string) types.Term { return types.IRI(s) }

func fact(s, p string, o types.Term) types.Fact { return types.NewFact(iri(s), iri(p), o) }

func sameAs(a, b string) types.Fact { return fact(a, types.SameAs, iri(b)) }

const (
	docA = "http://src.org/docA"
	docB = "http://src.org/docB"
	docC = "http://src.org/docC"
	docX = "http://src.org/docX"
	docY = "http://src.org/docY"
	p1   = "http://ex.org/proxy/P1"
	p9   = "http://ex.org/proxy/P9"
	src1 = "http://src.org/dump1"
)

func TestRun_HamletScenario(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")), sameAs(docA, docB))

	var out bytes.Buffer
	sum, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Minted)
	assert.Contains(t, out.String(), "indexed: "+src1)
	assert.Contains(t, out.String(), "Run summary: 1 indexed, 0 empty, 0 failed, 0 parked (total: 1)")

	key := provenance.GraphKey(e.cfg.Base, src1)
	derived, err := e.store.Graph(ctx, provenance.RuleGraph(key, "All"))
	require.NoError(t, err)
	assert.Equal(t, []types.Fact{fact(p1, title, types.Literal("Hamlet"))}, derived)

	membership, err := e.store.Graph(ctx, key+provenance.MembershipSuffix)
	require.NoError(t, err)
	assert.Equal(t, []types.Fact{sameAs(p1, docA), sameAs(p1, docB)}, membership)

	prov, err := e.store.Graph(ctx, key+provenance.ProvSuffix)
	require.NoError(t, err)
	assert.Contains(t, prov, fact(key, types.ProvDerived, iri(src1)))

	for _, id := range []string{docA, docB, p1} {
		got, found, err := e.store.LookupProxy(ctx, id)
		require.NoError(t, err)
		require.True(t, found, id)
		assert.Equal(t, p1, got)
	}

	entry, err := e.cache.Entry(ctx, src1)
	require.NoError(t, err)
	assert.True(t, entry.Processed)

	require.Len(t, sum.Outcomes, 1)
	assert.Equal(t, []State{Fetching, Extracting, Resolving, Persisting, Done}, sum.Outcomes[0].States)
}

func TestRun_ReprocessingIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")), sameAs(docA, docB))
	p := e.pipeline(mustRules(t, passthrough))

	_, err := p.Run(ctx, io.Discard)
	require.NoError(t, err)
	first := e.dump(t)

	require.NoError(t, e.cache.Enqueue(ctx, src1))
	sum, err := p.Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Zero(t, sum.Minted, "second run reuses P1")
	assert.Equal(t, first, e.dump(t))
}

func TestRun_AddsProxiesToCollections(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1,
		fact(docA, title, types.Literal("Ophelia")),
		fact(docA, types.RDFType, iri("http://xmlns.com/foaf/0.1/Image")))
	e.put(t, "http://other.org/dump", fact(docC, title, types.Literal("Hamlet")))

	_, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)

	proxy, _, err := e.store.LookupProxy(ctx, docA)
	require.NoError(t, err)
	key := provenance.GraphKey(e.cfg.Base, src1)
	got, err := e.store.Graph(ctx, key+collections.Suffix)
	require.NoError(t, err)
	for _, name := range []string{"everything", "src_org", "images"} {
		assert.Contains(t, got, fact(proxy, types.IsPartOf, iri(e.cfg.Base+name)))
	}
	prov, err := e.store.Graph(ctx, key+provenance.ProvSuffix)
	require.NoError(t, err)
	assert.Contains(t, prov, fact(key+collections.Suffix, types.ProvDerived, iri(src1)))

	cs, err := e.store.Collections(ctx)
	require.NoError(t, err)
	members := make(map[string]int)
	for _, c := range cs {
		members[c.IRI] = c.Members
	}
	assert.Equal(t, map[string]int{
		e.cfg.Base + "everything": 2,
		e.cfg.Base + "images":     1,
		e.cfg.Base + "other_org":  1,
		e.cfg.Base + "src_org":    1,
	}, members)
}

func TestRun_CollectionsDisabled(t *testing.T) {
	e := setup(t)
	e.cfg.Pipeline.Collections = false
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Ophelia")))

	_, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)
	got, err := e.store.Graph(ctx, provenance.GraphKey(e.cfg.Base, src1)+collections.Suffix)
	require.NoError(t, err)
	assert.Empty(t, got)
	cs, err := e.store.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestRun_ObjectRewrittenToExistingProxy(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.store.CommitDocument(ctx, graphstore.Document{
		Key:      "http://ex.org/doc/seed",
		SourceID: "http://src.org/seed",
		Graphs: []types.Graph{{Name: "http://ex.org/doc/seed#All", Facts: []types.Fact{
			fact(p9, title, types.Literal("Ophelia")),
		}}},
		Members:   []graphstore.Membership{{Member: docX, Proxy: p9}},
		StartedAt: e.clock,
		EndedAt:   e.clock,
	}))
	e.put(t, src1, fact(docC, cites, iri(docX)), fact(docC, cites, iri(docY)))

	sum, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)
	assert.Equal(t, []string{p1}, sum.Outcomes[0].Minted, "only the subject gets a proxy")

	derived, err := e.store.Graph(ctx, provenance.RuleGraph(provenance.GraphKey(e.cfg.Base, src1), "All"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Fact{fact(p1, cites, iri(p9)), fact(p1, cites, iri(docY))}, derived)

	got, _, err := e.store.LookupProxy(ctx, docX)
	require.NoError(t, err)
	assert.Equal(t, p9, got)
	_, found, err := e.store.LookupProxy(ctx, docY)
	require.NoError(t, err)
	assert.False(t, found, "objects never mint")
}

func TestRun_EquivalenceAcrossDocuments(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, "http://src.org/dump1", sameAs(docA, docB), fact(docA, title, types.Literal("Hamlet")))
	e.put(t, "http://src.org/dump2", fact(docB, title, types.Literal("Hamlet, Prince of Denmark")))
	e.put(t, "http://src.org/dump3", fact(docC, cites, iri(docB)))
	e.cfg.Pipeline.Workers = 3

	sum, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Minted, "one proxy for docA/docB, one for docC")

	proxy, err := e.store.Proxy(ctx, docB)
	require.NoError(t, err)
	assert.Equal(t, p1, proxy.ID)
	assert.ElementsMatch(t, []string{docA, docB}, proxy.Members)
	assert.Contains(t, proxy.Facts, fact(p1, title, types.Literal("Hamlet, Prince of Denmark")))
}

func TestRun_EmptyExtraction(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, cites, iri(docB)))

	var out bytes.Buffer
	sum, err := e.pipeline(mustRules(t, titlesOnly)).Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Empty)
	assert.Contains(t, out.String(), "empty:   "+src1)
	assert.Equal(t, []State{Fetching, Extracting, Resolving, Done}, sum.Outcomes[0].States)
	assert.Empty(t, e.dump(t))

	pending, err := e.cache.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type failingStore struct {
	*graphstore.Store
	commit func(ctx context.Context, d graphstore.Document) error
}

func (s failingStore) CommitDocument(ctx context.Context, d graphstore.Document) error {
	return s.commit(ctx, d)
}

func TestRun_WriteFailureLeavesNoProxy(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")), sameAs(docA, docB))

	broken := failingStore{Store: e.store, commit: func(context.Context, graphstore.Document) error {
		return errors.New("disk I/O error")
	}}
	sum, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Store = broken }).Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.True(t, errors.Is(sum.Outcomes[0].Err, errors.ErrStoreWrite))
	assert.Equal(t, Failed, sum.Outcomes[0].State())

	_, found, err := e.store.LookupProxy(ctx, docA)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, e.dump(t))

	entry, err := e.cache.Entry(ctx, src1)
	require.NoError(t, err)
	assert.False(t, entry.Processed, "entry stays queued")
	assert.Equal(t, 1, entry.Attempts)

	// The next run mints afresh and succeeds.
	sum, err = e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	got, _, err := e.store.LookupProxy(ctx, docA)
	require.NoError(t, err)
	assert.Equal(t, "http://ex.org/proxy/P2", got, "P1 was never persisted")
}

func TestRun_TransientWriteFailureIsRetried(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))

	calls := 0
	flaky := failingStore{Store: e.store, commit: func(ctx context.Context, d graphstore.Document) error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return e.store.CommitDocument(ctx, d)
	}}
	sum, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Store = flaky }).Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 2, calls)
}

func TestRun_MaxAttemptsParks(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.cfg.Pipeline.MaxAttempts = 2
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	broken := failingStore{Store: e.store, commit: func(context.Context, graphstore.Document) error {
		return errors.New("disk I/O error")
	}}
	p := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Store = broken })

	sum, err := p.Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	var out bytes.Buffer
	sum, err = p.Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Parked)
	assert.Contains(t, out.String(), "giving up after 2 attempts")

	parked, err := e.cache.Parked(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, src1, parked[0].SourceID)
}

type flakyCache struct {
	*cache.Cache
	retrieve func(ctx context.Context, id string) (types.Graph, error)
}

func (c flakyCache) Retrieve(ctx context.Context, id string) (types.Graph, error) {
	return c.retrieve(ctx, id)
}

func TestRun_FetchFailureKeepsEntryQueued(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	fc := flakyCache{Cache: e.cache, retrieve: func(context.Context, string) (types.Graph, error) {
		return types.Graph{}, errors.New("cache unavailable")
	}}

	sum, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Cache = fc }).Run(ctx, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	o := sum.Outcomes[0]
	assert.Equal(t, []State{Fetching, Failed}, o.States)
	assert.True(t, errors.Is(o.Err, errors.ErrFetch))

	pending, err := e.cache.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{src1}, pending)
}

func TestRun_InvalidInputIsParked(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	fc := flakyCache{Cache: e.cache, retrieve: func(_ context.Context, id string) (types.Graph, error) {
		return types.Graph{Name: id, Facts: []types.Fact{
			types.NewFact(types.Literal("oops"), iri(title), types.Literal("Hamlet")),
		}}, nil
	}}

	var out bytes.Buffer
	sum, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Cache = fc }).Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Parked)
	assert.True(t, sum.Outcomes[0].Parked)
	assert.Contains(t, out.String(), "parked:  "+src1)

	entry, err := e.cache.Entry(ctx, src1)
	require.NoError(t, err)
	assert.True(t, entry.Parked)
	assert.Contains(t, entry.ParkedReason, "literal subject")
}

func seedConflict(t *testing.T, e *env) {
	t.Helper()
	require.NoError(t, e.store.CommitDocument(context.Background(), graphstore.Document{
		Key:      "http://ex.org/doc/seed",
		SourceID: "http://src.org/seed",
		Graphs: []types.Graph{{Name: "http://ex.org/doc/seed#All", Facts: []types.Fact{
			fact("http://ex.org/proxy/P7", title, types.Literal("A")),
			fact("http://ex.org/proxy/P8", title, types.Literal("B")),
		}}},
		Members: []graphstore.Membership{
			{Member: docA, Proxy: "http://ex.org/proxy/P7"},
			{Member: docB, Proxy: "http://ex.org/proxy/P8"},
		},
		StartedAt: e.clock,
		EndedAt:   e.clock,
	}))
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")), sameAs(docA, docB))
}

func TestRun_ConflictPolicies(t *testing.T) {
	t.Run("first", func(t *testing.T) {
		e := setup(t)
		seedConflict(t, e)
		sum, err := e.pipeline(mustRules(t, passthrough)).Run(context.Background(), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Processed)
		assert.Equal(t, 1, sum.Conflicts)
		conflicts, err := e.store.Conflicts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("flag", func(t *testing.T) {
		e := setup(t)
		e.cfg.Pipeline.ConflictPolicy = types.ConflictFlag
		seedConflict(t, e)
		sum, err := e.pipeline(mustRules(t, passthrough)).Run(context.Background(), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Processed)
		conflicts, err := e.store.Conflicts(context.Background())
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "http://ex.org/proxy/P7", conflicts[0].Chosen)
		assert.Equal(t, []string{"http://ex.org/proxy/P8"}, conflicts[0].Others)
	})

	t.Run("reject", func(t *testing.T) {
		e := setup(t)
		e.cfg.Pipeline.ConflictPolicy = types.ConflictReject
		seedConflict(t, e)
		sum, err := e.pipeline(mustRules(t, passthrough)).Run(context.Background(), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Parked)
		assert.Equal(t, []State{Fetching, Extracting, Resolving, Failed}, sum.Outcomes[0].States)

		// docB keeps its own proxy.
		got, _, err := e.store.LookupProxy(context.Background(), docB)
		require.NoError(t, err)
		assert.Equal(t, "http://ex.org/proxy/P8", got)
	})
}

func TestRun_ConflictKeepsOneProxyPerMember(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	run := func(source string, facts ...types.Fact) Summary {
		t.Helper()
		e.put(t, source, facts...)
		sum, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
		require.NoError(t, err)
		require.Equal(t, 1, sum.Processed)
		return sum
	}
	run("http://src.org/dump1", fact(docA, title, types.Literal("Hamlet")))
	run("http://src.org/dump2", fact(docB, title, types.Literal("Hamlet, Prince of Denmark")))
	sum := run("http://src.org/dump3", sameAs(docA, docB), fact(docC, cites, iri(docB)))
	assert.Equal(t, 1, sum.Conflicts)

	owners := func(member string) []string {
		t.Helper()
		bs, err := e.store.QueryPattern(ctx, graphstore.Pattern{
			Subject:   graphstore.Var("p"),
			Predicate: graphstore.Bound(iri(types.SameAs)),
			Object:    graphstore.Bound(iri(member)),
		}, 0)
		require.NoError(t, err)
		var out []string
		for _, b := range bs {
			out = append(out, b["p"].Value)
		}
		return out
	}
	assert.Equal(t, []string{p1}, owners(docA))
	assert.Equal(t, []string{"http://ex.org/proxy/P2"}, owners(docB))

	got, _, err := e.store.LookupProxy(ctx, docB)
	require.NoError(t, err)
	assert.Equal(t, "http://ex.org/proxy/P2", got)

	derived, err := e.store.Graph(ctx, provenance.RuleGraph(provenance.GraphKey(e.cfg.Base, "http://src.org/dump3"), "All"))
	require.NoError(t, err)
	assert.Contains(t, derived, fact("http://ex.org/proxy/P3", cites, iri("http://ex.org/proxy/P2")))
}

func TestRun_CancellationLeavesStoreUntouched(t *testing.T) {
	e := setup(t)
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := failingStore{Store: e.store, commit: func(ctx context.Context, d graphstore.Document) error {
		cancel()
		return e.store.CommitDocument(ctx, d)
	}}
	sum, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Store = cancelling }).Run(ctx, io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, e.dump(t))

	entry, err := e.cache.Entry(context.Background(), src1)
	require.NoError(t, err)
	assert.False(t, entry.Processed)
	assert.Zero(t, entry.Attempts)
}

func TestRun_LockHeld(t *testing.T) {
	e := setup(t)
	fl := flock.New(e.cfg.LockPath())
	ok, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer fl.Unlock()

	_, err = e.pipeline(mustRules(t, passthrough)).Run(context.Background(), io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocked))
}

func TestClean_LockHeldLeavesStoreUntouched(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")), sameAs(docA, docB))
	_, err := e.pipeline(mustRules(t, passthrough)).Run(ctx, io.Discard)
	require.NoError(t, err)
	before := e.dump(t)
	require.NotEmpty(t, before)

	fl := flock.New(e.cfg.LockPath())
	ok, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer fl.Unlock()

	_, err = e.pipeline(mustRules(t, passthrough)).Clean(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocked))
	assert.Equal(t, before, e.dump(t))

	got, found, err := e.store.LookupProxy(ctx, docB)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, p1, got)
	pending, err := e.cache.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClean_ResetsAndRequeues(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	p := e.pipeline(mustRules(t, passthrough))
	_, err := p.Run(ctx, io.Discard)
	require.NoError(t, err)

	n, err := p.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, e.dump(t))
	pending, err := e.cache.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{src1}, pending)

	// The lock is released again.
	_, err = p.Run(ctx, io.Discard)
	require.NoError(t, err)
	assert.NotEmpty(t, e.dump(t))
}

func TestRun_EmptyRuleBaseHalts(t *testing.T) {
	e := setup(t)
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	_, err := e.pipeline(staticRules(nil)).Run(context.Background(), io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Fatal(err))
}

func TestRun_UpdatesMetrics(t *testing.T) {
	e := setup(t)
	e.cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "indexer.prom")
	e.put(t, src1, fact(docA, title, types.Literal("Hamlet")))
	m := metrics.New()

	_, err := e.pipeline(mustRules(t, passthrough), func(o *Options) { o.Metrics = m }).Run(context.Background(), io.Discard)
	require.NoError(t, err)
	assert.FileExists(t, e.cfg.Metrics.Textfile)
}

func TestValidateInput(t *testing.T) {
	ok := types.Graph{Facts: []types.Fact{fact(docA, title, types.Literal("x"))}}
	require.NoError(t, validateInput(src1, ok))
	require.NoError(t, validateInput(src1, types.Graph{}))

	tests := []struct {
		name   string
		source string
		f      types.Fact
	}{
		{"empty source", "", fact(docA, title, types.Literal("x"))},
		{"literal subject", src1, types.NewFact(types.Literal("s"), iri(title), types.Literal("x"))},
		{"empty subject", src1, types.NewFact(types.IRI(""), iri(title), types.Literal("x"))},
		{"blank predicate", src1, types.NewFact(iri(docA), types.Blank("p"), types.Literal("x"))},
		{"literal predicate", src1, types.NewFact(iri(docA), types.Literal("p"), types.Literal("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInput(tt.source, types.Graph{Facts: []types.Fact{tt.f}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(Idle, Fetching))
	assert.False(t, CanTransition(Idle, Failed))
	assert.True(t, CanTransition(Persisting, Failed))
	assert.False(t, CanTransition(Fetching, Persisting))
	assert.False(t, CanTransition(Done, Failed))
	assert.True(t, Done.Terminal())
	assert.Equal(t, "resolving", Resolving.String())

	var o Outcome
	assert.Equal(t, Idle, o.State())
	assert.Panics(t, func() { o.enter(Done) })
}
