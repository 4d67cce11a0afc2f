// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drains the document queue: each entry is fetched from
// the cache, run through the rule engine, resolved to canonical proxies
// and persisted with its provenance before it is acknowledged.
//
// Fetching and extraction run on a pool of workers. Resolution and
// persistence run on a single writer in queue order, and a file lock keeps
// a second process from writing at the same time.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pdiddy/indexer/internal/collections"
	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/extract"
	"github.com/pdiddy/indexer/internal/graphstore"
	"github.com/pdiddy/indexer/internal/logging"
	"github.com/pdiddy/indexer/internal/metrics"
	"github.com/pdiddy/indexer/internal/provenance"
	"github.com/pdiddy/indexer/internal/resolve"
	"github.com/pdiddy/indexer/internal/retry"
	"github.com/pdiddy/indexer/internal/rules"
	"github.com/pdiddy/indexer/pkg/types"
)

// DocumentCache is the queue and document source the pipeline drains.
type DocumentCache interface {
	Queue(ctx context.Context, limit int) ([]string, error)
	Retrieve(ctx context.Context, sourceID string) (types.Graph, error)
	MarkProcessed(ctx context.Context, sourceID string) error
	RecordFailure(ctx context.Context, sourceID string, cause error) (int, error)
	Park(ctx context.Context, sourceID, reason string) error
	EnqueueAll(ctx context.Context) (int64, error)
}

// GraphStore receives resolved documents.
type GraphStore interface {
	resolve.ProxyLookup
	CommitDocument(ctx context.Context, d graphstore.Document) error
	Reset(ctx context.Context) error
}

// RuleSource supplies the current rule set.
type RuleSource interface {
	Rules() []rules.Rule
}

// Options wires a Pipeline.
type Options struct {
	Config  types.Config
	Cache   DocumentCache
	Store   GraphStore
	Rules   RuleSource
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics

	// Now and Mint replace the clock and proxy minting (tests).
	Now  func() time.Time
	Mint func() string
}

// Pipeline processes queue entries.
type Pipeline struct {
	cfg      types.Config
	cache    DocumentCache
	store    GraphStore
	rules    RuleSource
	engine   extract.Engine
	resolver *resolve.Resolver
	policy   retry.Policy
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New returns a Pipeline. Store lookups made by the resolver go through
// the same timeout and retry policy as every other store call.
func New(opts Options) *Pipeline {
	log := logging.OrNop(opts.Log)
	p := &Pipeline{
		cfg:     opts.Config,
		cache:   opts.Cache,
		store:   opts.Store,
		rules:   opts.Rules,
		policy:  retry.FromConfig(opts.Config.Store, log),
		log:     log,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.resolver = resolve.New(retryingLookup{store: opts.Store, policy: p.policy}, resolve.Options{
		Base:   opts.Config.Base,
		Policy: opts.Config.Pipeline.ConflictPolicy,
		Mint:   opts.Mint,
		Log:    log,
	})
	return p
}

// Summary holds the outcome of one Run.
type Summary struct {
	Processed int
	Empty     int
	Failed    int
	Parked    int

	Minted    int
	Conflicts int

	Outcomes []*Outcome
}

// Total returns the number of entries handled.
func (s Summary) Total() int {
	return s.Processed + s.Empty + s.Failed + s.Parked
}

// HasFailures reports whether any entry failed or was parked.
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.Parked > 0
}

// job carries one entry from a worker to the writer.
type job struct {
	out         *Outcome
	start       time.Time
	derivations []extract.Derivation
	result      resolve.Result
	err         error
	ready       chan struct{}
}

// Run takes a snapshot of the queue and processes it, printing one line
// per entry to w. It returns early with an error when the rule base is
// unusable or ctx is cancelled; entries not reached stay queued.
func (p *Pipeline) Run(ctx context.Context, w io.Writer) (Summary, error) {
	unlock, err := p.lock()
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	ids, err := retry.Value(ctx, p.policy, "reading queue", func(ctx context.Context) ([]string, error) {
		return p.cache.Queue(ctx, p.cfg.Pipeline.BatchSize)
	})
	if err != nil {
		return Summary{}, errors.Mark(errors.Wrap(err, "reading queue"), errors.ErrFetch)
	}
	rs := p.rules.Rules()
	if len(rs) == 0 {
		return Summary{}, errors.Mark(errors.New("rule base is empty"), errors.ErrRuleLoad)
	}
	fmt.Fprintf(w, "processing %d queued entries with %d rules\n", len(ids), len(rs))
	p.log.Infow("run started", "entries", len(ids), "rules", len(rs), "workers", p.workers())

	jobs := make([]*job, len(ids))
	for i, id := range ids {
		jobs[i] = &job{out: &Outcome{SourceID: id}, ready: make(chan struct{})}
	}

	wctx, cancel := context.WithCancel(ctx)
	fed := p.feed(wctx, jobs, rs)
	defer func() {
		cancel()
		<-fed
	}()

	var sum Summary
	var runErr error
	for _, j := range jobs {
		<-j.ready
		if runErr = p.finish(ctx, j, w, &sum); runErr != nil {
			break
		}
	}

	if err := p.metrics.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		p.log.Warnw("metrics export failed", "error", err)
	}
	fmt.Fprintf(w, "\nRun summary: %d indexed, %d empty, %d failed, %d parked (total: %d)\n",
		sum.Processed, sum.Empty, sum.Failed, sum.Parked, sum.Total())
	p.log.Infow("run finished",
		"indexed", sum.Processed, "empty", sum.Empty, "failed", sum.Failed, "parked", sum.Parked,
		"minted", sum.Minted, "conflicts", sum.Conflicts)
	return sum, runErr
}

// Clean empties the graph store and queues every cached document again.
// It holds the writer lock while doing so and fails with ErrLocked, leaving
// the store as it is, when another process is writing.
func (p *Pipeline) Clean(ctx context.Context) (int64, error) {
	unlock, err := p.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := retry.Do(ctx, p.policy, "resetting graph store", p.store.Reset); err != nil {
		return 0, errors.Mark(errors.Wrap(err, "resetting graph store"), errors.ErrStoreWrite)
	}
	n, err := retry.Value(ctx, p.policy, "re-queueing documents", p.cache.EnqueueAll)
	if err != nil {
		return 0, errors.Wrap(err, "re-queueing documents")
	}
	p.log.Infow("graph store cleared", "queued", n)
	return n, nil
}

// lock takes the cross-process writer lock without waiting.
func (p *Pipeline) lock() (func(), error) {
	path := p.cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating lock directory for %s", path)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", path)
	}
	if !ok {
		return nil, errors.WithHint(
			errors.Mark(errors.Newf("lock %s is held", path), errors.ErrLocked),
			"another indexer process is writing to the store")
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			p.log.Warnw("releasing lock failed", "path", path, "error", err)
		}
	}, nil
}

func (p *Pipeline) workers() int {
	if p.cfg.Pipeline.Workers > 0 {
		return p.cfg.Pipeline.Workers
	}
	return 1
}

// feed runs prepare for every job on the worker pool. The returned channel
// is closed once all workers have returned.
func (p *Pipeline) feed(ctx context.Context, jobs []*job, rs []rules.Rule) <-chan struct{} {
	var limiter *rate.Limiter
	if r := p.cfg.Pipeline.RatePerSecond; r > 0 {
		limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		var g errgroup.Group
		g.SetLimit(p.workers())
		for _, j := range jobs {
			g.Go(func() error {
				defer close(j.ready)
				p.prepare(ctx, j, rs, limiter)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return fed
}

// prepare fetches and extracts one entry. It touches only j.
func (p *Pipeline) prepare(ctx context.Context, j *job, rs []rules.Rule, limiter *rate.Limiter) {
	id := j.out.SourceID
	j.start = p.now()
	j.out.enter(Fetching)
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			j.err = err
			return
		}
	}

	g, err := retry.Value(ctx, p.policy, "retrieving "+id, func(ctx context.Context) (types.Graph, error) {
		return p.cache.Retrieve(ctx, id)
	})
	if err != nil {
		if !errors.Is(err, errors.ErrValidation) {
			err = errors.Mark(err, errors.ErrFetch)
		}
		j.err = errors.Wrapf(err, "fetching %s", id)
		return
	}
	if err := validateInput(id, g); err != nil {
		j.err = err
		return
	}

	j.out.enter(Extracting)
	ds, err := p.engine.Apply(ctx, rs, g)
	if err != nil {
		j.err = errors.Wrapf(err, "extracting %s", id)
		return
	}
	j.derivations = ds
	p.log.Debugw("extracted", "source", id, "rules", len(ds), "facts", extract.Count(ds))
}

// finish resolves and persists a prepared entry and records its outcome.
// It returns an error only when the run must stop.
func (p *Pipeline) finish(ctx context.Context, j *job, w io.Writer, sum *Summary) error {
	out := j.out
	sum.Outcomes = append(sum.Outcomes, out)
	if j.err == nil {
		j.err = p.commit(ctx, j)
	}
	out.Duration = p.now().Sub(j.start)
	if j.err != nil {
		return p.fail(ctx, j, w, sum)
	}

	if out.Empty {
		sum.Empty++
		p.metrics.Entry(metrics.OutcomeEmpty, out.Duration)
		fmt.Fprintf(w, "empty:   %s (no rule matched)\n", out.SourceID)
		return nil
	}
	sum.Processed++
	sum.Minted += len(out.Minted)
	sum.Conflicts += len(j.result.Conflicts)
	p.metrics.Entry(metrics.OutcomeDone, out.Duration)
	p.metrics.Minted(len(out.Minted))
	p.metrics.Conflicts(len(j.result.Conflicts))
	fmt.Fprintf(w, "indexed: %s (%d facts, %d proxies minted)\n", out.SourceID, out.Facts, len(out.Minted))
	return nil
}

// commit runs the resolving and persisting steps and acknowledges the
// entry once the store has committed.
func (p *Pipeline) commit(ctx context.Context, j *job) error {
	out := j.out
	id := out.SourceID
	out.enter(Resolving)
	if len(j.derivations) == 0 {
		if err := p.acknowledge(ctx, id); err != nil {
			return err
		}
		out.Empty = true
		out.enter(Done)
		return nil
	}

	res, err := p.resolver.Resolve(ctx, j.derivations, id)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", id)
	}
	j.result = res

	out.enter(Persisting)
	doc, err := p.document(id, j.start, res)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, p.policy, "persisting "+id, func(ctx context.Context) error {
		return p.store.CommitDocument(ctx, doc)
	})
	if err != nil {
		if !errors.Is(err, errors.ErrValidation) {
			err = errors.Mark(err, errors.ErrStoreWrite)
		}
		return errors.Wrapf(err, "persisting %s", id)
	}
	if err := p.acknowledge(ctx, id); err != nil {
		return err
	}

	out.Facts = doc.Facts()
	out.Minted = res.Minted
	out.enter(Done)
	p.log.Infow("entry indexed",
		"source", id, "graph", doc.Key, "facts", out.Facts, "minted", len(res.Minted), "conflicts", len(res.Conflicts))
	return nil
}

func (p *Pipeline) acknowledge(ctx context.Context, id string) error {
	err := retry.Do(ctx, p.policy, "acknowledging "+id, func(ctx context.Context) error {
		return p.cache.MarkProcessed(ctx, id)
	})
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "acknowledging %s", id), errors.ErrStoreWrite)
	}
	return nil
}

// fail moves an entry to Failed and decides whether it is retried later,
// parked, or stops the run.
func (p *Pipeline) fail(ctx context.Context, j *job, w io.Writer, sum *Summary) error {
	out := j.out
	err := j.err
	out.Err = err
	out.enter(Failed)

	if ctx.Err() != nil {
		sum.Failed++
		p.metrics.Entry(metrics.OutcomeFailed, out.Duration)
		fmt.Fprintf(w, "failed:  %s (cancelled)\n", out.SourceID)
		return errors.Wrap(ctx.Err(), "run cancelled")
	}
	if errors.Fatal(err) {
		sum.Failed++
		p.metrics.Entry(metrics.OutcomeFailed, out.Duration)
		fmt.Fprintf(w, "failed:  %s (%v)\n", out.SourceID, err)
		return err
	}

	reason := ""
	if errors.Parkable(err) {
		reason = err.Error()
	} else {
		attempts, rerr := p.cache.RecordFailure(ctx, out.SourceID, err)
		if rerr != nil {
			p.log.Warnw("recording failure failed", "source", out.SourceID, "error", rerr)
		}
		if limit := p.cfg.Pipeline.MaxAttempts; limit > 0 && attempts >= limit {
			reason = fmt.Sprintf("giving up after %d attempts: %v", attempts, err)
		}
	}

	if reason != "" {
		if perr := p.cache.Park(ctx, out.SourceID, reason); perr != nil {
			p.log.Warnw("parking failed", "source", out.SourceID, "error", perr)
		} else {
			out.Parked = true
			sum.Parked++
			p.metrics.Entry(metrics.OutcomeParked, out.Duration)
			p.log.Warnw("entry parked", "source", out.SourceID, "kind", errors.Kind(err), "error", err)
			fmt.Fprintf(w, "parked:  %s (%s)\n", out.SourceID, reason)
			return nil
		}
	}

	sum.Failed++
	p.metrics.Entry(metrics.OutcomeFailed, out.Duration)
	p.log.Errorw("entry failed", "source", out.SourceID, "kind", errors.Kind(err), "error", err)
	fmt.Fprintf(w, "failed:  %s (%v)\n", out.SourceID, err)
	return nil
}

// document assembles everything one run writes for a source: one graph
// per rule, the membership and collections graphs and the provenance
// graph, all under the deterministic document key.
func (p *Pipeline) document(sourceID string, start time.Time, res resolve.Result) (graphstore.Document, error) {
	key := provenance.GraphKey(p.cfg.Base, sourceID)

	byName := make(map[string][]types.Fact)
	for _, d := range res.Derivations {
		name := provenance.RuleGraph(key, d.Fragment)
		byName[name] = append(byName[name], d.Facts...)
	}
	if len(res.Membership) > 0 {
		byName[key+provenance.MembershipSuffix] = res.Membership
	}
	if p.cfg.Pipeline.Collections {
		if fs := collections.Facts(p.cfg.Base, sourceID, res.Derivations); len(fs) > 0 {
			byName[key+collections.Suffix] = fs
		}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	graphs := make([]types.Graph, 0, len(names)+1)
	for _, name := range names {
		graphs = append(graphs, types.Graph{Name: name, Facts: types.SortFacts(byName[name])})
	}

	end := p.now()
	rec, err := provenance.Record(sourceID, key, start, end)
	if err != nil {
		return graphstore.Document{}, err
	}
	graphs = append(graphs, types.Graph{Name: key + provenance.ProvSuffix, Facts: provenance.Facts(rec, names)})

	doc := graphstore.Document{
		Key:       key,
		SourceID:  sourceID,
		Graphs:    graphs,
		Relink:    make(map[string]string),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
	for _, a := range res.Assignments {
		if a.Member == a.Proxy {
			continue
		}
		doc.Members = append(doc.Members, graphstore.Membership{Member: a.Member, Proxy: a.Proxy})
		doc.Relink[a.Member] = a.Proxy
	}
	for from, to := range res.Objects {
		doc.Relink[from] = to
	}
	if p.cfg.Pipeline.ConflictPolicy == types.ConflictFlag {
		doc.Conflicts = res.Conflicts
	}
	return doc, nil
}

// validateInput rejects documents the engine cannot index.
func validateInput(sourceID string, g types.Graph) error {
	invalid := func(format string, args ...any) error {
		return errors.Mark(errors.Newf(format, args...), errors.ErrValidation)
	}
	if sourceID == "" {
		return invalid("empty source identifier")
	}
	for i, f := range g.Facts {
		switch {
		case f.Subject.Value == "" && f.Subject.Kind != types.KindBlank:
			return invalid("%s: fact %d has an empty subject", sourceID, i)
		case f.Subject.Kind == types.KindLiteral:
			return invalid("%s: fact %d has literal subject %s", sourceID, i, f.Subject)
		case f.Predicate.Kind != types.KindIRI || f.Predicate.Value == "":
			return invalid("%s: fact %d has non-IRI predicate %s", sourceID, i, f.Predicate)
		}
	}
	return nil
}
