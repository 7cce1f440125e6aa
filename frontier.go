package frontier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/frontier/internal/graph"
	ilog "github.com/nao1215/frontier/internal/log"
	"github.com/nao1215/frontier/internal/rank"
	"github.com/nao1215/frontier/internal/schedule"
	"github.com/nao1215/frontier/internal/store"
	"github.com/nao1215/frontier/page"
)

// FailureClass tells the frontier how to treat a failed crawl.
type FailureClass int

const (
	// FailureTransient marks failures worth retrying after a backoff:
	// timeouts, connection resets, 5xx responses.
	FailureTransient FailureClass = iota

	// FailurePermanent marks failures that will not heal on retry:
	// DNS no-such-host, 404/410, blocked by robots policy. The page
	// becomes terminally ERROR immediately.
	FailurePermanent
)

// String returns a human-readable representation of the failure class.
func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "TRANSIENT"
	case FailurePermanent:
		return "PERMANENT"
	default:
		return "UNKNOWN"
	}
}

// BatchItem is one dispatched page of a crawl batch.
type BatchItem struct {
	// Identity is used to report the crawl outcome back.
	Identity page.Identity

	// URL is the canonical URL the worker should fetch.
	URL string
}

// Frontier is the crawl-frontier engine's single API surface.
//
// It coordinates the durable page store, the link-graph edge log, the
// priority scheduler, and the score engine, and defines the transaction
// boundaries callers observe: every exported operation is atomic.
//
// A Frontier is safe for concurrent use by multiple crawl workers.
// Writes are serialized internally (single logical writer); reads run
// against the store's last-committed snapshot.
type Frontier struct {
	cfg   *Config
	dir   string
	log   *slog.Logger
	store *store.PageStore
	edges *graph.EdgeLog
	sched *schedule.Scheduler
	rank  *rank.Engine

	// writeMu serializes all store write transactions.
	writeMu sync.Mutex

	// rescores coalesces concurrent RequestRescore calls into one pass.
	rescores singleflight.Group

	// bg tracks background rescore passes so Close can drain them. bgMu
	// makes the closed check and the WaitGroup registration one atomic
	// step, so a launch cannot slip in after Close started waiting.
	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed atomic.Bool
}

// Open opens or creates a frontier in the given directory. An empty dir
// selects the XDG data directory (see DefaultDir). A nil cfg uses
// NewConfig() defaults.
//
// The directory holds all persisted state; Open refuses directories
// written by an incompatible format version with ErrIncompatibleStore.
// Callers own the returned Frontier's lifecycle and must Close it to
// flush and release the store.
func Open(dir string, cfg *Config) (*Frontier, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DefaultDir()
	}

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := slog.New(ilog.NewTruncateHandler(base.Handler(), 0))

	ps, err := store.Open(dir, store.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open page store: %w", err)
	}

	ctx := context.Background()
	edges, err := graph.New(ctx, ps, cfg.RescoreThreshold)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to open edge log: %w", err)
	}

	engine, err := rank.New(rank.Config{
		Damping:       cfg.Damping,
		Epsilon:       cfg.Epsilon,
		MaxIterations: cfg.MaxIterations,
	})
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	f := &Frontier{
		cfg:   cfg,
		dir:   dir,
		log:   logger,
		store: ps,
		edges: edges,
		sched: schedule.New(schedulerConfig(cfg)),
		rank:  engine,
	}
	logger.Info("frontier opened", "dir", dir, "pending_edges", edges.Pending())
	return f, nil
}

// schedulerConfig translates the public configuration into the scheduler's.
func schedulerConfig(cfg *Config) schedule.Config {
	policies := make(map[string]schedule.Policy, len(cfg.Politeness))
	for domain, p := range cfg.Politeness {
		sp := schedule.Policy{CrawlDelay: p.CrawlDelay, MaxConcurrent: p.MaxConcurrent}
		if sp.MaxConcurrent <= 0 {
			sp.MaxConcurrent = cfg.MaxConcurrent
		}
		policies[domain] = sp
	}
	return schedule.Config{
		MaxRetries:      cfg.MaxRetries,
		BackoffBase:     cfg.RetryBackoff,
		BackoffCap:      cfg.RetryBackoffCap,
		Recrawl:         cfg.Recrawl,
		RecrawlInterval: cfg.RecrawlInterval,
		MaxCrawls:       cfg.MaxCrawls,
		DefaultPolicy: schedule.Policy{
			CrawlDelay:    cfg.CrawlDelay,
			MaxConcurrent: cfg.MaxConcurrent,
		},
		Policies: policies,
	}
}

// Close drains background work and releases the store. Committed state is
// durable; an in-progress rescore pass finishes (its commit is atomic)
// before the store closes.
func (f *Frontier) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Taking bgMu after flipping closed guarantees every background launch
	// either registered with bg already or will observe closed and abort.
	f.bgMu.Lock()
	f.bg.Wait()
	f.bgMu.Unlock()
	err := f.store.Close()
	f.log.Info("frontier closed", "dir", f.dir)
	return err
}

// AddSeeds adds starting URLs to the frontier with the configured seed
// score. Unlike AddLinks, an invalid seed URL is an error: seeds are
// operator input, not scraped content, and deserve loud feedback.
func (f *Frontier) AddSeeds(ctx context.Context, rawURLs []string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	now := time.Now()
	recs := make([]*page.PageRecord, 0, len(rawURLs))
	for _, raw := range rawURLs {
		canonical, err := page.Canonicalize(raw)
		if err != nil {
			return fmt.Errorf("invalid seed URL: %w", err)
		}
		recs = append(recs, page.NewRecord(canonical, f.cfg.SeedScore, now))
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	var created []*page.PageRecord
	err := f.store.WriteTx(ctx, func(tx *store.Tx) error {
		created = created[:0]
		for _, rec := range recs {
			ok, err := tx.Ensure(rec)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, rec)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add seeds: %w", err)
	}
	for _, rec := range created {
		f.sched.Add(rec)
	}
	f.log.Info("seeds added", "total", len(recs), "created", len(created))
	return nil
}

// AddLinks records links discovered on the source page: target records are
// created where absent (status NEW, default prior score), edges are
// appended to the link graph, and link counts are updated, all as one
// atomic unit. Calling AddLinks twice with identical arguments leaves the
// store in the same state as calling it once.
//
// Individually invalid target URLs are skipped, not fatal: one broken href
// in scraped content must not lose the rest of the batch. Unknown source
// identities are accepted; sources are normally pages previously handed
// out by GetNextBatch or added as seeds.
//
// When the pending edge volume crosses the configured rescore threshold,
// AddLinks returns ErrRescoreOverdue after the links are durably recorded.
// The error is advisory: trigger RequestRescore soon.
func (f *Frontier) AddLinks(ctx context.Context, source page.Identity, targets []string) error {
	if f.closed.Load() {
		return ErrClosed
	}

	now := time.Now()
	recs := make([]*page.PageRecord, 0, len(targets))
	seen := make(map[page.Identity]bool, len(targets))
	for _, raw := range targets {
		canonical, err := page.Canonicalize(raw)
		if err != nil {
			f.log.Debug("skipping invalid link target", "url", raw, "error", err)
			continue
		}
		rec := page.NewRecord(canonical, f.cfg.Prior, now)
		if seen[rec.Identity] {
			continue
		}
		seen[rec.Identity] = true
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil
	}

	f.writeMu.Lock()
	var created []*page.PageRecord
	var newEdges int
	err := f.store.WriteTx(ctx, func(tx *store.Tx) error {
		created = created[:0]
		newEdges = 0
		for _, rec := range recs {
			ok, err := tx.Ensure(rec)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, rec)
			}
			if rec.Identity == source {
				continue // self-links carry no ranking signal
			}
			inserted, err := f.edges.Append(tx, page.Edge{Src: source, Dst: rec.Identity})
			if err != nil {
				return err
			}
			if inserted {
				newEdges++
				if err := tx.AddLinkCounts(rec.Identity, 0, 1); err != nil {
					return err
				}
			}
		}
		if newEdges > 0 {
			return tx.AddLinkCounts(source, newEdges, 0)
		}
		return nil
	})
	f.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to add links: %w", err)
	}

	f.edges.Appended(int64(newEdges))
	for _, rec := range created {
		f.sched.Add(rec)
	}
	f.log.Debug("links added",
		"source", source, "targets", len(recs), "created", len(created), "new_edges", newEdges)

	if f.edges.Overdue() {
		return ErrRescoreOverdue
	}
	return nil
}

// GetNextBatch selects up to max crawlable pages, transitions them to
// CRAWLING, and returns them. An empty batch is not an error: it means
// politeness limits block every remaining candidate right now, or the
// frontier is drained.
//
// Selection order is score-descending with FIFO tie-breaks, constrained by
// per-domain crawl delay and concurrency. The selection, the status
// transitions, and the in-flight accounting form one atomic operation.
func (f *Frontier) GetNextBatch(ctx context.Context, max int) ([]BatchItem, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if max <= 0 {
		return nil, nil
	}

	if f.sched.Stale() {
		if err := f.rebuildScheduler(ctx); err != nil {
			return nil, err
		}
	}

	sels := f.sched.Select(max)
	if len(sels) == 0 {
		return nil, nil
	}

	ids := make([]page.Identity, len(sels))
	for i, sel := range sels {
		ids[i] = sel.ID
	}

	f.writeMu.Lock()
	err := f.store.SetStatus(ctx, ids, page.StatusCrawling)
	f.writeMu.Unlock()
	if err != nil {
		f.sched.Rollback(sels)
		return nil, fmt.Errorf("failed to persist batch selection: %w", err)
	}

	batch := make([]BatchItem, len(sels))
	for i, sel := range sels {
		batch[i] = BatchItem{Identity: sel.ID, URL: sel.URL}
	}
	f.log.Debug("batch dispatched", "requested", max, "dispatched", len(batch))
	return batch, nil
}

// rebuildScheduler refreshes the priority view from the store's
// score-ordered iterator.
func (f *Frontier) rebuildScheduler(ctx context.Context) error {
	it, err := f.store.IterateByScore(ctx)
	if err != nil {
		return fmt.Errorf("failed to iterate store: %w", err)
	}
	defer it.Close() //nolint:errcheck // read-only iterator
	if err := f.sched.Rebuild(it); err != nil {
		return fmt.Errorf("failed to rebuild scheduler view: %w", err)
	}
	f.log.Debug("scheduler view rebuilt", "queued", f.sched.Queued())
	return nil
}

// MarkCrawled reports the outcome of a crawl. On success the record
// becomes CRAWLED and, when provided, the discovered links are recorded
// exactly as by AddLinks (including the advisory ErrRescoreOverdue).
// success=false is shorthand for MarkFailed with FailureTransient.
//
// Returns ErrUnknownIdentity when the identity has no record.
func (f *Frontier) MarkCrawled(ctx context.Context, id page.Identity, success bool, discovered []string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	if !success {
		return f.MarkFailed(ctx, id, FailureTransient)
	}

	f.writeMu.Lock()
	err := f.store.RecordOutcome(ctx, id, true, time.Now())
	f.writeMu.Unlock()
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record crawl outcome: %w", err)
	}
	f.sched.Complete(id)
	f.log.Debug("page crawled", "identity", id)

	if len(discovered) > 0 {
		return f.AddLinks(ctx, id, discovered)
	}
	return nil
}

// MarkFailed reports a failed crawl with a classification. Transient
// failures schedule a retry after a capped exponential backoff until the
// retry limit; permanent failures exclude the page from selection for
// good.
//
// Returns ErrUnknownIdentity when the identity has no record.
func (f *Frontier) MarkFailed(ctx context.Context, id page.Identity, class FailureClass) error {
	if f.closed.Load() {
		return ErrClosed
	}

	f.writeMu.Lock()
	err := f.store.RecordOutcome(ctx, id, false, time.Now())
	f.writeMu.Unlock()
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record crawl failure: %w", err)
	}
	f.sched.Fail(id, class == FailureTransient)
	f.log.Debug("page failed", "identity", id, "class", class.String())
	return nil
}

// GetRecord retrieves the persisted record for an identity.
// Returns ErrNotFound when no record exists.
func (f *Frontier) GetRecord(ctx context.Context, id page.Identity) (*page.PageRecord, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	return f.store.Get(ctx, id)
}

// RequestRescore runs a score-engine pass over the link graph and commits
// the new scores. Concurrent requests coalesce into a single pass. With
// Config.AsyncRescore the call returns immediately and the pass runs in
// the background; otherwise it blocks until the pass commits and returns
// its error.
//
// An interrupted pass never leaves partial state: scores and the edge
// checkpoint move together in one transaction, and a pass that dies before
// that commit simply never happened.
func (f *Frontier) RequestRescore(ctx context.Context) error {
	if f.closed.Load() {
		return ErrClosed
	}

	if f.cfg.AsyncRescore {
		f.bgMu.Lock()
		if f.closed.Load() {
			f.bgMu.Unlock()
			return ErrClosed
		}
		f.bg.Add(1)
		f.bgMu.Unlock()
		go func() {
			defer f.bg.Done()
			_, err, _ := f.rescores.Do("rescore", func() (any, error) {
				return nil, f.rescorePass(context.Background())
			})
			if err != nil {
				f.log.Error("background rescore failed", "error", err)
			}
		}()
		return nil
	}

	_, err, _ := f.rescores.Do("rescore", func() (any, error) {
		return nil, f.rescorePass(ctx)
	})
	return err
}

// rescorePass snapshots the store and the link graph, runs the fixed-point
// computation, and commits the result atomically.
func (f *Frontier) rescorePass(ctx context.Context) error {
	start := time.Now()

	marker, err := f.edges.Marker(ctx)
	if err != nil {
		return err
	}

	// Snapshot reads run outside the write lock; WAL keeps them
	// consistent while live updates continue.
	nodes, err := f.snapshotNodes(ctx)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		f.log.Debug("rescore skipped: empty frontier")
		return nil
	}
	edges, err := f.snapshotEdges(ctx, marker)
	if err != nil {
		return err
	}

	res, err := f.rank.Compute(ctx, nodes, edges)
	if err != nil {
		return fmt.Errorf("score pass failed: %w", err)
	}

	updates := make([]store.ScoreUpdate, len(res.Scores))
	for i, n := range res.Scores {
		updates[i] = store.ScoreUpdate{ID: n.ID, Score: n.Score}
	}

	f.writeMu.Lock()
	err = f.store.CommitScores(ctx, updates, marker)
	f.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	if err := f.edges.Checkpointed(ctx, marker); err != nil {
		return err
	}
	f.sched.MarkStale()

	f.log.Info("rescore pass committed",
		"pages", len(nodes),
		"edges", len(edges),
		"iterations", res.Iterations,
		"delta", res.Delta,
		"converged", res.Converged,
		"elapsed", time.Since(start))
	return nil
}

// snapshotNodes reads every record's identity and score.
func (f *Frontier) snapshotNodes(ctx context.Context) ([]rank.Node, error) {
	it, err := f.store.IterateByScore(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck // read-only iterator

	var nodes []rank.Node
	for it.Next() {
		rec := it.Record()
		nodes = append(nodes, rank.Node{ID: rec.Identity, Score: rec.Score})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// snapshotEdges reads the adjacency up to the marker.
func (f *Frontier) snapshotEdges(ctx context.Context, marker int64) ([]page.Edge, error) {
	it, err := f.edges.All(ctx, marker)
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck // read-only iterator

	var out []page.Edge
	for it.Next() {
		out = append(out, it.Edge())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
