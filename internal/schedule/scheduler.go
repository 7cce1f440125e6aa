package schedule

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/frontier/page"
)

// Policy holds the politeness constraints for one registered domain.
type Policy struct {
	// CrawlDelay is the minimum time between dispatches to the domain.
	CrawlDelay time.Duration

	// MaxConcurrent caps the number of pages of this domain that may be
	// in the CRAWLING state at once.
	MaxConcurrent int
}

// Config holds the scheduler's policy knobs.
type Config struct {
	// MaxRetries is the number of failed attempts after which a page is
	// terminally ERROR and excluded from selection.
	MaxRetries int

	// BackoffBase is the backoff after the first failure; each further
	// failure doubles it up to BackoffCap.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential backoff.
	BackoffCap time.Duration

	// Recrawl re-schedules successfully crawled pages after
	// RecrawlInterval, bounded by MaxCrawls per page (0 = unbounded).
	Recrawl         bool
	RecrawlInterval time.Duration
	MaxCrawls       int

	// DefaultPolicy applies to domains without an explicit policy.
	DefaultPolicy Policy

	// Policies maps registered domains to their politeness overrides.
	Policies map[string]Policy
}

// Selection is one dispatched page: the identity for reporting the outcome
// and the URL for the crawl worker to fetch.
type Selection struct {
	ID  page.Identity
	URL string
}

// domainState tracks the soft politeness state of one registered domain.
// It is rebuilt from scratch on restart; losing it on a crash is acceptable.
type domainState struct {
	policy   Policy
	limiter  *rate.Limiter
	inFlight int
}

// Scheduler maintains the priority view and politeness bookkeeping.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	entries map[page.Identity]*entry
	queue   entryQueue
	domains map[string]*domainState
	stale   bool

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Scheduler. The view starts stale: the first selection after
// construction must be preceded by a Rebuild from the page store.
func New(cfg Config) *Scheduler {
	if cfg.DefaultPolicy.MaxConcurrent <= 0 {
		cfg.DefaultPolicy.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:     cfg,
		entries: make(map[page.Identity]*entry),
		domains: make(map[string]*domainState),
		stale:   true,
		now:     time.Now,
	}
}

// Stale reports whether the view must be rebuilt before the next selection.
func (s *Scheduler) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// MarkStale invalidates the view. Called after a rescore pass commits new
// scores: rather than resift the whole heap in place, the next selection
// rebuilds from the store's score-ordered iterator.
func (s *Scheduler) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// RecordSource is the iterator the scheduler rebuilds from. The page
// store's score-ordered iterator satisfies it.
type RecordSource interface {
	Next() bool
	Record() *page.PageRecord
	Err() error
	Close() error
}

// Rebuild replaces the view with the records produced by src.
//
// Politeness in-flight counters survive a rebuild so a mid-crawl rescore
// cannot overshoot a domain's concurrency limit. Records persisted as
// CRAWLING that the scheduler has no in-flight bookkeeping for are requeued
// as eligible: their dispatch was lost with a previous process, and no
// worker will ever report an outcome for it.
func (s *Scheduler) Rebuild(src RecordSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inFlight := make(map[page.Identity]bool, len(s.entries))
	for id, e := range s.entries {
		if e.status == page.StatusCrawling && e.index == -1 {
			inFlight[id] = true
		}
	}

	s.entries = make(map[page.Identity]*entry)
	s.queue = s.queue[:0]

	for src.Next() {
		rec := src.Record()
		e := &entry{
			id:        rec.Identity,
			url:       rec.URL,
			domain:    page.RegisteredDomain(rec.URL),
			score:     rec.Score,
			firstSeen: rec.FirstSeen,
			status:    rec.Status,
			errCount:  rec.ErrorCount,
			crawls:    rec.CrawlCount,
			index:     -1,
		}
		s.entries[rec.Identity] = e

		switch rec.Status {
		case page.StatusNew:
			s.push(e)
		case page.StatusCrawling:
			if inFlight[rec.Identity] {
				break // still genuinely outstanding
			}
			// Lost dispatch from a dead process: make it selectable again.
			e.status = page.StatusNew
			s.push(e)
		case page.StatusError:
			if e.errCount >= s.cfg.MaxRetries {
				break // terminal
			}
			e.notBefore = rec.LastCrawled.Add(s.backoff(e.errCount))
			s.push(e)
		case page.StatusCrawled:
			if !s.recrawlable(e) {
				break
			}
			e.notBefore = rec.LastCrawled.Add(s.cfg.RecrawlInterval)
			s.push(e)
		}
	}
	if err := src.Err(); err != nil {
		return err
	}
	s.stale = false
	return nil
}

// Add inserts a freshly discovered page into the view. Known identities are
// ignored; rediscovery never reshuffles existing state.
func (s *Scheduler) Add(rec *page.PageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		return // the pending rebuild will pick it up from the store
	}
	if _, ok := s.entries[rec.Identity]; ok {
		return
	}
	e := &entry{
		id:        rec.Identity,
		url:       rec.URL,
		domain:    page.RegisteredDomain(rec.URL),
		score:     rec.Score,
		firstSeen: rec.FirstSeen,
		status:    rec.Status,
		index:     -1,
	}
	s.entries[rec.Identity] = e
	if e.status == page.StatusNew {
		s.push(e)
	}
}

// Select picks up to max eligible pages and transitions them to CRAWLING in
// the view, incrementing their domains' in-flight counters. Fewer than max
// selections (including none) is a normal outcome when politeness blocks
// the remaining candidates.
//
// The caller must persist the CRAWLING transitions and call Rollback if
// that persist fails.
func (s *Scheduler) Select(max int) []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var selected []Selection
	var deferred []*entry

	for len(selected) < max && s.queue.Len() > 0 {
		e := heap.Pop(&s.queue).(*entry)

		if terminal := s.dropIfTerminal(e); terminal {
			continue
		}
		if !e.notBefore.IsZero() && now.Before(e.notBefore) {
			deferred = append(deferred, e)
			continue
		}
		ds := s.domain(e.domain)
		if ds.inFlight >= ds.policy.MaxConcurrent {
			deferred = append(deferred, e)
			continue
		}
		if !ds.limiter.Allow() {
			deferred = append(deferred, e)
			continue
		}

		e.prevStatus = e.status
		e.status = page.StatusCrawling
		ds.inFlight++
		selected = append(selected, Selection{ID: e.id, URL: e.url})
	}

	for _, e := range deferred {
		s.push(e)
	}
	return selected
}

// Rollback undoes a selection whose CRAWLING persist failed: statuses are
// restored, in-flight counters decremented, entries requeued.
func (s *Scheduler) Rollback(sels []Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sel := range sels {
		e, ok := s.entries[sel.ID]
		if !ok || e.status != page.StatusCrawling {
			continue
		}
		e.status = e.prevStatus
		s.domain(e.domain).inFlight--
		s.push(e)
	}
}

// Complete reports a successful crawl: the domain slot is released and the
// page becomes CRAWLED. Under a recrawl policy the page is requeued after
// the recrawl interval until its crawl budget is spent.
func (s *Scheduler) Complete(id page.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.release(e)
	e.status = page.StatusCrawled
	e.crawls++
	e.errCount = 0
	if s.recrawlable(e) {
		e.notBefore = s.now().Add(s.cfg.RecrawlInterval)
		s.push(e)
	}
}

// Fail reports a failed crawl. Transient failures requeue the page after an
// exponential backoff until the retry limit; permanent failures (and
// exhausted retries) make it terminally ERROR.
func (s *Scheduler) Fail(id page.Identity, transient bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.release(e)
	e.status = page.StatusError
	e.errCount++
	if !transient || e.errCount >= s.cfg.MaxRetries {
		return // terminal, never selected again
	}
	e.notBefore = s.now().Add(s.backoff(e.errCount))
	s.push(e)
}

// InFlight returns the number of outstanding crawls for a registered
// domain. Exposed for the facade's stats reporting.
func (s *Scheduler) InFlight(domain string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds, ok := s.domains[domain]; ok {
		return ds.inFlight
	}
	return 0
}

// Queued returns the number of entries currently selectable or waiting out
// a politeness window.
func (s *Scheduler) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// release frees the domain slot held by an in-flight entry.
func (s *Scheduler) release(e *entry) {
	if e.status != page.StatusCrawling {
		return
	}
	ds := s.domain(e.domain)
	if ds.inFlight > 0 {
		ds.inFlight--
	}
}

// dropIfTerminal filters entries that must never be selected again.
func (s *Scheduler) dropIfTerminal(e *entry) bool {
	switch e.status {
	case page.StatusError:
		return e.errCount >= s.cfg.MaxRetries
	case page.StatusCrawled:
		return !s.recrawlable(e)
	case page.StatusCrawling:
		return true // should not be queued; drop defensively
	default:
		return false
	}
}

// recrawlable reports whether a crawled page may be scheduled again.
func (s *Scheduler) recrawlable(e *entry) bool {
	if !s.cfg.Recrawl {
		return false
	}
	return s.cfg.MaxCrawls == 0 || e.crawls < s.cfg.MaxCrawls
}

// domain returns the politeness state for a registered domain, creating it
// with the configured policy on first sight.
func (s *Scheduler) domain(name string) *domainState {
	ds, ok := s.domains[name]
	if !ok {
		policy, found := s.cfg.Policies[name]
		if !found {
			policy = s.cfg.DefaultPolicy
		}
		if policy.MaxConcurrent <= 0 {
			policy.MaxConcurrent = s.cfg.DefaultPolicy.MaxConcurrent
		}
		limit := rate.Inf
		if policy.CrawlDelay > 0 {
			limit = rate.Every(policy.CrawlDelay)
		}
		ds = &domainState{
			policy:  policy,
			limiter: rate.NewLimiter(limit, 1),
		}
		s.domains[name] = ds
	}
	return ds
}

// backoff returns the capped exponential backoff for the nth failure.
func (s *Scheduler) backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := s.cfg.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if s.cfg.BackoffCap > 0 && d > s.cfg.BackoffCap {
		d = s.cfg.BackoffCap
	}
	return d
}

// push queues an entry if it is not already queued.
func (s *Scheduler) push(e *entry) {
	if e.index != -1 {
		return
	}
	heap.Push(&s.queue, e)
}
