// Package schedule implements the frontier's crawl scheduler.
//
// The scheduler keeps an in-memory priority view over the page store:
// a max-heap ordered by score (ties broken by first-seen time, then
// identity, so equal-score pages are served FIFO and old URLs cannot
// starve). Selection respects per-domain politeness: a configurable
// crawl delay between dispatches to one registered domain and a cap on
// its concurrently outstanding crawls.
//
// The view is derived, never authoritative. It can be discarded and
// rebuilt lazily from the store's score-ordered iterator at any time,
// which is exactly what happens after a restart or a rescore pass.
//
// All methods take a single short critical section around the in-memory
// bookkeeping; no I/O happens under the lock.
package schedule
