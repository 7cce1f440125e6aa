package store

import (
	"context"
	"database/sql"

	"github.com/nao1215/frontier/page"
)

// Tx is a write transaction over the store.
//
// The facade uses it to make composite operations atomic: link discovery
// creates target records, bumps link counts, and appends edges as one
// all-or-nothing unit. The edge log shares the same database file, so the
// transaction covers it too.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// WriteTx runs fn inside a single write transaction with the store's usual
// transient-failure retry. fn must be idempotent: it may run again after a
// retried busy error, always against a fresh transaction.
func (ps *PageStore) WriteTx(ctx context.Context, fn func(*Tx) error) error {
	return ps.withRetry(ctx, func() error {
		return ps.inTx(ctx, func(tx *sql.Tx) error {
			return fn(&Tx{ctx: ctx, tx: tx})
		})
	})
}

// SQL exposes the underlying transaction to sibling internal packages
// (the edge log appends its rows through it).
func (t *Tx) SQL() *sql.Tx {
	return t.tx
}

// Context returns the context the transaction was started with, so
// statements issued through SQL stay cancellable.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// Ensure creates the record if no record exists for its identity.
// Existing records are left untouched: re-discovering a known page must not
// reset its score, status, or timestamps. Reports whether a row was created.
func (t *Tx) Ensure(rec *page.PageRecord) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `
	INSERT INTO pages (identity, url, score, status, first_seen, last_crawled,
	                   error_count, crawl_count, out_links, in_links)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(identity) DO NOTHING`, upsertArgs(rec)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddLinkCounts adjusts a record's out-link and in-link counters.
// Counters are only bumped for edges that were actually inserted, which
// keeps repeated AddLinks calls idempotent. A missing record is a no-op:
// edges from unknown sources are legal (seeds, external referrers).
func (t *Tx) AddLinkCounts(id page.Identity, outDelta, inDelta int) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE pages SET out_links = out_links + ?, in_links = in_links + ? WHERE identity = ?`,
		outDelta, inDelta, int64(id))
	return err
}
