package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/nao1215/frontier/internal/store"
	"github.com/nao1215/frontier/page"
)

// EdgeLog is the incremental adjacency representation of the link graph.
//
// Appends are idempotent: the (src, dst) pair is unique, so re-reporting a
// known link is a no-op that does not grow the log. The pending counter
// tracks how many edges have accumulated since the last committed score
// pass; when it crosses the configured threshold the facade is told to
// force an early rescore rather than let the backlog grow without bound.
type EdgeLog struct {
	db *sql.DB

	// threshold is the pending-edge volume above which a rescore is overdue.
	// Zero disables backpressure.
	threshold int64

	// pending counts edges appended after the last checkpoint. Kept in
	// memory and rebuilt from the log at open; writes happen under the
	// facade's write lock, reads are lock-free.
	pending atomic.Int64
}

// New creates an EdgeLog over the page store's database and primes the
// pending counter from the persisted checkpoint.
func New(ctx context.Context, ps *store.PageStore, threshold int64) (*EdgeLog, error) {
	el := &EdgeLog{db: ps.DB(), threshold: threshold}

	marker, err := ps.EdgeCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read edge checkpoint: %w", err)
	}
	var pending int64
	err = el.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE id > ?`, marker).Scan(&pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending edges: %w", err)
	}
	el.pending.Store(pending)
	return el, nil
}

// Append records an edge inside the given store transaction.
// Reports whether the edge was actually inserted; a duplicate of an edge
// already in the log inserts nothing. The pending counter is not touched
// here because the transaction may still roll back; the facade calls
// Appended once the transaction commits.
func (el *EdgeLog) Append(tx *store.Tx, e page.Edge) (bool, error) {
	res, err := tx.SQL().ExecContext(tx.Context(),
		`INSERT INTO edges (src, dst) VALUES (?, ?) ON CONFLICT(src, dst) DO NOTHING`,
		int64(e.Src), int64(e.Dst))
	if err != nil {
		return false, fmt.Errorf("failed to append edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Appended advances the pending counter after a commit that inserted n edges.
func (el *EdgeLog) Appended(n int64) {
	el.pending.Add(n)
}

// Pending returns the number of edges accumulated since the last checkpoint.
func (el *EdgeLog) Pending() int64 {
	return el.pending.Load()
}

// Overdue reports whether the pending volume has crossed the backpressure
// threshold and a rescore should be forced.
func (el *EdgeLog) Overdue() bool {
	return el.threshold > 0 && el.pending.Load() >= el.threshold
}

// Marker returns the current high-water mark of the log. A score pass
// snapshots it before reading the adjacency and commits it as the new
// checkpoint, so edges appended during the pass stay pending.
func (el *EdgeLog) Marker(ctx context.Context) (int64, error) {
	var marker sql.NullInt64
	err := el.db.QueryRowContext(ctx, `SELECT MAX(id) FROM edges`).Scan(&marker)
	if err != nil {
		return 0, fmt.Errorf("failed to read edge marker: %w", err)
	}
	return marker.Int64, nil
}

// Checkpointed resets the pending counter after a score pass committed the
// given marker as its checkpoint.
func (el *EdgeLog) Checkpointed(ctx context.Context, marker int64) error {
	var pending int64
	err := el.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE id > ?`, marker).Scan(&pending)
	if err != nil {
		return fmt.Errorf("failed to recount pending edges: %w", err)
	}
	el.pending.Store(pending)
	return nil
}

// EdgeIterator lazily walks edges in append order.
type EdgeIterator struct {
	rows *sql.Rows
	edge page.Edge
	err  error
}

// All returns an iterator over the full adjacency, up to and including the
// given marker. The score engine reads the whole graph each pass; limiting
// the read to the marker keeps the pass consistent with its snapshot.
func (el *EdgeLog) All(ctx context.Context, marker int64) (*EdgeIterator, error) {
	rows, err := el.db.QueryContext(ctx,
		`SELECT src, dst FROM edges WHERE id <= ? ORDER BY id ASC`, marker)
	if err != nil {
		return nil, fmt.Errorf("failed to read edges: %w", err)
	}
	return &EdgeIterator{rows: rows}, nil
}

// Next advances the iterator. It returns false when no more edges are
// available or an error occurred; check Err afterwards.
func (it *EdgeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	var src, dst int64
	if it.err = it.rows.Scan(&src, &dst); it.err != nil {
		return false
	}
	it.edge = page.Edge{Src: page.Identity(src), Dst: page.Identity(dst)}
	return true
}

// Edge returns the edge fetched by the last successful Next call.
func (it *EdgeIterator) Edge() page.Edge {
	return it.edge
}

// Err returns the first error encountered during iteration.
func (it *EdgeIterator) Err() error {
	return it.err
}

// Close releases the iterator's cursor. Safe to call more than once.
func (it *EdgeIterator) Close() error {
	return it.rows.Close()
}
