package store

import (
	"context"
	"database/sql"

	"github.com/nao1215/frontier/page"
)

// RecordIterator lazily walks page records in descending score order
// (ties broken by first-seen, then identity). The scheduler uses it to
// rebuild its priority view without loading the whole store into memory.
//
// The iterator holds a read snapshot: records committed after it was
// created are not observed. Callers must Close it to release the
// underlying cursor.
type RecordIterator struct {
	rows *sql.Rows
	rec  *page.PageRecord
	err  error
}

// IterateByScore returns an iterator over all page records ordered by
// score descending, first-seen ascending, identity ascending. The order
// matches the scheduler's selection priority exactly.
func (ps *PageStore) IterateByScore(ctx context.Context) (*RecordIterator, error) {
	rows, err := ps.db.QueryContext(ctx, `
	SELECT identity, url, score, status, first_seen, last_crawled,
	       error_count, crawl_count, out_links, in_links
	FROM pages
	ORDER BY score DESC, first_seen ASC, identity ASC`)
	if err != nil {
		return nil, classify(err)
	}
	return &RecordIterator{rows: rows}, nil
}

// Next advances the iterator. It returns false when no more records are
// available or an error occurred; check Err afterwards.
func (it *RecordIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	it.rec, it.err = scanRecord(it.rows.Scan)
	return it.err == nil
}

// Record returns the record fetched by the last successful Next call.
func (it *RecordIterator) Record() *page.PageRecord {
	return it.rec
}

// Err returns the first error encountered during iteration.
func (it *RecordIterator) Err() error {
	return it.err
}

// Close releases the iterator's cursor. Safe to call more than once.
func (it *RecordIterator) Close() error {
	return it.rows.Close()
}
