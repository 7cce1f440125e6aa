package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/frontier/page"
)

// SchemaVersion is the on-disk format version tag.
// It is written into the meta table when a store is created and checked on
// every open. Bump it whenever the schema changes incompatibly.
const SchemaVersion = 1

// dbFileName is the database file inside the store directory.
const dbFileName = "frontier.db"

// PageStore is the durable index mapping URL identities to page records.
// It owns page-record durability exclusively; the scheduler's priority view
// is derived state that can always be rebuilt from here.
type PageStore struct {
	// db is the underlying SQL database connection pool.
	db *sql.DB

	// path is the path to the SQLite database file.
	path string
}

// Options configures PageStore behavior.
type Options struct {
	// CreateIfNotExists creates the store directory and database file if
	// they do not exist. When false, opening a missing store is an error.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. WAL is what allows the score
	// engine's long snapshot reads to coexist with live writes, so it
	// should stay on outside of tests that exercise the rollback journal.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a PageStore in the given directory.
// The directory holds the whole persisted frontier state; pointing two
// processes at the same directory is not supported.
func Open(dir string, opts Options) (*PageStore, error) {
	path := filepath.Join(dir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("store not found at %s (use CreateIfNotExists option to create)", path)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check store path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	// mode=rw prevents the driver from creating a fresh database file when
	// the caller asked for an existing store.
	dsn := path + "?mode=rwc"
	if !opts.CreateIfNotExists {
		dsn = path + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// One writer at a time (enforced by the facade), but a handful of
	// reader connections so iterator-based snapshot reads do not starve
	// point lookups.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	ps := &PageStore{db: db, path: path}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := ps.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := ps.checkVersion(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return ps, nil
}

// Close closes the database connection pool. Committed state is durable on
// disk; pending readers are interrupted.
func (ps *PageStore) Close() error {
	return ps.db.Close()
}

// DB exposes the underlying database handle to sibling internal packages.
// The edge log lives in the same database file so that link discovery and
// record creation share one transaction boundary.
func (ps *PageStore) DB() *sql.DB {
	return ps.db
}

// createSchema creates the database schema if it doesn't exist.
func (ps *PageStore) createSchema(ctx context.Context) error {
	schema := `
	-- Store metadata: format version and the edge-log checkpoint.
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Page records keyed by URL identity (64-bit hash stored as INTEGER).
	CREATE TABLE IF NOT EXISTS pages (
		identity     INTEGER PRIMARY KEY,
		url          TEXT NOT NULL,
		score        REAL NOT NULL,
		status       INTEGER NOT NULL,
		first_seen   INTEGER NOT NULL,
		last_crawled INTEGER NOT NULL DEFAULT 0,
		error_count  INTEGER NOT NULL DEFAULT 0,
		crawl_count  INTEGER NOT NULL DEFAULT 0,
		out_links    INTEGER NOT NULL DEFAULT 0,
		in_links     INTEGER NOT NULL DEFAULT 0
	);

	-- Serves the scheduler's priority rebuild without a full sort.
	CREATE INDEX IF NOT EXISTS idx_pages_score ON pages(score DESC, first_seen ASC, identity ASC);

	-- Link-graph edge log. The rowid doubles as the drain marker: the score
	-- engine consumes edges with id greater than the last checkpoint.
	CREATE TABLE IF NOT EXISTS edges (
		id  INTEGER PRIMARY KEY AUTOINCREMENT,
		src INTEGER NOT NULL,
		dst INTEGER NOT NULL,
		UNIQUE(src, dst)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src);
	`
	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	_, err := ps.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?), ('edge_checkpoint', '0')
		 ON CONFLICT(key) DO NOTHING`, strconv.Itoa(SchemaVersion))
	return err
}

// checkVersion rejects stores written by an incompatible format version.
func (ps *PageStore) checkVersion(ctx context.Context) error {
	var v string
	err := ps.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return fmt.Errorf("failed to read store version: %w", err)
	}
	version, err := strconv.Atoi(v)
	if err != nil || version != SchemaVersion {
		return fmt.Errorf("%w: store has version %q, this build expects %d",
			ErrIncompatibleStore, v, SchemaVersion)
	}
	return nil
}

// Get retrieves a page record by identity.
// Returns ErrNotFound if no record exists and ErrCorruptedRecord if the
// stored row cannot be read back in a valid form.
func (ps *PageStore) Get(ctx context.Context, id page.Identity) (*page.PageRecord, error) {
	row := ps.db.QueryRowContext(ctx, `
	SELECT identity, url, score, status, first_seen, last_crawled,
	       error_count, crawl_count, out_links, in_links
	FROM pages WHERE identity = ?`, int64(id))

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// Put inserts or fully overwrites a single record atomically.
func (ps *PageStore) Put(ctx context.Context, rec *page.PageRecord) error {
	return ps.withRetry(ctx, func() error {
		_, err := ps.db.ExecContext(ctx, upsertSQL, upsertArgs(rec)...)
		return err
	})
}

// BatchWrite applies many record upserts in a single transaction.
// Either every record in the batch becomes visible or none does; a crash
// mid-batch leaves the previously committed state intact.
func (ps *PageStore) BatchWrite(ctx context.Context, recs []*page.PageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return ps.withRetry(ctx, func() error {
		return ps.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertSQL)
			if err != nil {
				return err
			}
			defer stmt.Close() //nolint:errcheck // statement is tied to the tx
			for _, rec := range recs {
				if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// SetStatus transitions the given identities to the given status in one
// transaction. Used by the facade to persist batch selections: every page in
// a dispatched batch becomes CRAWLING atomically.
func (ps *PageStore) SetStatus(ctx context.Context, ids []page.Identity, st page.Status) error {
	if len(ids) == 0 {
		return nil
	}
	return ps.withRetry(ctx, func() error {
		return ps.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `UPDATE pages SET status = ? WHERE identity = ?`)
			if err != nil {
				return err
			}
			defer stmt.Close() //nolint:errcheck // statement is tied to the tx
			for _, id := range ids {
				if _, err := stmt.ExecContext(ctx, int(st), int64(id)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// RecordOutcome applies a crawl outcome to the columns the outcome owns:
// status, last_crawled, and the attempt counters. A success resets the
// error count and bumps the crawl count; a failure bumps the error count.
// Columns owned by other writers (score, link counts) are untouched, so a
// concurrent link discovery or a just-committed score pass cannot be
// clobbered with stale values read before the outcome arrived.
// Returns ErrNotFound when no record exists for the identity.
func (ps *PageStore) RecordOutcome(ctx context.Context, id page.Identity, success bool, when time.Time) error {
	query := `UPDATE pages SET status = ?, last_crawled = ?, error_count = error_count + 1
	          WHERE identity = ?`
	st := page.StatusError
	if success {
		query = `UPDATE pages SET status = ?, last_crawled = ?, crawl_count = crawl_count + 1,
		         error_count = 0 WHERE identity = ?`
		st = page.StatusCrawled
	}
	return ps.withRetry(ctx, func() error {
		res, err := ps.db.ExecContext(ctx, query, int(st), timeToUnix(when), int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ScoreUpdate is one page's new score produced by a score-engine pass.
type ScoreUpdate struct {
	ID    page.Identity
	Score float64
}

// CommitScores atomically applies a score-engine pass: all score updates and
// the new edge checkpoint become visible together. An interrupted pass is
// therefore always safe to discard and restart from the committed state.
func (ps *PageStore) CommitScores(ctx context.Context, updates []ScoreUpdate, marker int64) error {
	return ps.withRetry(ctx, func() error {
		return ps.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `UPDATE pages SET score = ? WHERE identity = ?`)
			if err != nil {
				return err
			}
			defer stmt.Close() //nolint:errcheck // statement is tied to the tx
			for _, u := range updates {
				if _, err := stmt.ExecContext(ctx, u.Score, int64(u.ID)); err != nil {
					return err
				}
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE meta SET value = ? WHERE key = 'edge_checkpoint'`,
				strconv.FormatInt(marker, 10))
			return err
		})
	})
}

// EdgeCheckpoint returns the edge-log id up to which edges have been
// consumed by a committed score pass.
func (ps *PageStore) EdgeCheckpoint(ctx context.Context) (int64, error) {
	var v string
	err := ps.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'edge_checkpoint'`).Scan(&v)
	if err != nil {
		return 0, classify(err)
	}
	marker, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad edge checkpoint %q", ErrCorruptedRecord, v)
	}
	return marker, nil
}

// Count returns the total number of page records.
func (ps *PageStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// CountByStatus returns the number of records in each crawl state.
func (ps *PageStore) CountByStatus(ctx context.Context) (map[page.Status]int64, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM pages GROUP BY status`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	counts := make(map[page.Status]int64)
	for rows.Next() {
		var st int
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, classify(err)
		}
		counts[page.Status(st)] = n
	}
	return counts, rows.Err()
}

// upsertSQL is the create-or-update statement shared by Put and BatchWrite.
const upsertSQL = `
INSERT INTO pages (identity, url, score, status, first_seen, last_crawled,
                   error_count, crawl_count, out_links, in_links)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
	url          = excluded.url,
	score        = excluded.score,
	status       = excluded.status,
	first_seen   = excluded.first_seen,
	last_crawled = excluded.last_crawled,
	error_count  = excluded.error_count,
	crawl_count  = excluded.crawl_count,
	out_links    = excluded.out_links,
	in_links     = excluded.in_links
`

func upsertArgs(rec *page.PageRecord) []any {
	return []any{
		int64(rec.Identity),
		rec.URL,
		rec.Score,
		int(rec.Status),
		timeToUnix(rec.FirstSeen),
		timeToUnix(rec.LastCrawled),
		rec.ErrorCount,
		rec.CrawlCount,
		rec.OutLinks,
		rec.InLinks,
	}
}

// scanRecord reads one pages row and validates it.
// A row that scans but fails validation is reported as corrupted rather
// than returned as garbage.
func scanRecord(scan func(dest ...any) error) (*page.PageRecord, error) {
	var (
		identity    int64
		rec         page.PageRecord
		status      int
		firstSeen   int64
		lastCrawled int64
	)
	err := scan(
		&identity,
		&rec.URL,
		&rec.Score,
		&status,
		&firstSeen,
		&lastCrawled,
		&rec.ErrorCount,
		&rec.CrawlCount,
		&rec.OutLinks,
		&rec.InLinks,
	)
	if err != nil {
		return nil, err
	}

	rec.Identity = page.Identity(identity)
	rec.Status = page.Status(status)
	rec.FirstSeen = unixToTime(firstSeen)
	rec.LastCrawled = unixToTime(lastCrawled)

	if rec.URL == "" || !rec.Status.Valid() || rec.Score < 0 || math.IsNaN(rec.Score) {
		return nil, fmt.Errorf("%w: identity %s", ErrCorruptedRecord, rec.Identity)
	}
	return &rec, nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (ps *PageStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// timeToUnix stores timestamps as UnixNano, with the zero time mapped to 0
// so "never crawled" round-trips without a formats table.
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func unixToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}
