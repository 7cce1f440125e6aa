package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/frontier/page"
)

// setupTestStore creates a temporary page store for testing.
func setupTestStore(t *testing.T) *PageStore {
	t.Helper()

	ps, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// testRecord builds a record for the given URL with sensible defaults.
func testRecord(t *testing.T, rawURL string, score float64) *page.PageRecord {
	t.Helper()

	canonical, err := page.Canonicalize(rawURL)
	if err != nil {
		t.Fatalf("failed to canonicalize %q: %v", rawURL, err)
	}
	return page.NewRecord(canonical, score, time.Now())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates store in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "newdir", "subdir")
		ps, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer ps.Close()

		if _, err := os.Stat(filepath.Join(dir, dbFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when store does not exist", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when store does not exist")
		}
	})

	t.Run("data persists across close and reopen", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		ps1, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		ctx := context.Background()
		rec := testRecord(t, "http://example.com/persist", 2.0)
		if err := ps1.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
		if err := ps1.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}

		ps2, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer ps2.Close()

		got, err := ps2.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatalf("failed to get record after reopen: %v", err)
		}
		if got.URL != rec.URL || got.Score != rec.Score {
			t.Errorf("record did not survive reopen: got %+v", got)
		}
	})

	t.Run("rejects incompatible format version", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		ps1, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		ctx := context.Background()
		if _, err := ps1.db.ExecContext(ctx,
			`UPDATE meta SET value = '999' WHERE key = 'schema_version'`); err != nil {
			t.Fatalf("failed to bump version: %v", err)
		}
		if err := ps1.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}

		_, err = Open(dir, DefaultOptions())
		if !errors.Is(err, ErrIncompatibleStore) {
			t.Errorf("Open() error = %v, want ErrIncompatibleStore", err)
		}
	})
}

func TestPageStoreGetPut(t *testing.T) {
	t.Parallel()

	t.Run("get of unknown identity returns ErrNotFound", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		_, err := ps.Get(context.Background(), page.Identity(12345))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put then get round-trips every field", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/full", 3.25)
		rec.Status = page.StatusCrawled
		rec.LastCrawled = time.Now()
		rec.ErrorCount = 2
		rec.CrawlCount = 5
		rec.OutLinks = 7
		rec.InLinks = 4

		if err := ps.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
		got, err := ps.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatalf("failed to get record: %v", err)
		}

		if got.Identity != rec.Identity ||
			got.URL != rec.URL ||
			got.Score != rec.Score ||
			got.Status != rec.Status ||
			!got.FirstSeen.Equal(rec.FirstSeen) ||
			!got.LastCrawled.Equal(rec.LastCrawled) ||
			got.ErrorCount != rec.ErrorCount ||
			got.CrawlCount != rec.CrawlCount ||
			got.OutLinks != rec.OutLinks ||
			got.InLinks != rec.InLinks {
			t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, rec)
		}
	})

	t.Run("put overwrites existing record", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/over", 1.0)
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		rec.Score = 9.0
		rec.Status = page.StatusCrawling
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}

		got, err := ps.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got.Score != 9.0 || got.Status != page.StatusCrawling {
			t.Errorf("overwrite not applied: %+v", got)
		}
	})

	t.Run("corrupted row is refused rather than served", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/corrupt", 1.0)
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		// Damage the row behind the store's back.
		if _, err := ps.db.ExecContext(ctx,
			`UPDATE pages SET status = 99 WHERE identity = ?`, int64(rec.Identity)); err != nil {
			t.Fatal(err)
		}

		_, err := ps.Get(ctx, rec.Identity)
		if !errors.Is(err, ErrCorruptedRecord) {
			t.Errorf("Get() error = %v, want ErrCorruptedRecord", err)
		}
	})
}

func TestPageStoreBatchWrite(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	recs := []*page.PageRecord{
		testRecord(t, "http://a.example.com/", 1.0),
		testRecord(t, "http://b.example.com/", 2.0),
		testRecord(t, "http://c.example.com/", 3.0),
	}
	if err := ps.BatchWrite(ctx, recs); err != nil {
		t.Fatalf("failed to batch write: %v", err)
	}

	for _, rec := range recs {
		if _, err := ps.Get(ctx, rec.Identity); err != nil {
			t.Errorf("record %s missing after batch write: %v", rec.URL, err)
		}
	}

	n, err := ps.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestPageStoreSetStatus(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	recs := []*page.PageRecord{
		testRecord(t, "http://a.example.com/", 1.0),
		testRecord(t, "http://b.example.com/", 2.0),
	}
	if err := ps.BatchWrite(ctx, recs); err != nil {
		t.Fatal(err)
	}

	ids := []page.Identity{recs[0].Identity, recs[1].Identity}
	if err := ps.SetStatus(ctx, ids, page.StatusCrawling); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}

	counts, err := ps.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[page.StatusCrawling] != 2 {
		t.Errorf("CRAWLING count = %d, want 2", counts[page.StatusCrawling])
	}
}

func TestPageStoreRecordOutcome(t *testing.T) {
	t.Parallel()

	t.Run("success bumps crawl count and resets errors", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/ok", 2.5)
		rec.ErrorCount = 2
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}

		when := time.Now()
		if err := ps.RecordOutcome(ctx, rec.Identity, true, when); err != nil {
			t.Fatalf("failed to record outcome: %v", err)
		}

		got, err := ps.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != page.StatusCrawled || got.CrawlCount != 1 || got.ErrorCount != 0 {
			t.Errorf("success outcome not applied: %+v", got)
		}
		if !got.LastCrawled.Equal(when) {
			t.Errorf("last-crawled = %v, want %v", got.LastCrawled, when)
		}
	})

	t.Run("failure bumps error count", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/broken", 1.0)
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if err := ps.RecordOutcome(ctx, rec.Identity, false, time.Now()); err != nil {
			t.Fatal(err)
		}

		got, err := ps.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != page.StatusError || got.ErrorCount != 1 {
			t.Errorf("failure outcome not applied: %+v", got)
		}
	})

	t.Run("leaves score and link counts alone", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		ctx := context.Background()

		rec := testRecord(t, "http://example.com/busy", 7.5)
		rec.OutLinks = 3
		rec.InLinks = 9
		if err := ps.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if err := ps.RecordOutcome(ctx, rec.Identity, true, time.Now()); err != nil {
			t.Fatal(err)
		}

		got, err := ps.Get(ctx, rec.Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got.Score != 7.5 || got.OutLinks != 3 || got.InLinks != 9 {
			t.Errorf("outcome touched columns it does not own: %+v", got)
		}
	})

	t.Run("unknown identity returns ErrNotFound", func(t *testing.T) {
		t.Parallel()

		ps := setupTestStore(t)
		err := ps.RecordOutcome(context.Background(), page.Identity(404), true, time.Now())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("RecordOutcome() error = %v, want ErrNotFound", err)
		}
	})
}

func TestPageStoreIterateByScore(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	older := page.NewRecord("http://old.example.com/", 2.0, base.Add(-time.Hour))
	newer := page.NewRecord("http://new.example.com/", 2.0, base)
	top := page.NewRecord("http://top.example.com/", 5.0, base)

	if err := ps.BatchWrite(ctx, []*page.PageRecord{newer, top, older}); err != nil {
		t.Fatal(err)
	}

	it, err := ps.IterateByScore(ctx)
	if err != nil {
		t.Fatalf("failed to iterate: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, it.Record().URL)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}

	want := []string{
		"http://top.example.com/", // highest score first
		"http://old.example.com/", // equal scores: earliest first-seen wins
		"http://new.example.com/",
	}
	if len(got) != len(want) {
		t.Fatalf("iterated %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPageStoreCommitScores(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord(t, "http://example.com/scored", 1.0)
	if err := ps.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}

	updates := []ScoreUpdate{{ID: rec.Identity, Score: 4.5}}
	if err := ps.CommitScores(ctx, updates, 17); err != nil {
		t.Fatalf("failed to commit scores: %v", err)
	}

	got, err := ps.Get(ctx, rec.Identity)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 4.5 {
		t.Errorf("score = %f, want 4.5", got.Score)
	}

	marker, err := ps.EdgeCheckpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if marker != 17 {
		t.Errorf("edge checkpoint = %d, want 17", marker)
	}
}

func TestWriteTxEnsure(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord(t, "http://example.com/ensure", 1.0)

	var created bool
	err := ps.WriteTx(ctx, func(tx *Tx) error {
		var err error
		created, err = tx.Ensure(rec)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first Ensure should create the record")
	}

	// Rediscovery must not reset existing state.
	mutated := *rec
	mutated.Score = 99.0
	err = ps.WriteTx(ctx, func(tx *Tx) error {
		var err error
		created, err = tx.Ensure(&mutated)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second Ensure should be a no-op")
	}

	got, err := ps.Get(ctx, rec.Identity)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 1.0 {
		t.Errorf("Ensure overwrote existing record: score = %f, want 1.0", got.Score)
	}
}

func TestWriteTxRollback(t *testing.T) {
	t.Parallel()

	ps := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord(t, "http://example.com/rollback", 1.0)
	boom := errors.New("boom")

	err := ps.WriteTx(ctx, func(tx *Tx) error {
		if _, err := tx.Ensure(rec); err != nil {
			return err
		}
		return boom // force a rollback after the insert
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteTx error = %v, want boom", err)
	}

	_, err = ps.Get(ctx, rec.Identity)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("record visible after rollback: err = %v, want ErrNotFound", err)
	}
}
