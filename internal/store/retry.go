package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Retry policy for transient I/O failures.
// SQLite reports a busy database or a momentarily unreadable file as an
// error on the statement; a short backoff and retry resolves almost all of
// them. The budget is deliberately small: the facade serializes writes, so
// contention is rare and a persistently failing disk should surface quickly.
const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// withRetry runs fn, retrying transient failures with exponential backoff.
// Non-transient errors are classified and returned immediately. When the
// retry budget is exhausted the last error is surfaced as ErrIOFailure.
func (ps *PageStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return classify(err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return errors.Join(ErrIOFailure, err)
}

// classify maps driver errors onto the store's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database or disk is full"):
		return errors.Join(ErrStorageFull, err)
	case strings.Contains(msg, "disk I/O error"),
		strings.Contains(msg, "database disk image is malformed"):
		return errors.Join(ErrCorruptedRecord, err)
	default:
		return err
	}
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
