package store

import "errors"

// Storage error taxonomy.
//
// Design decision: We use package-level sentinel errors rather than creating
// new error instances at each return site. Callers of the frontier facade
// classify failures with errors.Is(); the facade re-exports these values so
// the taxonomy survives the package boundary.
var (
	// ErrNotFound is returned when no record exists for the requested identity.
	// This is a logical outcome, not a failure; callers decide how to react.
	ErrNotFound = errors.New("store: page record not found")

	// ErrCorruptedRecord is returned when a stored record cannot be read back
	// in a valid form. The store refuses to serve the damaged record rather
	// than return garbage; other records remain readable.
	ErrCorruptedRecord = errors.New("store: corrupted page record")

	// ErrStorageFull is returned when the underlying database reports that
	// disk space is exhausted. The failed write is rolled back completely;
	// no partial state is left behind.
	ErrStorageFull = errors.New("store: storage full")

	// ErrIOFailure is returned when a transient I/O error persists after the
	// bounded retry budget is exhausted. The operation may be retried by the
	// caller once conditions improve.
	ErrIOFailure = errors.New("store: I/O failure")

	// ErrIncompatibleStore is returned at open time when the on-disk format
	// version does not match the version this build understands. An
	// incompatible store is rejected outright rather than silently misread.
	ErrIncompatibleStore = errors.New("store: incompatible store format version")
)
