package frontier

import (
	"errors"

	"github.com/nao1215/frontier/internal/store"
)

// Facade-level errors.
//
// Design decision: We use package-level sentinel errors so callers can
// classify outcomes with errors.Is(). Storage sentinels are re-exported
// from the internal store package rather than redefined, so a value
// wrapped deep inside the engine still matches at the facade boundary.
var (
	// ErrUnknownIdentity is returned when a crawl outcome is reported for
	// an identity the store has no record of.
	ErrUnknownIdentity = errors.New("frontier: unknown page identity")

	// ErrRescoreOverdue is returned by AddLinks after the links have been
	// durably recorded, when the pending edge volume has crossed the
	// rescore threshold. It is advisory: the caller should trigger
	// RequestRescore soon, but the AddLinks call itself succeeded.
	ErrRescoreOverdue = errors.New("frontier: pending link volume exceeds rescore threshold")

	// ErrClosed is returned by operations on a closed Frontier.
	ErrClosed = errors.New("frontier: frontier is closed")

	// ErrNotFound is returned by GetRecord when no record exists.
	ErrNotFound = store.ErrNotFound

	// ErrCorruptedRecord is returned when a persisted record cannot be
	// read back in a valid form. Only the damaged record is affected.
	ErrCorruptedRecord = store.ErrCorruptedRecord

	// ErrStorageFull is returned when the store's disk is exhausted.
	ErrStorageFull = store.ErrStorageFull

	// ErrIOFailure is returned when a transient storage failure persists
	// past the bounded retry budget.
	ErrIOFailure = store.ErrIOFailure

	// ErrIncompatibleStore is returned by Open when the directory holds a
	// store written by an incompatible format version.
	ErrIncompatibleStore = store.ErrIncompatibleStore
)

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidDamping is returned when the damping factor is outside (0, 1).
	ErrInvalidDamping = errors.New("frontier: invalid damping factor: must be in (0, 1)")

	// ErrInvalidEpsilon is returned when the convergence threshold is not positive.
	ErrInvalidEpsilon = errors.New("frontier: invalid epsilon: must be positive")

	// ErrInvalidMaxIterations is returned when the iteration cap is not positive.
	ErrInvalidMaxIterations = errors.New("frontier: invalid max iterations: must be positive")

	// ErrInvalidPrior is returned when the default prior score is not positive.
	// A zero prior would leave new pages unreachable by score-ordered selection.
	ErrInvalidPrior = errors.New("frontier: invalid prior score: must be positive")

	// ErrInvalidMaxRetries is returned when the retry limit is negative.
	ErrInvalidMaxRetries = errors.New("frontier: invalid max retries: must be non-negative")

	// ErrInvalidBackoff is returned when the retry backoff base or cap is
	// not positive, or the cap is below the base.
	ErrInvalidBackoff = errors.New("frontier: invalid retry backoff")

	// ErrInvalidCrawlDelay is returned when a crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("frontier: invalid crawl delay: must be non-negative")

	// ErrInvalidConcurrency is returned when a per-domain concurrency limit
	// is not positive.
	ErrInvalidConcurrency = errors.New("frontier: invalid max concurrency: must be positive")
)
