package page

import "time"

// Status represents the crawl state of a page record.
//
// The state machine is:
//
//	NEW -> (selected) -> CRAWLING -> (report) -> CRAWLED | ERROR
//
// ERROR records may transition back to CRAWLING after a backoff window
// until the retry limit is reached, after which they are terminal.
//
// Design decision: We use iota-based constants rather than string constants
// because status values are persisted on billions of records and compared in
// the scheduler's hot path. The String() method provides human-readable
// output for logs and reports.
type Status int

const (
	// StatusNew indicates a page that has been discovered but never dispatched.
	StatusNew Status = iota

	// StatusCrawling indicates a page handed to a crawl worker whose outcome
	// has not yet been reported.
	StatusCrawling

	// StatusCrawled indicates a page that was fetched successfully at least once.
	StatusCrawled

	// StatusError indicates a page whose last crawl attempt failed.
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusCrawling:
		return "CRAWLING"
	case StatusCrawled:
		return "CRAWLED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether the status is one of the defined states.
// The store uses this to detect corrupted records at read time.
func (s Status) Valid() bool {
	return s >= StatusNew && s <= StatusError
}

// PageRecord is the persisted per-URL state.
//
// A record is created on first discovery with StatusNew and the default
// prior score, and is never deleted during normal operation: the frontier
// keeps history for the lifetime of the crawl. Field ownership is split
// across components: the score engine writes Score, the scheduler drives
// Status transitions into StatusCrawling, and the facade applies crawl
// completion reports (Status, LastCrawled, ErrorCount) and link counts.
type PageRecord struct {
	// Identity is the 64-bit hash of the canonical URL.
	Identity Identity

	// URL is the canonical URL string. Kept alongside the identity because
	// crawl workers need the string form back when a batch is dispatched.
	URL string

	// Score is the current importance estimate, always >= 0.
	Score float64

	// Status is the current crawl state.
	Status Status

	// FirstSeen is when the page was first discovered. Used as the
	// scheduler's FIFO tie-break so equal-score pages cannot starve.
	FirstSeen time.Time

	// LastCrawled is when the page was last fetched. Zero if never crawled.
	LastCrawled time.Time

	// ErrorCount is the number of failed crawl attempts.
	ErrorCount int

	// CrawlCount is the number of successful crawls. Bounded recrawl
	// policies stop rescheduling a page once this reaches the limit.
	CrawlCount int

	// OutLinks is the number of distinct pages this page links to.
	OutLinks int

	// InLinks is the number of distinct pages linking to this page.
	InLinks int
}

// NewRecord creates a record for a freshly discovered canonical URL with
// StatusNew and the given prior score.
func NewRecord(canonical string, prior float64, now time.Time) *PageRecord {
	return &PageRecord{
		Identity:  IdentityOf(canonical),
		URL:       canonical,
		Score:     prior,
		Status:    StatusNew,
		FirstSeen: now,
	}
}

// Edge is a directed link between two page identities.
// Edges are deduplicated per source; an edge implies the target has a
// page record.
type Edge struct {
	// Src is the identity of the linking page.
	Src Identity

	// Dst is the identity of the linked-to page.
	Dst Identity
}
