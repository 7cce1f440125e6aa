package frontier

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// None of these has a single canonical answer; they follow the PageRank
// literature and common crawler practice, and every one is overridable.
const (
	// DefaultPrior is the score assigned to a page on first discovery.
	// New pages need a non-zero prior so they are crawlable before the
	// next full score pass has had a chance to rank them.
	DefaultPrior = 1.0

	// DefaultSeedScore is the score assigned to explicitly added seeds.
	// Seeds start ahead of organically discovered pages so a fresh crawl
	// begins where the operator pointed it.
	DefaultSeedScore = 10.0

	// DefaultDamping is the PageRank damping factor: the probability mass
	// propagated along links versus redistributed uniformly. 0.85 is the
	// value from the original PageRank paper and remains the de facto
	// standard.
	DefaultDamping = 0.85

	// DefaultEpsilon is the L1 convergence threshold for a score pass.
	DefaultEpsilon = 1e-4

	// DefaultMaxIterations caps a score pass so a pathological graph
	// cannot stall the crawl. Reaching the cap just stops early with the
	// best approximation so far.
	DefaultMaxIterations = 100

	// DefaultRescoreThreshold is the pending-edge volume after which
	// AddLinks starts returning ErrRescoreOverdue. Large enough that
	// rescore passes amortize, small enough to bound memory growth of the
	// un-consumed edge backlog.
	DefaultRescoreThreshold = 100_000

	// DefaultMaxRetries is the number of failed crawl attempts before a
	// page is terminally ERROR.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the delay before the first retry of a failed
	// page; each further failure doubles it.
	DefaultRetryBackoff = 1 * time.Minute

	// DefaultRetryBackoffCap bounds the exponential retry backoff.
	DefaultRetryBackoffCap = 1 * time.Hour

	// DefaultCrawlDelay is the minimum time between dispatches to one
	// registered domain. 1 second is conservative and respectful of
	// server resources.
	DefaultCrawlDelay = 1 * time.Second

	// DefaultMaxConcurrent is the per-domain cap on concurrently
	// outstanding crawls.
	DefaultMaxConcurrent = 2

	// AppName is the application name used for XDG directory paths.
	AppName = "frontier"
)

// Config holds all configuration options for a Frontier.
//
// This struct is populated by the caller and passed to Open; it is not
// read from global state. The zero value is not usable: start from
// NewConfig and override what you need.
type Config struct {
	// Prior is the score assigned to newly discovered pages.
	Prior float64

	// SeedScore is the score assigned to pages added via AddSeeds.
	SeedScore float64

	// Damping is the PageRank damping factor, in (0, 1).
	Damping float64

	// Epsilon is the score pass L1 convergence threshold.
	Epsilon float64

	// MaxIterations caps the rounds of a single score pass.
	MaxIterations int

	// RescoreThreshold is the pending-edge volume above which AddLinks
	// returns the advisory ErrRescoreOverdue. Zero disables backpressure.
	RescoreThreshold int64

	// AsyncRescore makes RequestRescore return immediately and run the
	// pass in the background. Concurrent requests coalesce into one pass
	// either way.
	AsyncRescore bool

	// MaxRetries is the failed-attempt limit before a page is terminally
	// ERROR and excluded from selection.
	MaxRetries int

	// RetryBackoff is the backoff after the first failure; doubled per
	// further failure up to RetryBackoffCap.
	RetryBackoff    time.Duration
	RetryBackoffCap time.Duration

	// CrawlDelay and MaxConcurrent are the politeness defaults applied to
	// domains without an entry in Politeness.
	CrawlDelay    time.Duration
	MaxConcurrent int

	// Politeness maps registered domains to per-domain overrides. Usually
	// loaded from the policy file (see LoadPolicyFile).
	Politeness map[string]DomainPolicy

	// Recrawl re-schedules successfully crawled pages after
	// RecrawlInterval so the crawl revisits known content. MaxCrawls
	// bounds the number of crawls per page (0 = unbounded).
	Recrawl         bool
	RecrawlInterval time.Duration
	MaxCrawls       int

	// Logger receives the frontier's structured logs. When nil,
	// slog.Default() is used. Open wraps it with a handler that truncates
	// oversized attribute values.
	Logger *slog.Logger
}

// NewConfig creates a Config with default values.
//
// Design decision: We use a constructor instead of relying on zero values
// because almost every default is non-zero. It also serves as living
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Prior:            DefaultPrior,
		SeedScore:        DefaultSeedScore,
		Damping:          DefaultDamping,
		Epsilon:          DefaultEpsilon,
		MaxIterations:    DefaultMaxIterations,
		RescoreThreshold: DefaultRescoreThreshold,
		MaxRetries:       DefaultMaxRetries,
		RetryBackoff:     DefaultRetryBackoff,
		RetryBackoffCap:  DefaultRetryBackoffCap,
		CrawlDelay:       DefaultCrawlDelay,
		MaxConcurrent:    DefaultMaxConcurrent,
	}
}

// DefaultDir returns the XDG data directory used when Open is called with
// an empty directory argument.
// On Linux: ~/.local/share/frontier
// On macOS: ~/Library/Application Support/frontier
// On Windows: %LOCALAPPDATA%\frontier
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks if the configuration is valid, returning the first
// problem found. Open calls it before touching the disk so a bad
// configuration fails fast with a specific error.
func (c *Config) Validate() error {
	if c.Prior <= 0 || c.SeedScore <= 0 {
		return ErrInvalidPrior
	}
	if c.Damping <= 0 || c.Damping >= 1 {
		return ErrInvalidDamping
	}
	if c.Epsilon <= 0 {
		return ErrInvalidEpsilon
	}
	if c.MaxIterations <= 0 {
		return ErrInvalidMaxIterations
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.RetryBackoff <= 0 || c.RetryBackoffCap < c.RetryBackoff {
		return ErrInvalidBackoff
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxConcurrent <= 0 {
		return ErrInvalidConcurrency
	}
	for _, p := range c.Politeness {
		if p.CrawlDelay < 0 {
			return ErrInvalidCrawlDelay
		}
		if p.MaxConcurrent < 0 {
			return ErrInvalidConcurrency
		}
	}
	return nil
}
