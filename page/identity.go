package page

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/publicsuffix"
)

// Identity is a stable 64-bit hash of a canonical URL string.
//
// All internal structures key on identities rather than raw URL strings to
// keep records fixed-size. Two URLs that canonicalize to the same string
// always produce the same identity. Hash collisions are treated as the same
// page; with a 64-bit hash the false-merge risk is negligible for crawls of
// billions of URLs.
type Identity uint64

// String returns the identity as a zero-padded hexadecimal string.
// The fixed width keeps identities lexicographically comparable, which the
// scheduler relies on for its deterministic tie-break.
func (id Identity) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// URL canonicalization errors.
var (
	// ErrInvalidURL is returned when a URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("page: invalid URL")

	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	// The frontier only schedules web pages; other schemes (mailto, ftp,
	// javascript) are discovered in page content but never crawlable.
	ErrUnsupportedScheme = errors.New("page: unsupported URL scheme")
)

// Canonicalize normalizes a raw URL string into its canonical form:
// scheme and host are folded to lower case, default ports are stripped,
// the fragment is removed, and an empty path becomes "/".
//
// The query string is preserved as-is. Aggressive query normalization
// (parameter sorting, session-id stripping) trades false merges for
// duplicate fetches and is left to the crawl workers.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Host)
	// Strip the default port for the scheme.
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	u.Host = host

	// Fragments are client-side only and never change the fetched document.
	u.Fragment = ""

	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// IdentityOf returns the identity of a canonical URL string.
// The input must already be canonicalized; hashing a non-canonical URL
// produces a different identity for the same page.
func IdentityOf(canonical string) Identity {
	return Identity(xxhash.Sum64String(canonical))
}

// RegisteredDomain extracts the registered domain (eTLD+1) from a canonical
// URL for politeness accounting. Sub-domains of one site share crawl-delay
// and concurrency budgets: "news.example.co.uk" and "www.example.co.uk"
// both map to "example.co.uk".
//
// Hosts without a public suffix (IP addresses, localhost, intranet names)
// fall back to the host itself so they still get their own budget.
func RegisteredDomain(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return canonical
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
