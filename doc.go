// Package frontier implements a crawl-frontier engine: it decides which
// URL a web crawler should fetch next, remembers what has already been
// seen, and persists enough link-graph state to rank pages by importance
// across crawl sessions.
//
// The Frontier type is the single API surface. Crawl workers report
// discovered links through AddLinks, pull work with GetNextBatch, and
// close the loop with MarkCrawled or MarkFailed. A background
// PageRank-family score pass (RequestRescore) re-ranks the frontier as
// the link graph grows.
//
// All state lives in a single on-disk directory and survives process
// restarts; the store rejects directories written by an incompatible
// format version instead of misreading them. HTTP serving, fetching,
// HTML parsing, and robots.txt handling are deliberately out of scope:
// they belong to the crawl workers calling into this package.
package frontier
