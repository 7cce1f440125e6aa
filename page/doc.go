// Package page defines the core data types shared across the frontier:
// URL identities, page records, crawl status, and link edges.
//
// This package contains the following main types:
//   - Identity: A stable 64-bit hash of a canonical URL
//   - PageRecord: The persisted per-URL state (score, status, timestamps, link counts)
//   - Status: The crawl state machine enumeration
//   - Edge: A directed link between two identities
//
// Design decision: We separate these types into their own package to avoid
// circular dependencies. The storage, scheduling, and ranking components all
// need them, and keeping them in a leaf package prevents import cycles. The
// package exposes data only; all behavior stays behind the frontier facade.
package page
