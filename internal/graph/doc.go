// Package graph maintains the frontier's link-graph edge log.
//
// Edges are appended as crawl workers discover links and consumed in bulk
// by the score engine. The log lives in the same SQLite database as the
// page index so that appending an edge and creating its target record
// share one transaction boundary.
//
// The table's monotonically increasing rowid doubles as the drain marker:
// a score pass snapshots the current maximum id, computes over the full
// adjacency, and commits the marker as its checkpoint. Edges past the
// checkpoint are the "pending" volume used for rescore backpressure.
package graph
