// Package rank implements the frontier's importance propagation.
//
// The engine runs a PageRank-family fixed-point iteration over the link
// graph: each page's score is a damped combination of the scores of pages
// linking to it, normalized over each linker's out-degree. Pages with no
// outgoing links redistribute their mass uniformly so the total score mass
// is conserved across a pass.
//
// Design decision: The computation operates over dense arrays indexed by a
// compact identity-to-index mapping instead of a pointer-linked graph.
// Iteration is then two flat array sweeps per round, which is what makes
// graph-wide convergence affordable at crawl scale.
//
// A pass is pure: it reads a snapshot, computes in memory, and hands the
// result back to the caller for a single atomic commit. Interrupting a pass
// never leaves partial iteration state anywhere.
package rank
