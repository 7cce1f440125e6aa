package rank

import (
	"context"
	"errors"
	"math"

	"github.com/nao1215/frontier/page"
)

// Errors returned by the engine.
var (
	// ErrNoPages is returned when a pass is requested over an empty graph.
	ErrNoPages = errors.New("rank: no pages to score")

	// ErrInvalidConfig is returned when the damping factor or convergence
	// threshold is out of range.
	ErrInvalidConfig = errors.New("rank: invalid configuration")
)

// Config holds the knobs of the propagation algorithm. There is no single
// canonical value for any of them; the defaults follow the common PageRank
// literature and the facade exposes all of them as configuration.
type Config struct {
	// Damping is the probability mass retained when propagating along
	// links versus redistributed uniformly. Must be in (0, 1).
	Damping float64

	// Epsilon is the L1 convergence threshold: iteration stops once the
	// total absolute score change in one round falls below it.
	Epsilon float64

	// MaxIterations caps the number of rounds so a pathological graph
	// cannot stall the crawl. Hitting the cap is not an error; the best
	// approximation so far is used.
	MaxIterations int
}

// Node is one page's identity and current score, the engine's input unit.
type Node struct {
	ID    page.Identity
	Score float64
}

// Result is the outcome of a pass.
type Result struct {
	// Scores holds the new score for every input node, same order as input.
	Scores []Node

	// Iterations is the number of rounds actually run.
	Iterations int

	// Delta is the L1 change of the final round.
	Delta float64

	// Converged is false when the pass stopped at the iteration cap.
	Converged bool
}

// Engine computes importance scores over a link-graph snapshot.
type Engine struct {
	cfg Config
}

// New creates an Engine, validating the configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("damping must be in (0, 1)"))
	}
	if cfg.Epsilon <= 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("epsilon must be positive"))
	}
	if cfg.MaxIterations <= 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("iteration cap must be positive"))
	}
	return &Engine{cfg: cfg}, nil
}

// Compute runs the fixed-point iteration over the given snapshot and
// returns new scores for every node.
//
// The computation is performed in normalized space (scores scaled to a
// probability distribution) and scaled back to the snapshot's total mass at
// the end, so the sum of scores is conserved across a pass up to
// floating-point tolerance. Edges referencing identities absent from the
// node snapshot are skipped; the store invariant (an edge implies a record)
// makes them impossible in practice, but a skipped edge beats a panic.
//
// Compute checks ctx between iterations and returns ctx.Err() on
// cancellation; no partial result is returned.
func (e *Engine) Compute(ctx context.Context, nodes []Node, edges []page.Edge) (*Result, error) {
	n := len(nodes)
	if n == 0 {
		return nil, ErrNoPages
	}

	// Dense identity -> index mapping for cache-friendly iteration.
	idx := make(map[page.Identity]int, n)
	for i, node := range nodes {
		idx[node.ID] = i
	}

	// Compact adjacency in CSR-like form: out-degree per node plus a flat
	// target list grouped by source.
	outDeg := make([]int, n)
	type edgeRef struct{ src, dst int }
	refs := make([]edgeRef, 0, len(edges))
	for _, edge := range edges {
		src, ok := idx[edge.Src]
		if !ok {
			continue
		}
		dst, ok := idx[edge.Dst]
		if !ok {
			continue
		}
		outDeg[src]++
		refs = append(refs, edgeRef{src: src, dst: dst})
	}

	// Normalize the snapshot to a probability vector. A zero-mass snapshot
	// (all scores zero) starts uniform; the caller's total mass is
	// remembered so the output can be scaled back.
	mass := 0.0
	for _, node := range nodes {
		mass += node.Score
	}
	cur := make([]float64, n)
	if mass > 0 {
		for i, node := range nodes {
			cur[i] = node.Score / mass
		}
	} else {
		mass = float64(n)
		uniform := 1.0 / float64(n)
		for i := range cur {
			cur[i] = uniform
		}
	}

	next := make([]float64, n)
	d := e.cfg.Damping
	base := (1 - d) / float64(n)

	result := &Result{}
	for result.Iterations = 0; result.Iterations < e.cfg.MaxIterations; result.Iterations++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Mass on dangling pages is redistributed uniformly.
		dangling := 0.0
		for i, deg := range outDeg {
			if deg == 0 {
				dangling += cur[i]
			}
		}
		floor := base + d*dangling/float64(n)
		for i := range next {
			next[i] = floor
		}
		for _, ref := range refs {
			next[ref.dst] += d * cur[ref.src] / float64(outDeg[ref.src])
		}

		result.Delta = 0
		for i := range next {
			result.Delta += math.Abs(next[i] - cur[i])
		}
		cur, next = next, cur

		if result.Delta < e.cfg.Epsilon {
			result.Iterations++
			result.Converged = true
			break
		}
	}

	result.Scores = make([]Node, n)
	for i, node := range nodes {
		result.Scores[i] = Node{ID: node.ID, Score: cur[i] * mass}
	}
	return result, nil
}
