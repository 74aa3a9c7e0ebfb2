package lineage

import (
	"fmt"
	"sync"

	"github.com/danielpatrickdp/we-lineage/internal/sparse"
	bsparse "github.com/james-bowman/sparse"
)

// #region resolver
// Resolver answers ancestor queries against one genealogy. The one-hop matrix
// is built on first use and shared by later calls; a Resolver is safe for
// concurrent use.
type Resolver struct {
	g *Genealogy

	once sync.Once
	adj  *bsparse.CSR
	err  error
}

// NewResolver wraps g. g must not be modified afterwards.
func NewResolver(g *Genealogy) *Resolver {
	return &Resolver{g: g}
}

// Genealogy returns the graph being queried.
func (r *Resolver) Genealogy() *Genealogy {
	return r.g
}

func (r *Resolver) adjacency() (*bsparse.CSR, error) {
	r.once.Do(func() {
		r.adj, r.err = r.g.adjacency()
	})
	return r.adj, r.err
}

// #endregion resolver

// #region map-to-ancestor
// MapToAncestor maps every node with an ancestor exactly depth hops back to that
// ancestor. Entry (i, j) of A^depth is nonzero iff node j is reached from node i by
// depth parent edges; nodes whose ancestry ends sooner are absent.
func (r *Resolver) MapToAncestor(depth int) (map[NodeID]NodeID, error) {
	if depth <= 0 {
		return nil, &InvalidLagError{Depth: depth}
	}

	mapping := make(map[NodeID]NodeID)
	if r.g.Len() == 0 {
		return mapping, nil
	}

	adj, err := r.adjacency()
	if err != nil {
		return nil, fmt.Errorf("adjacency: %w", err)
	}
	power, err := sparse.Pow(adj, depth)
	if err != nil {
		return nil, fmt.Errorf("adjacency power %d: %w", depth, err)
	}

	for i, cols := range sparse.RowSets(power) {
		switch len(cols) {
		case 0:
			continue
		case 1:
			mapping[r.g.nodes[i]] = r.g.nodes[cols[0]]
		default:
			return nil, fmt.Errorf("%w: %s reaches %d nodes at depth %d",
				ErrAmbiguousAncestry, r.g.nodes[i], len(cols), depth)
		}
	}
	return mapping, nil
}

// MapToAncestor is a one-off query; use a Resolver for repeated lags.
func MapToAncestor(g *Genealogy, depth int) (map[NodeID]NodeID, error) {
	return NewResolver(g).MapToAncestor(depth)
}

// #endregion map-to-ancestor
