// Package lineage reconstructs the genealogy of weighted-ensemble segments and
// resolves each segment's ancestor a fixed number of iterations back.
//
// A Genealogy is built once per archive by Build and is read-only afterwards;
// any number of goroutines may query it concurrently.
package lineage

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/we-lineage/internal/sparse"
	bsparse "github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// #region types
// Edge links a segment to its immediate parent.
type Edge struct {
	Child  NodeID
	Parent NodeID
}

// Genealogy is a directed graph from every segment to its parent. Nodes carry
// a stable enumeration (insertion order) used for matrix rows and columns.
type Genealogy struct {
	iterations int
	nodes      []NodeID
	index      map[NodeID]int
	parent     []int // -1 for terminal nodes
	children   [][]int
	edges      int
}

// #endregion types

// #region construction
func newGenealogy(iterations int) *Genealogy {
	return &Genealogy{
		iterations: iterations,
		index:      make(map[NodeID]int),
	}
}

// Empty returns a genealogy with no iterations and no nodes; every ancestor
// query against it yields an empty mapping.
func Empty() *Genealogy {
	g := newGenealogy(0)
	g.freeze()
	return g
}

// addNode returns the index of id, inserting it when absent.
func (g *Genealogy) addNode(id NodeID) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.parent = append(g.parent, -1)
	g.index[id] = i
	return i
}

func (g *Genealogy) setParent(child, parent int) {
	if g.parent[child] < 0 {
		g.edges++
	}
	g.parent[child] = parent
}

// freeze derives the reverse adjacency once all edges are known.
func (g *Genealogy) freeze() {
	g.children = make([][]int, len(g.nodes))
	for c, p := range g.parent {
		if p >= 0 {
			g.children[p] = append(g.children[p], c)
		}
	}
}

// #endregion construction

// #region accessors
// Iterations returns the number of iterations the graph was built from.
func (g *Genealogy) Iterations() int { return g.iterations }

// Len returns the number of nodes.
func (g *Genealogy) Len() int { return len(g.nodes) }

// EdgeCount returns the number of child -> parent edges.
func (g *Genealogy) EdgeCount() int { return g.edges }

// Nodes returns the node enumeration. Position i is node index i.
func (g *Genealogy) Nodes() []NodeID { return slices.Clone(g.nodes) }

// Node returns the id at enumeration index i.
func (g *Genealogy) Node(i int) NodeID { return g.nodes[i] }

// Index returns the enumeration index of id.
func (g *Genealogy) Index(id NodeID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Has reports whether id is a node of the graph.
func (g *Genealogy) Has(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// Parent returns the immediate parent of id. The boolean is false for terminal
// nodes and for ids not in the graph.
func (g *Genealogy) Parent(id NodeID) (NodeID, bool) {
	i, ok := g.index[id]
	if !ok || g.parent[i] < 0 {
		return NodeID{}, false
	}
	return g.nodes[g.parent[i]], true
}

// OutDegree returns 1 for nodes with a parent and 0 otherwise.
func (g *Genealogy) OutDegree(id NodeID) int {
	if _, ok := g.Parent(id); ok {
		return 1
	}
	return 0
}

// Children returns the nodes whose parent is id, in enumeration order.
func (g *Genealogy) Children(id NodeID) ([]NodeID, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	out := make([]NodeID, 0, len(g.children[i]))
	for _, c := range g.children[i] {
		out = append(out, g.nodes[c])
	}
	return out, nil
}

// Edges returns every child -> parent edge in enumeration order of the child.
func (g *Genealogy) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for c, p := range g.parent {
		if p >= 0 {
			out = append(out, Edge{Child: g.nodes[c], Parent: g.nodes[p]})
		}
	}
	return out
}

// SegmentsAt re-derives the ordered segment list of iteration n from the graph.
// Only the previous iteration is retained while building, so this is the way
// to revisit an earlier iteration afterwards.
func (g *Genealogy) SegmentsAt(n int) []NodeID {
	var out []NodeID
	for _, id := range g.nodes {
		if id.Kind == KindSegment && id.Iteration == n {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, CompareNodeIDs)
	return out
}

// Records re-encodes iteration n as archive records: its segments in list
// order with raw parent ids, and the initial states seeding n that some
// segment references. States nothing referenced are not in the graph and are
// not returned.
func (g *Genealogy) Records(n int) ([]SegmentRecord, []InitialStateRecord, error) {
	ids := g.SegmentsAt(n)
	segs := make([]SegmentRecord, len(ids))
	for i, id := range ids {
		if id.Index != int64(i) {
			return nil, nil, fmt.Errorf("iteration %d: segment index %d at position %d", n, id.Index, i)
		}
		p, ok := g.Parent(id)
		if !ok {
			return nil, nil, fmt.Errorf("%s has no parent", id)
		}
		ref := ParentRef{Kind: ParentSegment, ID: p.Index}
		if p.Kind == KindInitialState {
			ref.Kind = ParentInitialState
		}
		segs[i] = SegmentRecord{ParentID: ref.Encode()}
	}

	var states []InitialStateRecord
	for _, id := range g.nodes {
		if id.Kind == KindInitialState && id.Iteration == n {
			states = append(states, InitialStateRecord{StateID: id.Index})
		}
	}
	slices.SortFunc(states, func(a, b InitialStateRecord) int { return cmp.Compare(a.StateID, b.StateID) })
	return segs, states, nil
}

// #endregion accessors

// #region adjacency
// adjacency returns the one-hop matrix A with A[i][j] set iff node j is the
// parent of node i.
func (g *Genealogy) adjacency() (*bsparse.CSR, error) {
	rows := make([][]int, len(g.nodes))
	for i, p := range g.parent {
		if p >= 0 {
			rows[i] = []int{p}
		}
	}
	return sparse.FromRows(len(g.nodes), len(g.nodes), rows)
}

// #endregion adjacency

// #region validate
// Validate checks the structural invariants: segments have exactly one
// parent, initial states have none, edges point one iteration back (or to an
// initial state seeding the same iteration), and the graph is acyclic.
func (g *Genealogy) Validate() error {
	dg := simple.NewDirectedGraph()
	for i := range g.nodes {
		dg.AddNode(simple.Node(i))
	}

	for i, id := range g.nodes {
		p := g.parent[i]
		switch id.Kind {
		case KindInitialState:
			if p >= 0 {
				return fmt.Errorf("%w: initial state %s has parent %s", ErrInvariantViolation, id, g.nodes[p])
			}
			continue
		case KindSegment:
			if p < 0 {
				return fmt.Errorf("%w: segment %s has no parent", ErrInvariantViolation, id)
			}
		}
		if p == i {
			return fmt.Errorf("%w: %s is its own parent", ErrInvariantViolation, id)
		}

		parent := g.nodes[p]
		switch {
		case parent.Kind == KindSegment && parent.Iteration != id.Iteration-1:
			return fmt.Errorf("%w: %s points to non-adjacent iteration %s", ErrInvariantViolation, id, parent)
		case parent.Kind == KindInitialState && parent.Iteration != id.Iteration:
			return fmt.Errorf("%w: %s points to initial state %s of another iteration", ErrInvariantViolation, id, parent)
		}
		dg.SetEdge(dg.NewEdge(simple.Node(i), simple.Node(p)))
	}

	if _, err := topo.Sort(dg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return nil
}

// #endregion validate
