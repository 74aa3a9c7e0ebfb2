package lineage

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memArchive is an in-memory segment/initial-state source keyed by iteration.
type memArchive struct {
	segments map[int][]SegmentRecord
	states   map[int][]InitialStateRecord
}

func newMemArchive() *memArchive {
	return &memArchive{
		segments: make(map[int][]SegmentRecord),
		states:   make(map[int][]InitialStateRecord),
	}
}

func (a *memArchive) put(n int, parentIDs []int64, stateIDs ...int64) {
	for _, p := range parentIDs {
		a.segments[n] = append(a.segments[n], SegmentRecord{ParentID: p})
	}
	for _, s := range stateIDs {
		a.states[n] = append(a.states[n], InitialStateRecord{StateID: s})
	}
}

func (a *memArchive) Segments(n int) ([]SegmentRecord, error) { return a.segments[n], nil }

func (a *memArchive) InitialStates(n int) ([]InitialStateRecord, error) { return a.states[n], nil }

func (a *memArchive) build(t *testing.T, iterations int) *Genealogy {
	t.Helper()
	g, err := Build(iterations, a.Segments, a.InitialStates)
	require.NoError(t, err)
	return g
}

// twoWalkers: two fresh starts, two resampled children, one grandchild.
func twoWalkers() *memArchive {
	a := newMemArchive()
	a.put(1, []int64{-1, -2}, 0, 1)
	a.put(2, []int64{0, 1})
	a.put(3, []int64{0})
	return a
}

// naiveAncestor walks parent edges one at a time.
func naiveAncestor(g *Genealogy, id NodeID, depth int) (NodeID, bool) {
	cur := id
	for i := 0; i < depth; i++ {
		p, ok := g.Parent(cur)
		if !ok {
			return NodeID{}, false
		}
		cur = p
	}
	return cur, true
}

// #region test-decode
func TestDecodeParent(t *testing.T) {
	require.Equal(t, ParentRef{Kind: ParentSegment, ID: 3}, DecodeParent(3))
	require.Equal(t, ParentRef{Kind: ParentSegment, ID: 0}, DecodeParent(0))
	require.Equal(t, ParentRef{Kind: ParentInitialState, ID: 1}, DecodeParent(-2))
	require.Equal(t, ParentRef{Kind: ParentInitialState, ID: 0}, DecodeParent(-1))

	for raw := int64(-50); raw <= 50; raw++ {
		require.Equal(t, raw, DecodeParent(raw).Encode(), "raw=%d", raw)
	}
}

func TestParentDecodingAgainstGraph(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-1, -1, -1, -1}, 0)
	a.put(2, []int64{3, -2}, 1)
	g := a.build(t, 2)

	p, ok := g.Parent(SegmentID(2, 0))
	require.True(t, ok)
	require.Equal(t, SegmentID(1, 3), p)

	p, ok = g.Parent(SegmentID(2, 1))
	require.True(t, ok)
	require.Equal(t, InitialStateID(2, 1), p)
}

func TestNodeIDRoundTrip(t *testing.T) {
	for _, id := range []NodeID{SegmentID(3, 0), InitialStateID(1, 42), SegmentID(0, 7)} {
		parsed, err := ParseNodeID(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	}
	require.Equal(t, "segment/3/0", SegmentID(3, 0).String())
	require.Equal(t, "initial_state/1/4", InitialStateID(1, 4).String())

	for _, bad := range []string{"", "segment/1", "tree/1/2", "segment/x/2", "segment/1/y"} {
		_, err := ParseNodeID(bad)
		require.Error(t, err, bad)
	}
}

func TestCompareNodeIDs(t *testing.T) {
	ids := []NodeID{SegmentID(2, 1), InitialStateID(1, 0), SegmentID(1, 3), SegmentID(2, 0), SegmentID(1, 1)}
	slices.SortFunc(ids, CompareNodeIDs)
	require.Equal(t, []NodeID{SegmentID(1, 1), SegmentID(1, 3), InitialStateID(1, 0), SegmentID(2, 0), SegmentID(2, 1)}, ids)
	require.Zero(t, CompareNodeIDs(SegmentID(4, 2), SegmentID(4, 2)))
}

// #endregion test-decode

// #region test-build
func TestBuild_TwoWalkers(t *testing.T) {
	g := twoWalkers().build(t, 3)

	require.Equal(t, 7, g.Len())
	require.Equal(t, 5, g.EdgeCount())
	require.Equal(t, 3, g.Iterations())
	require.NoError(t, g.Validate())

	want := map[NodeID]NodeID{
		SegmentID(1, 0): InitialStateID(1, 0),
		SegmentID(1, 1): InitialStateID(1, 1),
		SegmentID(2, 0): SegmentID(1, 0),
		SegmentID(2, 1): SegmentID(1, 1),
		SegmentID(3, 0): SegmentID(2, 0),
	}
	got := make(map[NodeID]NodeID)
	for _, e := range g.Edges() {
		got[e.Child] = e.Parent
	}
	require.Equal(t, want, got)

	// child is enumerated before a newly seen parent
	require.Equal(t, []NodeID{
		SegmentID(1, 0), InitialStateID(1, 0),
		SegmentID(1, 1), InitialStateID(1, 1),
		SegmentID(2, 0), SegmentID(2, 1),
		SegmentID(3, 0),
	}, g.Nodes())
}

func TestBuild_OutDegree(t *testing.T) {
	g := twoWalkers().build(t, 3)
	for _, id := range g.Nodes() {
		switch id.Kind {
		case KindSegment:
			require.Equal(t, 1, g.OutDegree(id), id.String())
		case KindInitialState:
			require.Equal(t, 0, g.OutDegree(id), id.String())
		}
	}
	require.Equal(t, 0, g.OutDegree(SegmentID(9, 9)))
}

func TestBuild_FanOut(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-1}, 0)
	a.put(2, []int64{0, 0, 0})
	a.put(3, []int64{2, 2, -1}, 0)
	g := a.build(t, 3)
	require.NoError(t, g.Validate())

	kids, err := g.Children(SegmentID(1, 0))
	require.NoError(t, err)
	require.Equal(t, []NodeID{SegmentID(2, 0), SegmentID(2, 1), SegmentID(2, 2)}, kids)

	kids, err = g.Children(SegmentID(2, 2))
	require.NoError(t, err)
	require.Len(t, kids, 2)

	// initial states are keyed per iteration they seed
	require.True(t, g.Has(InitialStateID(1, 0)))
	require.True(t, g.Has(InitialStateID(3, 0)))

	_, err = g.Children(SegmentID(5, 0))
	require.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestBuild_UnreferencedInitialStatesAreNotNodes(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-1}, 0, 1, 2)
	g := a.build(t, 1)
	require.Equal(t, 2, g.Len())
	require.False(t, g.Has(InitialStateID(1, 2)))
}

func TestBuild_SegmentIndexOutOfRange(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-1, -1, -1}, 0)
	a.put(2, []int64{0, 5})

	g, err := Build(2, a.Segments, a.InitialStates)
	require.Nil(t, g)
	require.True(t, errors.Is(err, ErrMalformedLineage))

	var mle *MalformedLineageError
	require.True(t, errors.As(err, &mle))
	require.Equal(t, 2, mle.Iteration)
	require.Equal(t, 1, mle.SegmentIndex)
	require.Equal(t, int64(5), mle.ParentID)
}

func TestBuild_UnknownInitialState(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-1, -3}, 0, 1)

	_, err := Build(1, a.Segments, a.InitialStates)
	var mle *MalformedLineageError
	require.True(t, errors.As(err, &mle))
	require.Equal(t, int64(-3), mle.ParentID)
	require.Contains(t, mle.Error(), "initial state 2")
}

func TestBuild_FirstIterationCannotReferenceSegments(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{0})
	_, err := Build(1, a.Segments, a.InitialStates)
	require.True(t, errors.Is(err, ErrMalformedLineage))
}

func TestBuild_InvalidIterationCount(t *testing.T) {
	a := newMemArchive()
	_, err := Build(0, a.Segments, a.InitialStates)
	require.True(t, errors.Is(err, ErrInvalidIterationCount))
}

func TestBuild_SourceError(t *testing.T) {
	boom := errors.New("archive unavailable")
	a := twoWalkers()

	_, err := Build(3, func(n int) ([]SegmentRecord, error) {
		if n == 2 {
			return nil, boom
		}
		return a.Segments(n)
	}, a.InitialStates)
	require.True(t, errors.Is(err, boom))

	_, err = Build(3, a.Segments, func(int) ([]InitialStateRecord, error) { return nil, boom })
	require.True(t, errors.Is(err, boom))
}

func TestBuild_EmptySimulation(t *testing.T) {
	g := newMemArchive().build(t, 1)
	require.Zero(t, g.Len())
	require.Zero(t, g.EdgeCount())
	require.NoError(t, g.Validate())

	for depth := 1; depth <= 4; depth++ {
		m, err := MapToAncestor(g, depth)
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Empty(t, m)
	}
}

func TestEmpty(t *testing.T) {
	g := Empty()
	require.Zero(t, g.Iterations())
	require.Zero(t, g.Len())
	require.NoError(t, g.Validate())
	require.Empty(t, g.Edges())

	m, err := NewResolver(g).MapToAncestor(2)
	require.NoError(t, err)
	require.Empty(t, m)
}

func TestRecords_ReencodesArchive(t *testing.T) {
	a := newMemArchive()
	a.put(1, []int64{-2, -1, -2}, 0, 1, 7)
	a.put(2, []int64{2, 0, -4}, 3)
	a.put(3, []int64{1, 1})
	g := a.build(t, 3)

	for n := 1; n <= 3; n++ {
		segs, _, err := g.Records(n)
		require.NoError(t, err)
		require.Equal(t, a.segments[n], segs, "iteration %d", n)
	}

	// state 7 is never referenced, so it is not part of the graph
	_, states, err := g.Records(1)
	require.NoError(t, err)
	require.Equal(t, []InitialStateRecord{{StateID: 0}, {StateID: 1}}, states)

	rebuilt, err := Build(3, func(n int) ([]SegmentRecord, error) {
		segs, _, err := g.Records(n)
		return segs, err
	}, func(n int) ([]InitialStateRecord, error) {
		_, states, err := g.Records(n)
		return states, err
	})
	require.NoError(t, err)
	require.Equal(t, g.Edges(), rebuilt.Edges())
}

func TestSegmentsAt(t *testing.T) {
	g := twoWalkers().build(t, 3)
	require.Equal(t, []NodeID{SegmentID(2, 0), SegmentID(2, 1)}, g.SegmentsAt(2))
	require.Equal(t, []NodeID{SegmentID(3, 0)}, g.SegmentsAt(3))
	require.Empty(t, g.SegmentsAt(4))
}

// #endregion test-build

// #region test-validate
func TestValidate_RejectsBrokenGraphs(t *testing.T) {
	orphan := newGenealogy(1)
	orphan.addNode(SegmentID(1, 0))
	require.True(t, errors.Is(orphan.Validate(), ErrInvariantViolation))

	skip := newGenealogy(3)
	c := skip.addNode(SegmentID(3, 0))
	p := skip.addNode(SegmentID(1, 0))
	s := skip.addNode(InitialStateID(1, 0))
	skip.setParent(c, p)
	skip.setParent(p, s)
	require.True(t, errors.Is(skip.Validate(), ErrInvariantViolation))

	seeded := newGenealogy(2)
	s = seeded.addNode(InitialStateID(1, 0))
	p = seeded.addNode(SegmentID(1, 0))
	seeded.setParent(s, p)
	require.True(t, errors.Is(seeded.Validate(), ErrInvariantViolation))
}

// #endregion test-validate

// #region test-resolver
func TestMapToAncestor_LagOneMatchesEdges(t *testing.T) {
	g := twoWalkers().build(t, 3)
	m, err := MapToAncestor(g, 1)
	require.NoError(t, err)

	require.Len(t, m, g.EdgeCount())
	for _, e := range g.Edges() {
		require.Equal(t, e.Parent, m[e.Child], e.Child.String())
	}
}

func TestMapToAncestor_TwoWalkers(t *testing.T) {
	g := twoWalkers().build(t, 3)

	m2, err := MapToAncestor(g, 2)
	require.NoError(t, err)
	require.Equal(t, map[NodeID]NodeID{
		SegmentID(2, 0): InitialStateID(1, 0),
		SegmentID(2, 1): InitialStateID(1, 1),
		SegmentID(3, 0): SegmentID(1, 0),
	}, m2)

	m3, err := MapToAncestor(g, 3)
	require.NoError(t, err)
	require.Equal(t, map[NodeID]NodeID{SegmentID(3, 0): InitialStateID(1, 0)}, m3)

	m4, err := MapToAncestor(g, 4)
	require.NoError(t, err)
	require.Empty(t, m4)
}

func TestMapToAncestor_InvalidLag(t *testing.T) {
	g := twoWalkers().build(t, 3)
	for _, depth := range []int{0, -1} {
		m, err := MapToAncestor(g, depth)
		require.Nil(t, m)
		require.True(t, errors.Is(err, ErrInvalidLag))

		var lagErr *InvalidLagError
		require.True(t, errors.As(err, &lagErr))
		require.Equal(t, depth, lagErr.Depth)
	}
}

// randomArchive produces a genealogy with fresh starts mixed into resampling.
func randomArchive(seed uint64, iterations, width int) *memArchive {
	rng := rand.New(rand.NewSource(int64(seed ^ 0x9e3779b97f4a7c15)))
	a := newMemArchive()
	prev := 0
	for n := 1; n <= iterations; n++ {
		count := 1 + rng.Intn(width)
		var parents []int64
		var states []int64
		for i := 0; i < count; i++ {
			if prev == 0 || rng.Intn(5) == 0 {
				sid := int64(len(states))
				states = append(states, sid)
				parents = append(parents, -(sid + 1))
				continue
			}
			parents = append(parents, int64(rng.Intn(prev)))
		}
		a.put(n, parents, states...)
		prev = count
	}
	return a
}

func TestMapToAncestor_MatchesNaiveWalk(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			g := randomArchive(seed, 12, 6).build(t, 12)
			require.NoError(t, g.Validate())

			r := NewResolver(g)
			for depth := 1; depth <= 14; depth++ {
				m, err := r.MapToAncestor(depth)
				require.NoError(t, err)

				want := make(map[NodeID]NodeID)
				for _, id := range g.Nodes() {
					if anc, ok := naiveAncestor(g, id, depth); ok {
						want[id] = anc
					}
				}
				require.Equal(t, want, m, "depth=%d", depth)
			}
		})
	}
}

func TestMapToAncestor_DomainShrinks(t *testing.T) {
	g := randomArchive(42, 10, 5).build(t, 10)
	r := NewResolver(g)

	prev, err := r.MapToAncestor(1)
	require.NoError(t, err)
	for depth := 2; depth <= 11; depth++ {
		next, err := r.MapToAncestor(depth)
		require.NoError(t, err)
		for child, anc := range next {
			mid, ok := prev[child]
			require.True(t, ok, "%s at depth %d missing at depth %d", child, depth, depth-1)
			hop, ok := g.Parent(mid)
			require.True(t, ok)
			require.Equal(t, hop, anc)
		}
		require.LessOrEqual(t, len(next), len(prev))
		prev = next
	}
}

func TestResolver_ConcurrentQueries(t *testing.T) {
	g := randomArchive(7, 8, 4).build(t, 8)
	r := NewResolver(g)
	require.Same(t, g, r.Genealogy())

	want := make([]map[NodeID]NodeID, 9)
	for d := 1; d <= 8; d++ {
		m, err := MapToAncestor(g, d)
		require.NoError(t, err)
		want[d] = m
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for w := 0; w < 4; w++ {
		for d := 1; d <= 8; d++ {
			wg.Add(1)
			go func(d int) {
				defer wg.Done()
				m, err := r.MapToAncestor(d)
				if err != nil {
					errs <- err
					return
				}
				if len(m) != len(want[d]) {
					errs <- fmt.Errorf("depth %d: got %d entries, want %d", d, len(m), len(want[d]))
				}
			}(d)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// #endregion test-resolver
