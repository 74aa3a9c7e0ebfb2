package lineage

import "fmt"

// #region build
// Build assembles the genealogy of iterations 1..iterationCount. Each segment's
// parent id is decoded once into a ParentRef; segment parents resolve against
// the previous iteration's list, initial-state parents against the states
// listed for the segment's own iteration. Only the previous iteration's
// segments are kept between iterations.
//
// An unresolvable parent aborts the build with a *MalformedLineageError and no
// graph is returned.
func Build(iterationCount int, segments SegmentSource, states InitialStateSource) (*Genealogy, error) {
	if iterationCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIterationCount, iterationCount)
	}

	g := newGenealogy(iterationCount)
	var previous []int

	for n := 1; n <= iterationCount; n++ {
		segs, err := segments(n)
		if err != nil {
			return nil, fmt.Errorf("read segments for iteration %d: %w", n, err)
		}
		seeds, err := states(n)
		if err != nil {
			return nil, fmt.Errorf("read initial states for iteration %d: %w", n, err)
		}

		known := make(map[int64]struct{}, len(seeds))
		for _, s := range seeds {
			known[s.StateID] = struct{}{}
		}

		current := make([]int, len(segs))
		for i, seg := range segs {
			child := g.addNode(SegmentID(n, int64(i)))

			parent, err := resolveParent(g, n, i, seg.ParentID, previous, known)
			if err != nil {
				return nil, err
			}
			g.setParent(child, parent)
			current[i] = child
		}
		previous = current
	}

	g.freeze()
	return g, nil
}

// #endregion build

// #region resolve-parent
func resolveParent(g *Genealogy, n, i int, parentID int64, previous []int, known map[int64]struct{}) (int, error) {
	ref := DecodeParent(parentID)
	switch ref.Kind {
	case ParentSegment:
		if ref.ID >= int64(len(previous)) {
			return 0, &MalformedLineageError{
				Iteration:    n,
				SegmentIndex: i,
				ParentID:     parentID,
				Reason:       fmt.Sprintf("segment index %d out of range, iteration %d has %d segments", ref.ID, n-1, len(previous)),
			}
		}
		return previous[ref.ID], nil
	case ParentInitialState:
		if _, ok := known[ref.ID]; !ok {
			return 0, &MalformedLineageError{
				Iteration:    n,
				SegmentIndex: i,
				ParentID:     parentID,
				Reason:       fmt.Sprintf("initial state %d not listed for iteration %d", ref.ID, n),
			}
		}
		return g.addNode(InitialStateID(n, ref.ID)), nil
	}
	return 0, fmt.Errorf("unknown parent kind %s", ref.Kind)
}

// #endregion resolve-parent
