// Package fixture loads JSON lineage fixtures: per-iteration records plus the
// genealogy shape and ancestor mappings they are expected to produce.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region fixture-types

// Fixture is the top-level JSON structure of a lineage fixture.
type Fixture struct {
	Description string             `json:"description"`
	Iterations  []FixtureIteration `json:"iterations"`

	// IterationCountOverride overrides the highest listed iteration when set.
	IterationCountOverride int `json:"iteration_count,omitempty"`

	BuildError string            `json:"build_error,omitempty"`
	Graph      *FixtureGraph     `json:"graph,omitempty"`
	Expected   []FixtureExpected `json:"expected"`
}

// FixtureIteration holds one iteration's records. Segment indices are list positions.
type FixtureIteration struct {
	Iteration     int                   `json:"iteration"`
	Segments      []FixtureSegment      `json:"segments"`
	InitialStates []FixtureInitialState `json:"initial_states"`
}

// FixtureSegment mirrors lineage.SegmentRecord with JSON tags.
type FixtureSegment struct {
	ParentID int64 `json:"parent_id"`
}

// FixtureInitialState mirrors lineage.InitialStateRecord with JSON tags.
type FixtureInitialState struct {
	StateID int64 `json:"state_id"`
}

// FixtureGraph is the expected genealogy size.
type FixtureGraph struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// FixtureExpected is the expected mapping for one lag, keyed by node id
// strings such as "segment/3/0". Error names an expected failure instead.
type FixtureExpected struct {
	Lag      int               `json:"lag"`
	Mappings map[string]string `json:"mappings"`
	Error    string            `json:"error,omitempty"`
}

// #endregion fixture-types

// #region error-names
var errorNames = map[string]error{
	"malformed_lineage":       lineage.ErrMalformedLineage,
	"invalid_lag":             lineage.ErrInvalidLag,
	"invalid_iteration_count": lineage.ErrInvalidIterationCount,
	"ambiguous_ancestry":      lineage.ErrAmbiguousAncestry,
}

func matchesErrorName(err error, name string) (bool, error) {
	target, ok := errorNames[name]
	if !ok {
		return false, fmt.Errorf("unknown error name %q", name)
	}
	return errors.Is(err, target), nil
}

// #endregion error-names

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixture) check() error {
	seen := make(map[int]bool, len(f.Iterations))
	for _, it := range f.Iterations {
		if it.Iteration < 1 {
			return fmt.Errorf("iteration numbers start at 1, got %d", it.Iteration)
		}
		if seen[it.Iteration] {
			return fmt.Errorf("iteration %d listed twice", it.Iteration)
		}
		seen[it.Iteration] = true
	}
	if f.BuildError != "" {
		if _, ok := errorNames[f.BuildError]; !ok {
			return fmt.Errorf("unknown build_error %q", f.BuildError)
		}
	}
	for _, e := range f.Expected {
		if e.Error != "" {
			if _, ok := errorNames[e.Error]; !ok {
				return fmt.Errorf("lag %d: unknown error %q", e.Lag, e.Error)
			}
		}
	}
	return nil
}

// IterationCount returns the explicit iteration_count, or the highest listed
// iteration when it is unset.
func (f *Fixture) IterationCount() int {
	if f.IterationCountOverride > 0 {
		return f.IterationCountOverride
	}
	n := 0
	for _, it := range f.Iterations {
		n = max(n, it.Iteration)
	}
	return n
}

// Source returns in-memory builder sources over the fixture's iterations.
// Iterations the fixture does not list read as empty.
func (f *Fixture) Source() (lineage.SegmentSource, lineage.InitialStateSource) {
	byIter := make(map[int]FixtureIteration, len(f.Iterations))
	for _, it := range f.Iterations {
		byIter[it.Iteration] = it
	}
	segments := func(n int) ([]lineage.SegmentRecord, error) {
		return byIter[n].segmentRecords(), nil
	}
	states := func(n int) ([]lineage.InitialStateRecord, error) {
		return byIter[n].stateRecords(), nil
	}
	return segments, states
}

func (it FixtureIteration) segmentRecords() []lineage.SegmentRecord {
	out := make([]lineage.SegmentRecord, len(it.Segments))
	for i, s := range it.Segments {
		out[i] = lineage.SegmentRecord{ParentID: s.ParentID}
	}
	return out
}

func (it FixtureIteration) stateRecords() []lineage.InitialStateRecord {
	out := make([]lineage.InitialStateRecord, len(it.InitialStates))
	for i, s := range it.InitialStates {
		out[i] = lineage.InitialStateRecord{StateID: s.StateID}
	}
	return out
}

// #endregion fixture-loader

// #region import

// IterationWriter is satisfied by archive.Store.
type IterationWriter interface {
	PutIteration(n int, segs []lineage.SegmentRecord, states []lineage.InitialStateRecord) error
}

// Import writes every fixture iteration to w in ascending order and returns
// how many were written.
func (f *Fixture) Import(w IterationWriter) (int, error) {
	its := slices.Clone(f.Iterations)
	slices.SortFunc(its, func(a, b FixtureIteration) int { return a.Iteration - b.Iteration })
	for _, it := range its {
		if err := w.PutIteration(it.Iteration, it.segmentRecords(), it.stateRecords()); err != nil {
			return 0, fmt.Errorf("import iteration %d: %w", it.Iteration, err)
		}
	}
	return len(its), nil
}

// #endregion import

// #region capture

// Capture writes g and the resolved mappings out as a fixture whose Verify
// reports no mismatches. Lags are emitted in ascending order.
func Capture(description string, g *lineage.Genealogy, mappings map[int]map[lineage.NodeID]lineage.NodeID) (*Fixture, error) {
	if g.Iterations() < 1 {
		return nil, fmt.Errorf("capture: %w: genealogy has no iterations", lineage.ErrInvalidIterationCount)
	}
	f := &Fixture{
		Description:            description,
		IterationCountOverride: g.Iterations(),
		Graph:                  &FixtureGraph{Nodes: g.Len(), Edges: g.EdgeCount()},
	}
	for n := 1; n <= g.Iterations(); n++ {
		segs, states, err := g.Records(n)
		if err != nil {
			return nil, fmt.Errorf("capture iteration %d: %w", n, err)
		}
		it := FixtureIteration{
			Iteration:     n,
			Segments:      make([]FixtureSegment, len(segs)),
			InitialStates: make([]FixtureInitialState, len(states)),
		}
		for i, s := range segs {
			it.Segments[i] = FixtureSegment{ParentID: s.ParentID}
		}
		for i, s := range states {
			it.InitialStates[i] = FixtureInitialState{StateID: s.StateID}
		}
		f.Iterations = append(f.Iterations, it)
	}

	lags := make([]int, 0, len(mappings))
	for lag := range mappings {
		lags = append(lags, lag)
	}
	slices.Sort(lags)
	for _, lag := range lags {
		exp := FixtureExpected{Lag: lag, Mappings: make(map[string]string, len(mappings[lag]))}
		for c, a := range mappings[lag] {
			exp.Mappings[c.String()] = a.String()
		}
		f.Expected = append(f.Expected, exp)
	}
	return f, nil
}

// Save writes f as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion capture
