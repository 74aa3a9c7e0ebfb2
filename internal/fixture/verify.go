package fixture

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region mismatch
// Mismatch is one disagreement between a fixture's expectations and the
// computed genealogy. Lag is 0 for graph-level checks.
type Mismatch struct {
	Lag  int
	Key  string
	Want string
	Got  string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("lag %d %s: want %s, got %s", m.Lag, m.Key, m.Want, m.Got)
}

const absent = "<none>"

// #endregion mismatch

// #region verify
// Verify builds the fixture's genealogy and compares it against the expected
// build error, graph size and per-lag mappings. The error return is reserved
// for fixtures that cannot be evaluated at all.
func Verify(f *Fixture) ([]Mismatch, error) {
	segments, states := f.Source()
	g, err := lineage.Build(f.IterationCount(), segments, states)

	if f.BuildError != "" {
		ok, nameErr := matchesErrorName(err, f.BuildError)
		if nameErr != nil {
			return nil, nameErr
		}
		if !ok {
			return []Mismatch{{Key: "build", Want: f.BuildError, Got: errString(err)}}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var out []Mismatch
	if f.Graph != nil {
		if g.Len() != f.Graph.Nodes {
			out = append(out, Mismatch{Key: "nodes", Want: strconv.Itoa(f.Graph.Nodes), Got: strconv.Itoa(g.Len())})
		}
		if g.EdgeCount() != f.Graph.Edges {
			out = append(out, Mismatch{Key: "edges", Want: strconv.Itoa(f.Graph.Edges), Got: strconv.Itoa(g.EdgeCount())})
		}
	}
	more, err := Compare(lineage.NewResolver(g), f.Expected)
	if err != nil {
		return nil, err
	}
	return append(out, more...), nil
}

// Compare resolves each expected lag with r and reports every child whose
// ancestor differs, is missing, or is unexpected.
func Compare(r *lineage.Resolver, expected []FixtureExpected) ([]Mismatch, error) {
	var out []Mismatch
	for _, exp := range expected {
		got, err := r.MapToAncestor(exp.Lag)
		if exp.Error != "" {
			ok, nameErr := matchesErrorName(err, exp.Error)
			if nameErr != nil {
				return nil, nameErr
			}
			if !ok {
				out = append(out, Mismatch{Lag: exp.Lag, Key: "error", Want: exp.Error, Got: errString(err)})
			}
			continue
		}
		if err != nil {
			out = append(out, Mismatch{Lag: exp.Lag, Key: "error", Want: absent, Got: err.Error()})
			continue
		}

		want := make(map[lineage.NodeID]lineage.NodeID, len(exp.Mappings))
		for c, a := range exp.Mappings {
			child, err := lineage.ParseNodeID(c)
			if err != nil {
				return nil, fmt.Errorf("lag %d: %w", exp.Lag, err)
			}
			anc, err := lineage.ParseNodeID(a)
			if err != nil {
				return nil, fmt.Errorf("lag %d: %w", exp.Lag, err)
			}
			want[child] = anc
		}
		out = append(out, diff(exp.Lag, want, got)...)
	}
	return out, nil
}

// #endregion verify

// #region helpers
func diff(lag int, want, got map[lineage.NodeID]lineage.NodeID) []Mismatch {
	keys := make([]lineage.NodeID, 0, len(want)+len(got))
	for k := range want {
		keys = append(keys, k)
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, lineage.CompareNodeIDs)

	var out []Mismatch
	for _, k := range keys {
		w, wok := want[k]
		a, gok := got[k]
		if wok && gok && w == a {
			continue
		}
		m := Mismatch{Lag: lag, Key: k.String(), Want: absent, Got: absent}
		if wok {
			m.Want = w.String()
		}
		if gok {
			m.Got = a.String()
		}
		out = append(out, m)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return absent
	}
	return err.Error()
}

// #endregion helpers
