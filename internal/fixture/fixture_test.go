package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region fixture-tests

// TestFixtures runs every testdata fixture through Verify. Any drift in the
// builder or resolver shows up as a mismatch here.
func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures found")
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			f, err := LoadFixture(path)
			if err != nil {
				t.Fatalf("LoadFixture: %v", err)
			}
			mismatches, err := Verify(f)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			for _, m := range mismatches {
				t.Errorf("%s", m)
			}
		})
	}
}

func TestVerifyReportsDrift(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "two_walkers.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Graph.Nodes = 8
	f.Expected = []FixtureExpected{
		{Lag: 3, Mappings: map[string]string{
			"segment/3/0": "initial_state/1/1",
			"segment/2/0": "initial_state/1/0",
		}},
		{Lag: 1, Error: "invalid_lag"},
	}

	mismatches, err := Verify(f)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(mismatches) != 4 {
		t.Fatalf("expected 4 mismatches, got %d: %v", len(mismatches), mismatches)
	}
	if mismatches[0].Key != "nodes" {
		t.Errorf("expected graph mismatch first, got %s", mismatches[0])
	}
	// ordered by iteration: segment/2/0 is not mapped at lag 3, segment/3/0 maps elsewhere
	if mismatches[1].Key != "segment/2/0" || mismatches[1].Got != absent {
		t.Errorf("unexpected mismatch: %s", mismatches[1])
	}
	if mismatches[2].Key != "segment/3/0" || mismatches[2].Got != "initial_state/1/0" {
		t.Errorf("unexpected mismatch: %s", mismatches[2])
	}
	if mismatches[3].Lag != 1 || mismatches[3].Key != "error" {
		t.Errorf("unexpected mismatch: %s", mismatches[3])
	}
}

func TestVerifyExpectedBuildErrorMissing(t *testing.T) {
	f, _ := LoadFixture(filepath.Join("testdata", "two_walkers.json"))
	f.BuildError = "malformed_lineage"
	mismatches, err := Verify(f)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(mismatches) != 1 || mismatches[0].Key != "build" {
		t.Fatalf("expected one build mismatch, got %v", mismatches)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadFixture_Malformed(t *testing.T) {
	cases := map[string]string{
		"bad json":          "{not valid json}",
		"duplicate":         `{"iterations":[{"iteration":1},{"iteration":1}]}`,
		"iteration zero":    `{"iterations":[{"iteration":0}]}`,
		"unknown error":     `{"iterations":[],"build_error":"kaboom"}`,
		"unknown lag error": `{"iterations":[],"expected":[{"lag":1,"error":"nope"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.json")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatalf("write temp file: %v", err)
			}
			if _, err := LoadFixture(path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

// #endregion fixture-tests

// #region source-tests
func TestIterationCount(t *testing.T) {
	f := &Fixture{Iterations: []FixtureIteration{{Iteration: 3}, {Iteration: 1}}}
	if got := f.IterationCount(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	f.IterationCountOverride = 5
	if got := f.IterationCount(); got != 5 {
		t.Errorf("expected explicit 5, got %d", got)
	}
}

func TestSourceFillsGaps(t *testing.T) {
	f := &Fixture{Iterations: []FixtureIteration{
		{Iteration: 2, Segments: []FixtureSegment{{ParentID: -1}}, InitialStates: []FixtureInitialState{{StateID: 0}}},
	}}
	segments, states := f.Source()
	if got, _ := segments(1); len(got) != 0 {
		t.Errorf("unlisted iteration should be empty, got %v", got)
	}
	got, _ := segments(2)
	if len(got) != 1 || got[0].ParentID != -1 {
		t.Errorf("unexpected segments: %v", got)
	}
	st, _ := states(2)
	if len(st) != 1 || st[0].StateID != 0 {
		t.Errorf("unexpected states: %v", st)
	}
}

// #endregion source-tests

// #region import-tests
func TestImportThenBuild(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "branching.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	store, err := archive.NewStore(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	n, err := f.Import(store)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 iterations imported, got %d", n)
	}

	current, _ := store.CurrentIteration()
	g, err := lineage.Build(current, store.Segments, store.InitialStates)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mismatches, err := Compare(lineage.NewResolver(g), f.Expected)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	for _, m := range mismatches {
		t.Errorf("%s", m)
	}
}

// #endregion import-tests

// #region capture-tests
func TestCaptureVerifies(t *testing.T) {
	src, err := LoadFixture(filepath.Join("testdata", "branching.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	segments, states := src.Source()
	g, err := lineage.Build(src.IterationCount(), segments, states)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := lineage.NewResolver(g)
	mappings := make(map[int]map[lineage.NodeID]lineage.NodeID)
	for _, lag := range []int{1, 2, 3} {
		if mappings[lag], err = r.MapToAncestor(lag); err != nil {
			t.Fatalf("MapToAncestor(%d): %v", lag, err)
		}
	}

	f, err := Capture("captured", g, mappings)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "captured.json")
	if err := f.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(loaded.Expected) != 3 || loaded.Expected[0].Lag != 1 {
		t.Fatalf("unexpected expectations: %+v", loaded.Expected)
	}
	mismatches, err := Verify(loaded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, m := range mismatches {
		t.Errorf("%s", m)
	}
}

func TestCaptureEmpty(t *testing.T) {
	if _, err := Capture("empty", lineage.Empty(), nil); !errors.Is(err, lineage.ErrInvalidIterationCount) {
		t.Fatalf("expected ErrInvalidIterationCount, got %v", err)
	}
}

// #endregion capture-tests
