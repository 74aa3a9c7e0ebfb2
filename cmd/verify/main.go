package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/fixture"
	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON with expected mappings")
	dbPath := flag.String("db", "", "verify an archive instead of the fixture's own iterations")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: verify --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       verify --fixture path/to/fixture.json --db path/to/lineage.db")
		os.Exit(2)
	}

	f, err := fixture.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var mismatches []fixture.Mismatch
	if *dbPath != "" {
		mismatches, err = verifyArchive(*dbPath, f)
	} else {
		mismatches, err = fixture.Verify(f)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(report(f, mismatches))
}

// #endregion main

// #region db-mode

// verifyArchive builds the genealogy from a stored archive and checks the
// fixture's expected mappings against it.
func verifyArchive(dbPath string, f *fixture.Fixture) ([]fixture.Mismatch, error) {
	store, err := archive.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	n := f.IterationCount()
	if n == 0 {
		if n, err = store.CurrentIteration(); err != nil {
			return nil, err
		}
	}
	g, err := lineage.Build(n, store.Segments, store.InitialStates)
	if err != nil {
		return nil, err
	}
	return fixture.Compare(lineage.NewResolver(g), f.Expected)
}

// #endregion db-mode

// #region report

func report(f *fixture.Fixture, mismatches []fixture.Mismatch) int {
	if len(mismatches) == 0 {
		fmt.Printf("PASS %s (%d lags checked)\n", f.Description, len(f.Expected))
		return 0
	}
	fmt.Printf("FAIL %s\n", f.Description)
	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	return 1
}

// #endregion report
