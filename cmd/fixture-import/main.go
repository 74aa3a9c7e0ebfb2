package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/fixture"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the archive database (created if missing)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	flag.Parse()

	if *dbPath == "" || *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-import --db path/to/lineage.db --fixture path/to/fixture.json")
		os.Exit(2)
	}

	f, err := fixture.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	store, err := archive.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	n, err := f.Import(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "imported %d iterations from %s into %s\n", n, *fixturePath, *dbPath)
}

// #endregion main
