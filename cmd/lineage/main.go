package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/config"
	"github.com/danielpatrickdp/we-lineage/internal/fixture"
	"github.com/danielpatrickdp/we-lineage/internal/lineage"
	"github.com/danielpatrickdp/we-lineage/internal/logging"
	"github.com/danielpatrickdp/we-lineage/internal/runner"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to lineage.yaml (optional)")
	dbPath := flag.String("db", "", "archive database (overrides config)")
	lags := flag.String("lags", "", "comma separated lags, e.g. 1,2,5 (overrides config)")
	iterations := flag.Int("iterations", -1, "iteration count; 0 uses every stored iteration (overrides config)")
	dryRun := flag.Bool("dry-run", false, "resolve without persisting edges or mappings")
	jsonOut := flag.Bool("json", false, "print mappings as JSON")
	capture := flag.String("capture", "", "also write the genealogy and mappings as a regression fixture to this path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *lags != "" {
		if cfg.Lags, err = config.ParseLags(*lags); err != nil {
			fmt.Fprintf(os.Stderr, "error: --lags: %v\n", err)
			os.Exit(2)
		}
	}
	if *iterations >= 0 {
		cfg.IterationCount = *iterations
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, *dryRun, *jsonOut, *capture); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run
func run(cfg config.Config, dryRun, jsonOut bool, capture string) error {
	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := archive.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	r, err := runner.New(store, logger)
	if err != nil {
		return err
	}
	res, err := r.Run(runner.Options{
		IterationCount: cfg.IterationCount,
		Lags:           cfg.Lags,
		DryRun:         dryRun,
	})
	if err != nil {
		return err
	}

	if capture != "" {
		f, err := fixture.Capture("captured from run "+res.RunID, res.Resolver.Genealogy(), res.Mappings)
		if err != nil {
			return err
		}
		if err := f.Save(capture); err != nil {
			return err
		}
		logger.Info("fixture captured", "path", capture)
	}

	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("run %s: %d iterations, %d nodes, %d edges\n", res.RunID, res.Iterations, res.Nodes, res.Edges)
	for _, lag := range sortedKeys(res.Mappings) {
		fmt.Printf("  lag %-4d %d nodes mapped\n", lag, len(res.Mappings[lag]))
	}
	return nil
}

// #endregion run

// #region output
type jsonResult struct {
	RunID      string                       `json:"run_id"`
	Iterations int                          `json:"iterations"`
	Nodes      int                          `json:"nodes"`
	Edges      int                          `json:"edges"`
	Mappings   map[string]map[string]string `json:"mappings"`
}

func printJSON(res runner.Result) error {
	out := jsonResult{
		RunID:      res.RunID,
		Iterations: res.Iterations,
		Nodes:      res.Nodes,
		Edges:      res.Edges,
		Mappings:   make(map[string]map[string]string, len(res.Mappings)),
	}
	for lag, m := range res.Mappings {
		out.Mappings[fmt.Sprint(lag)] = stringify(m)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func stringify(m map[lineage.NodeID]lineage.NodeID) map[string]string {
	out := make(map[string]string, len(m))
	for c, a := range m {
		out[c.String()] = a.String()
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// #endregion output
