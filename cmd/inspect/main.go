package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/graph"
	"github.com/danielpatrickdp/we-lineage/internal/lineage"
	"github.com/danielpatrickdp/we-lineage/internal/logging"
	"github.com/danielpatrickdp/we-lineage/internal/rpc"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to lineage.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show one run's stored mapping (defaults to the latest ok run when --lag or --walk is set)")
	lag := flag.Int("lag", 0, "lag to show for --run")
	walk := flag.String("walk", "", "walk stored parents from a node, e.g. segment/12/3")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	addr := flag.String("addr", "", "query a running lineage-server instead of the database, e.g. localhost:50051")
	flag.Parse()

	if *addr != "" {
		if err := runRemoteMode(*addr, *lag, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/lineage.db [--last N] [--run id] [--lag L] [--walk node] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --addr host:port [--lag L] [--json]")
		os.Exit(2)
	}

	store, err := archive.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *lag > 0 || *walk != "":
		err = runDetailMode(store, *runID, *lag, *walk, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string `json:"run_id"`
	Iterations int    `json:"iterations"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Lags       []int  `json:"lags"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func runListMode(store *archive.Store, last int, jsonOut bool) error {
	runs, err := logging.ListRuns(store.DB(), last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:      r.RunID,
			Iterations: r.IterationCount,
			Nodes:      r.NodeCount,
			Edges:      r.EdgeCount,
			Lags:       r.Lags,
			Status:     r.Status,
			Reason:     r.Reason,
			CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-36s  %6s  %8s  %8s  %-10s  %-9s  %s\n", "RUN", "ITERS", "NODES", "EDGES", "LAGS", "STATUS", "CREATED")
	for _, r := range rows {
		fmt.Printf("%-36s  %6d  %8d  %8d  %-10s  %-9s  %s\n",
			r.RunID, r.Iterations, r.Nodes, r.Edges, joinInts(r.Lags), r.Status, r.CreatedAt)
		if r.Reason != "" {
			fmt.Printf("  reason: %s\n", r.Reason)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type mappingRow struct {
	Child    string `json:"child"`
	Ancestor string `json:"ancestor"`
}

func runDetailMode(store *archive.Store, runID string, lag int, walk string, jsonOut bool) error {
	if runID == "" {
		latest, err := logging.LatestRun(store.DB())
		if err != nil {
			return fmt.Errorf("no run given and no successful run found: %w", err)
		}
		runID = latest.RunID
	}
	gs, err := graph.NewGraphStore(store.DB())
	if err != nil {
		return err
	}

	if walk != "" {
		entry, err := lineage.ParseNodeID(walk)
		if err != nil {
			return err
		}
		res, err := gs.Walk(runID, entry, lag)
		if err != nil {
			return err
		}
		ids := make([]string, len(res.IDs))
		for i, id := range res.IDs {
			ids[i] = id.String()
		}
		if jsonOut {
			return printJSON(map[string]any{"run_id": runID, "path": ids})
		}
		fmt.Printf("Run:   %s\n", runID)
		fmt.Printf("Depth: %d\n", res.Depth())
		fmt.Printf("Path:  %s\n", strings.Join(ids, " -> "))
		return nil
	}

	edges, err := gs.Edges(runID, lag)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		stored, _ := gs.Lags(runID)
		return fmt.Errorf("run %s has no stored mapping for lag %d (stored lags: %s)", runID, lag, joinInts(stored))
	}
	rows := make([]mappingRow, len(edges))
	for i, e := range edges {
		rows[i] = mappingRow{Child: e.SourceID.String(), Ancestor: e.TargetID.String()}
	}
	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("Run: %s  Lag: %d  Mapped: %d\n\n", runID, lag, len(rows))
	for _, r := range rows {
		fmt.Printf("  %-28s -> %s\n", r.Child, r.Ancestor)
	}
	return nil
}

// #endregion detail-mode

// #region remote-mode

func runRemoteMode(addr string, lag int, jsonOut bool) error {
	client, err := rpc.NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sum, err := client.Describe(ctx)
	if err != nil {
		return err
	}
	if lag <= 0 {
		if jsonOut {
			return printJSON(map[string]int{"iterations": sum.Iterations, "nodes": sum.Nodes, "edges": sum.Edges})
		}
		fmt.Printf("Server: %s  Iterations: %d  Nodes: %d  Edges: %d\n", addr, sum.Iterations, sum.Nodes, sum.Edges)
		return nil
	}

	m, err := client.MapToAncestor(ctx, lag)
	if err != nil {
		return err
	}
	children := make([]lineage.NodeID, 0, len(m))
	for c := range m {
		children = append(children, c)
	}
	slices.SortFunc(children, lineage.CompareNodeIDs)
	rows := make([]mappingRow, len(children))
	for i, c := range children {
		rows[i] = mappingRow{Child: c.String(), Ancestor: m[c].String()}
	}
	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("Server: %s  Iterations: %d  Lag: %d  Mapped: %d\n\n", addr, sum.Iterations, lag, len(rows))
	for _, r := range rows {
		fmt.Printf("  %-28s -> %s\n", r.Child, r.Ancestor)
	}
	return nil
}

// #endregion remote-mode

// #region helpers

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
