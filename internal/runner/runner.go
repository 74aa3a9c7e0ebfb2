// Package runner wires the archive, the genealogy builder, the resolver and
// the persistence layers into one lineage run.
package runner

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/graph"
	"github.com/danielpatrickdp/we-lineage/internal/lineage"
	"github.com/danielpatrickdp/we-lineage/internal/logging"
	"github.com/danielpatrickdp/we-lineage/internal/metrics"
)

// #region types
// Options selects what a run resolves.
type Options struct {
	// IterationCount bounds the genealogy; 0 uses the archive's current iteration.
	IterationCount int
	Lags           []int
	// DryRun skips edge and mapping persistence. The provenance row is still written.
	DryRun bool
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string
	Iterations int
	Nodes      int
	Edges      int
	Resolver   *lineage.Resolver
	Mappings   map[int]map[lineage.NodeID]lineage.NodeID
}

// Runner coordinates one lineage run over an archive.
type Runner struct {
	Archive *archive.Store
	Graphs  *graph.GraphStore
	Logger  *logging.Logger
	now     func() time.Time
}

// #endregion types

// #region constructor
// New creates a Runner whose graph store shares the archive's database.
func New(store *archive.Store, logger *logging.Logger) (*Runner, error) {
	graphs, err := graph.NewGraphStore(store.DB())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{Archive: store, Graphs: graphs, Logger: logger, now: time.Now}, nil
}

// #endregion constructor

// #region run
// Run builds the genealogy, validates it, resolves every lag and persists the
// results under a fresh run id. A provenance row is logged whether or not the
// run succeeds.
func (r *Runner) Run(opts Options) (Result, error) {
	started := r.now()
	res := Result{
		RunID:    uuid.NewString(),
		Mappings: make(map[int]map[lineage.NodeID]lineage.NodeID, len(opts.Lags)),
	}
	log := r.Logger.With("run_id", res.RunID)

	err := r.run(&res, opts, log)

	status := statusOf(err)
	metrics.ObserveBuild(status, started, res.Nodes, res.Edges)

	entry := logging.RunEntry{
		RunID:          res.RunID,
		IterationCount: res.Iterations,
		NodeCount:      res.Nodes,
		EdgeCount:      res.Edges,
		Lags:           sortedLags(opts.Lags),
		Status:         status,
		CreatedAt:      r.now().UTC(),
	}
	if err != nil {
		entry.Reason = err.Error()
	}
	if logErr := logging.LogRun(r.Archive.DB(), entry); logErr != nil {
		log.Error("provenance write failed", "error", logErr)
		if err == nil {
			err = fmt.Errorf("log run: %w", logErr)
		}
	}

	if err != nil {
		log.Warn("lineage run failed", "status", status, "error", err)
		return res, err
	}
	log.Info("lineage run complete",
		"iterations", res.Iterations,
		"nodes", res.Nodes,
		"edges", res.Edges,
		"lags", entry.Lags,
		"elapsed", time.Since(started),
	)
	return res, nil
}

func (r *Runner) run(res *Result, opts Options, log *logging.Logger) error {
	n := opts.IterationCount
	if n == 0 {
		current, err := r.Archive.CurrentIteration()
		if err != nil {
			return err
		}
		n = current
	}
	res.Iterations = n

	var g *lineage.Genealogy
	if n == 0 {
		// nothing archived yet
		log.Info("archive holds no iterations")
		g = lineage.Empty()
	} else {
		built, err := lineage.Build(n, r.Archive.Segments, r.Archive.InitialStates)
		if err != nil {
			return err
		}
		g = built
	}
	if err := g.Validate(); err != nil {
		return err
	}
	res.Nodes, res.Edges = g.Len(), g.EdgeCount()
	res.Resolver = lineage.NewResolver(g)
	log.Debug("genealogy built", "nodes", res.Nodes, "edges", res.Edges)

	lags := sortedLags(opts.Lags)
	resolved := make([]map[lineage.NodeID]lineage.NodeID, len(lags))
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, lag := range lags {
		i, lag := i, lag
		eg.Go(func() error {
			queryStart := r.now()
			m, err := res.Resolver.MapToAncestor(lag)
			metrics.ObserveQuery(err, queryStart)
			if err != nil {
				return fmt.Errorf("lag %d: %w", lag, err)
			}
			resolved[i] = m
			log.Debug("lag resolved", "lag", lag, "mapped", len(m))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for i, lag := range lags {
		res.Mappings[lag] = resolved[i]
	}

	if opts.DryRun {
		return nil
	}
	if err := r.Graphs.SaveGenealogy(res.RunID, g); err != nil {
		return fmt.Errorf("persist genealogy: %w", err)
	}
	for lag, m := range res.Mappings {
		if lag == 1 {
			continue // identical to the persisted genealogy
		}
		if err := r.Graphs.SaveMapping(res.RunID, lag, m); err != nil {
			return fmt.Errorf("persist lag %d: %w", lag, err)
		}
	}
	return nil
}

// #endregion run

// #region helpers
func statusOf(err error) string {
	switch {
	case err == nil:
		return logging.StatusOK
	case errors.Is(err, lineage.ErrMalformedLineage):
		return logging.StatusMalformed
	default:
		return logging.StatusFailed
	}
}

func sortedLags(lags []int) []int {
	out := slices.Clone(lags)
	slices.Sort(out)
	return slices.Compact(out)
}

// #endregion helpers
