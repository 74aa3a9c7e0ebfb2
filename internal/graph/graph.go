package graph

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS ancestor_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    lag         INTEGER NOT NULL,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    UNIQUE(run_id, lag, source_id)
);
CREATE INDEX IF NOT EXISTS idx_ancestor_edges_target ON ancestor_edges(run_id, lag, target_id);
`

// #endregion schema

// #region types
// Edge is a persisted child -> ancestor link. Lag 1 edges are the genealogy
// itself; higher lags hold resolved ancestor mappings.
type Edge struct {
	ID        int64
	RunID     string
	Lag       int
	SourceID  lineage.NodeID
	TargetID  lineage.NodeID
	CreatedAt time.Time
}

// WalkResult holds the ancestor chain visited by Walk, starting node first.
type WalkResult struct {
	IDs []lineage.NodeID
}

// Last returns the deepest node reached.
func (w WalkResult) Last() lineage.NodeID {
	return w.IDs[len(w.IDs)-1]
}

// Depth returns the number of hops taken.
func (w WalkResult) Depth() int {
	return len(w.IDs) - 1
}

// GraphStore manages the ancestor_edges table.
type GraphStore struct {
	db *sql.DB
}

// #endregion types

// #region constructor
// NewGraphStore creates tables and returns a GraphStore.
func NewGraphStore(db *sql.DB) (*GraphStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("graph schema: %w", err)
	}
	return &GraphStore{db: db}, nil
}

// #endregion constructor

// #region save
// SaveGenealogy persists every parent edge of g as lag 1 of runID.
func (g *GraphStore) SaveGenealogy(runID string, gen *lineage.Genealogy) error {
	m := make(map[lineage.NodeID]lineage.NodeID, gen.EdgeCount())
	for _, e := range gen.Edges() {
		m[e.Child] = e.Parent
	}
	return g.SaveMapping(runID, 1, m)
}

// SaveMapping persists a child -> ancestor mapping for one lag, replacing any
// earlier target for the same child.
func (g *GraphStore) SaveMapping(runID string, lag int, m map[lineage.NodeID]lineage.NodeID) error {
	if lag <= 0 {
		return &lineage.InvalidLagError{Depth: lag}
	}

	children := make([]lineage.NodeID, 0, len(m))
	for c := range m {
		children = append(children, c)
	}
	slices.SortFunc(children, lineage.CompareNodeIDs)

	tx, err := g.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO ancestor_edges (run_id, lag, source_id, target_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, lag, source_id) DO UPDATE SET
		   target_id = excluded.target_id,
		   created_at = excluded.created_at`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range children {
		if _, err := stmt.Exec(runID, lag, c.String(), m[c].String(), now); err != nil {
			return fmt.Errorf("insert edge %s: %w", c, err)
		}
	}
	return tx.Commit()
}

// #endregion save

// #region get-edges
// Edges returns the persisted edges of one lag ordered by insertion.
func (g *GraphStore) Edges(runID string, lag int) ([]Edge, error) {
	rows, err := g.db.Query(
		`SELECT id, run_id, lag, source_id, target_id, created_at
		 FROM ancestor_edges
		 WHERE run_id = ? AND lag = ?
		 ORDER BY id ASC`,
		runID, lag,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var source, target, createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Lag, &source, &target, &createdAt); err != nil {
			return nil, err
		}
		if e.SourceID, err = lineage.ParseNodeID(source); err != nil {
			return nil, err
		}
		if e.TargetID, err = lineage.ParseNodeID(target); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Mapping loads the child -> ancestor mapping stored for one lag.
func (g *GraphStore) Mapping(runID string, lag int) (map[lineage.NodeID]lineage.NodeID, error) {
	edges, err := g.Edges(runID, lag)
	if err != nil {
		return nil, fmt.Errorf("load mapping %s lag %d: %w", runID, lag, err)
	}
	m := make(map[lineage.NodeID]lineage.NodeID, len(edges))
	for _, e := range edges {
		m[e.SourceID] = e.TargetID
	}
	return m, nil
}

// Lags lists the lags stored for a run in ascending order.
func (g *GraphStore) Lags(runID string) ([]int, error) {
	rows, err := g.db.Query(
		`SELECT DISTINCT lag FROM ancestor_edges WHERE run_id = ? ORDER BY lag ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list lags: %w", err)
	}
	defer rows.Close()

	var lags []int
	for rows.Next() {
		var lag int
		if err := rows.Scan(&lag); err != nil {
			return nil, err
		}
		lags = append(lags, lag)
	}
	return lags, rows.Err()
}

// Parent returns the stored lag 1 parent of id.
func (g *GraphStore) Parent(runID string, id lineage.NodeID) (lineage.NodeID, bool, error) {
	var target string
	err := g.db.QueryRow(
		`SELECT target_id FROM ancestor_edges WHERE run_id = ? AND lag = 1 AND source_id = ?`,
		runID, id.String(),
	).Scan(&target)
	if err == sql.ErrNoRows {
		return lineage.NodeID{}, false, nil
	}
	if err != nil {
		return lineage.NodeID{}, false, err
	}
	parent, err := lineage.ParseNodeID(target)
	if err != nil {
		return lineage.NodeID{}, false, err
	}
	return parent, true, nil
}

// #endregion get-edges

// #region walk
// Walk follows stored parent edges from entry for up to maxDepth hops
// (maxDepth <= 0 walks to the root). It queries one hop at a time, so it serves
// spot checks on persisted runs, not bulk resolution.
func (g *GraphStore) Walk(runID string, entry lineage.NodeID, maxDepth int) (WalkResult, error) {
	result := WalkResult{IDs: []lineage.NodeID{entry}}
	visited := map[lineage.NodeID]bool{entry: true}

	current := entry
	for maxDepth <= 0 || result.Depth() < maxDepth {
		parent, ok, err := g.Parent(runID, current)
		if err != nil {
			return result, fmt.Errorf("walk parent of %s: %w", current, err)
		}
		if !ok {
			break
		}
		if visited[parent] {
			return result, fmt.Errorf("walk: cycle at %s", parent)
		}
		visited[parent] = true
		result.IDs = append(result.IDs, parent)
		current = parent
	}
	return result, nil
}

// #endregion walk

// #region delete-run
// DeleteRun removes every edge stored for runID.
func (g *GraphStore) DeleteRun(runID string) (int64, error) {
	res, err := g.db.Exec(`DELETE FROM ancestor_edges WHERE run_id = ?`, runID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// #endregion delete-run
