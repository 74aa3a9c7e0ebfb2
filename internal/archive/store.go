package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS iterations (
	n_iter       INTEGER PRIMARY KEY,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	n_iter       INTEGER NOT NULL,
	seg_index    INTEGER NOT NULL,
	parent_id    INTEGER NOT NULL,
	PRIMARY KEY (n_iter, seg_index),
	FOREIGN KEY (n_iter) REFERENCES iterations(n_iter) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS initial_states (
	n_iter       INTEGER NOT NULL,
	state_id     INTEGER NOT NULL,
	PRIMARY KEY (n_iter, state_id),
	FOREIGN KEY (n_iter) REFERENCES iterations(n_iter) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS lineage_runs (
	run_id          TEXT PRIMARY KEY,
	iteration_count INTEGER NOT NULL,
	node_count      INTEGER NOT NULL,
	edge_count      INTEGER NOT NULL,
	lags            TEXT,
	status          TEXT NOT NULL,
	reason          TEXT,
	created_at      TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store holds per-iteration segment and initial-state records in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (graph, logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region put-iteration
// PutIteration stores the records of iteration n, replacing any previous copy.
// Segment indices are the slice positions.
func (s *Store) PutIteration(n int, segs []lineage.SegmentRecord, states []lineage.InitialStateRecord) error {
	if n < 1 {
		return fmt.Errorf("put iteration: iteration must be >= 1, got %d", n)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"segments", "initial_states", "iterations"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE n_iter = ?`, n); err != nil {
			return fmt.Errorf("clear %s of iteration %d: %w", table, n, err)
		}
	}
	_, err = tx.Exec(
		`INSERT INTO iterations (n_iter, created_at) VALUES (?, ?)`,
		n, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert iteration %d: %w", n, err)
	}

	for i, seg := range segs {
		_, err = tx.Exec(
			`INSERT INTO segments (n_iter, seg_index, parent_id) VALUES (?, ?, ?)`,
			n, i, seg.ParentID,
		)
		if err != nil {
			return fmt.Errorf("insert segment %d/%d: %w", n, i, err)
		}
	}
	for _, st := range states {
		_, err = tx.Exec(
			`INSERT INTO initial_states (n_iter, state_id) VALUES (?, ?)`,
			n, st.StateID,
		)
		if err != nil {
			return fmt.Errorf("insert initial state %d/%d: %w", n, st.StateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion put-iteration

// #region segments
// Segments returns iteration n's segments ordered by index. It has the shape of
// lineage.SegmentSource.
func (s *Store) Segments(n int) ([]lineage.SegmentRecord, error) {
	rows, err := s.db.Query(
		`SELECT parent_id FROM segments WHERE n_iter = ? ORDER BY seg_index ASC`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("get segments %d: %w", n, err)
	}
	defer rows.Close()

	var segs []lineage.SegmentRecord
	for rows.Next() {
		var seg lineage.SegmentRecord
		if err := rows.Scan(&seg.ParentID); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}
// #endregion segments

// #region initial-states
// InitialStates returns the initial states seeding iteration n. It has the
// shape of lineage.InitialStateSource.
func (s *Store) InitialStates(n int) ([]lineage.InitialStateRecord, error) {
	rows, err := s.db.Query(
		`SELECT state_id FROM initial_states WHERE n_iter = ? ORDER BY state_id ASC`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("get initial states %d: %w", n, err)
	}
	defer rows.Close()

	var states []lineage.InitialStateRecord
	for rows.Next() {
		var st lineage.InitialStateRecord
		if err := rows.Scan(&st.StateID); err != nil {
			return nil, fmt.Errorf("scan initial state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
// #endregion initial-states

// #region current-iteration
// CurrentIteration returns the highest stored iteration, or 0 for an empty archive.
func (s *Store) CurrentIteration() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(n_iter), 0) FROM iterations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("current iteration: %w", err)
	}
	return n, nil
}
// #endregion current-iteration
