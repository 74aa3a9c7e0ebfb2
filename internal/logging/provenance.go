package logging

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region log-run
// LogRun writes a run entry to the lineage_runs table.
func LogRun(db *sql.DB, entry RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO lineage_runs (run_id, iteration_count, node_count, edge_count, lags, status, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.IterationCount,
		entry.NodeCount,
		entry.EdgeCount,
		nullIfEmpty(joinLags(entry.Lags)),
		entry.Status,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}
// #endregion log-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, iteration_count, node_count, edge_count, lags, status, reason, created_at
		 FROM lineage_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var lags, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.IterationCount, &e.NodeCount, &e.EdgeCount,
			&lags, &e.Status, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if lags.Valid {
			if e.Lags, err = splitLags(lags.String); err != nil {
				return nil, fmt.Errorf("run %s: %w", e.RunID, err)
			}
		}
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestRun returns the most recent successful run.
func LatestRun(db *sql.DB) (RunEntry, error) {
	var e RunEntry
	var lags sql.NullString
	var createdStr string
	err := db.QueryRow(
		`SELECT run_id, iteration_count, node_count, edge_count, lags, created_at
		 FROM lineage_runs WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, StatusOK,
	).Scan(&e.RunID, &e.IterationCount, &e.NodeCount, &e.EdgeCount, &lags, &createdStr)
	if err != nil {
		return RunEntry{}, fmt.Errorf("latest run: %w", err)
	}
	if lags.Valid {
		if e.Lags, err = splitLags(lags.String); err != nil {
			return RunEntry{}, fmt.Errorf("run %s: %w", e.RunID, err)
		}
	}
	e.Status = StatusOK
	e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return e, nil
}
// #endregion list-runs

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func joinLags(lags []int) string {
	parts := make([]string, len(lags))
	for i, l := range lags {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

func splitLags(s string) ([]int, error) {
	var lags []int
	for _, p := range strings.Split(s, ",") {
		l, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse lags %q: %w", s, err)
		}
		lags = append(lags, l)
	}
	return lags, nil
}
// #endregion helpers
