package logging

import "time"

// #region run-status
const (
	StatusOK        = "ok"
	StatusMalformed = "malformed"
	StatusFailed    = "failed"
)
// #endregion run-status

// #region run-entry
// RunEntry is a single row in the lineage_runs table.
type RunEntry struct {
	RunID          string
	IterationCount int
	NodeCount      int
	EdgeCount      int
	Lags           []int
	Status         string // "ok" | "malformed" | "failed"
	Reason         string
	CreatedAt      time.Time
}
// #endregion run-entry
