// Package store is sentinel's local persistence: fetched milestone bundles
// and run records, in SQLite. The trace itself stays in JSONL files; this
// store only holds what outlives a single process.
package store

// DefaultDBPath is the default relative path for the SQLite DB. Open()
// creates the parent dir.
const DefaultDBPath = ".sentinel/sentinel.db"

// RunRecord summarizes one supervised run.
type RunRecord struct {
	RunID      string
	Repo       string
	Milestone  string
	StartedAt  string
	FinishedAt string
	Status     string
	Escalated  bool
	ReportPath string
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
