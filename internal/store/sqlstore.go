package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE bundles (
	repo       TEXT NOT NULL,
	milestone  TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (repo, milestone)
);
CREATE TABLE runs (
	run_id      TEXT PRIMARY KEY,
	repo        TEXT NOT NULL,
	milestone   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	status      TEXT NOT NULL,
	escalated   INTEGER NOT NULL DEFAULT 0,
	report_path TEXT
);
`

// SqlStore is the SQLite-backed store.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations. Creates the
// parent directory (e.g. .sentinel) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != currentSchemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the underlying DB.
func (s *SqlStore) Close() error { return s.db.Close() }

// SaveBundle upserts the serialized bundle for repo+milestone.
func (s *SqlStore) SaveBundle(repo, milestone string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO bundles(repo, milestone, fetched_at, data) VALUES(?,?,?,?)
		ON CONFLICT(repo, milestone) DO UPDATE SET fetched_at=excluded.fetched_at, data=excluded.data`,
		repo, milestone, nowUTC(), data)
	if err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}
	return nil
}

// GetBundle returns the cached bundle bytes, or (nil, nil) on a cache miss.
func (s *SqlStore) GetBundle(repo, milestone string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM bundles WHERE repo=? AND milestone=?", repo, milestone,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return data, nil
}

// CreateRun inserts a new run record in the running state.
func (s *SqlStore) CreateRun(runID, repo, milestone string) error {
	_, err := s.db.Exec(
		"INSERT INTO runs(run_id, repo, milestone, started_at, status) VALUES(?,?,?,?,?)",
		runID, repo, milestone, nowUTC(), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun marks a run finished with its outcome.
func (s *SqlStore) FinishRun(runID, status string, escalated bool, reportPath string) error {
	res, err := s.db.Exec(
		"UPDATE runs SET finished_at=?, status=?, escalated=?, report_path=? WHERE run_id=?",
		nowUTC(), status, boolToInt(escalated), reportPath, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("finish run: run %q not found", runID)
	}
	return nil
}

// GetRun returns the record for runID, or nil when absent.
func (s *SqlStore) GetRun(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, repo, milestone, started_at,
		       COALESCE(finished_at, ''), status, escalated, COALESCE(report_path, '')
		FROM runs WHERE run_id=?`, runID)
	var r RunRecord
	var escalated int
	err := row.Scan(&r.RunID, &r.Repo, &r.Milestone, &r.StartedAt,
		&r.FinishedAt, &r.Status, &escalated, &r.ReportPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Escalated = escalated != 0
	return &r, nil
}

// ListRuns returns all run records, newest first.
func (s *SqlStore) ListRuns() ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, repo, milestone, started_at,
		       COALESCE(finished_at, ''), status, escalated, COALESCE(report_path, '')
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var r RunRecord
		var escalated int
		if err := rows.Scan(&r.RunID, &r.Repo, &r.Milestone, &r.StartedAt,
			&r.FinishedAt, &r.Status, &escalated, &r.ReportPath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Escalated = escalated != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
