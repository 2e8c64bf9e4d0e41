package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SqlStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sentinel.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBundleRoundtrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveBundle("acme/widgets", "v1.0.0", []byte(`{"issues":[]}`)); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	data, err := s.GetBundle("acme/widgets", "v1.0.0")
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}
	if string(data) != `{"issues":[]}` {
		t.Errorf("data = %q", data)
	}

	// Upsert replaces.
	if err := s.SaveBundle("acme/widgets", "v1.0.0", []byte(`{"issues":[1]}`)); err != nil {
		t.Fatalf("SaveBundle upsert: %v", err)
	}
	data, err = s.GetBundle("acme/widgets", "v1.0.0")
	if err != nil {
		t.Fatalf("GetBundle after upsert: %v", err)
	}
	if string(data) != `{"issues":[1]}` {
		t.Errorf("data after upsert = %q", data)
	}
}

func TestGetBundleMiss(t *testing.T) {
	s := openTestStore(t)

	data, err := s.GetBundle("acme/widgets", "v9")
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil on miss, got %q", data)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun("run-1", "acme/widgets", "v1.0.0"); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	r, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r == nil {
		t.Fatal("GetRun returned nil")
	}
	if r.Status != RunStatusRunning {
		t.Errorf("status = %q, want %q", r.Status, RunStatusRunning)
	}
	if r.FinishedAt != "" {
		t.Errorf("finished_at = %q, want empty", r.FinishedAt)
	}

	if err := s.FinishRun("run-1", RunStatusCompleted, true, "reports/run_report.md"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if r.Status != RunStatusCompleted || !r.Escalated {
		t.Errorf("record = %+v", r)
	}
	if r.ReportPath != "reports/run_report.md" {
		t.Errorf("report path = %q", r.ReportPath)
	}
	if r.FinishedAt == "" {
		t.Error("finished_at not set")
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	s := openTestStore(t)
	if err := s.FinishRun("missing", RunStatusFailed, false, ""); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestGetRunMiss(t *testing.T) {
	s := openTestStore(t)
	r, err := s.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil, got %+v", r)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun("run-a", "acme/widgets", "v1"); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun("run-b", "acme/widgets", "v2"); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveBundle("acme/widgets", "v1", []byte("x")); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	data, err := s.GetBundle("acme/widgets", "v1")
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}
	if string(data) != "x" {
		t.Errorf("data = %q", data)
	}
}
