package mcp

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/evidence"
	"sentinel/internal/report"
	"sentinel/internal/supervise"
	"sentinel/internal/trace"
)

// Session binds one externally-driven supervised run: its trace store, hook,
// and packet writer. The embedding agent emits events and artifacts over MCP
// and asks for analysis when it wants a verdict.
type Session struct {
	ID        string
	RunID     string
	RunDir    string
	CreatedAt time.Time

	mu    sync.Mutex
	store *trace.Store
	hook  *supervise.Hook
}

// NewSession creates a session rooted at runsDir/runID. A generated run ID is
// used when runID is empty. items seeds the static evidence pool for binding.
func NewSession(runsDir, runID string, items []evidence.Source) (*Session, error) {
	if runID == "" {
		runID = time.Now().UTC().Format("20060102-150405")
	}
	runDir := filepath.Join(runsDir, runID)

	store, err := trace.Open(filepath.Join(runDir, "trace", "events.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}

	packets := report.NewPacketWriter(filepath.Join(runDir, "packets"), runID,
		report.RunContext{}, report.WithPacketEventSink(store))

	hook := supervise.NewHook(store,
		supervise.WithEvidenceItems(items),
		supervise.WithPacketSink(packets, runID))

	return &Session{
		ID:        uuid.NewString(),
		RunID:     runID,
		RunDir:    runDir,
		CreatedAt: time.Now().UTC(),
		store:     store,
		hook:      hook,
	}, nil
}

// TracePath returns the JSONL trace location.
func (s *Session) TracePath() string {
	return filepath.Join(s.RunDir, "trace", "events.jsonl")
}

// EmitEvent appends one event to the trace.
func (s *Session) EmitEvent(e trace.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Append(e)
}

// EventCount returns the current trace length.
func (s *Session) EventCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.store.Events()
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// NotifyArtifact registers an artifact, extracting claims and rebinding
// evidence. Returns the resulting claim and evidence totals.
func (s *Session) NotifyArtifact(path, name string) (claims, evidenceCount int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hook.OnArtifactCreated(path, name); err != nil {
		return 0, 0, err
	}
	return s.hook.Graph().ClaimCount(), s.hook.Graph().EvidenceCount(), nil
}

// AnalyzeStep runs the policy over the trailing trace window. window <= 0
// uses the hook's default.
func (s *Session) AnalyzeStep(window int) (*supervise.Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if window <= 0 {
		return s.hook.OnStep(nil)
	}
	all, err := s.store.Events()
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return s.hook.OnStep(trace.Window(all, window))
}

// Summary returns the current supervision state.
func (s *Session) Summary() (supervise.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hook.Summary()
}

// Close releases the trace store.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}
