// Package mcp exposes supervision over the Model Context Protocol so an
// external agent loop can stream its trace into sentinel and receive
// interventions without embedding the Go packages.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"sentinel/internal/evidence"
	"sentinel/internal/logging"
	"sentinel/internal/supervise"
	"sentinel/internal/trace"
)

// agentEventTypes lists the event types an external agent may emit. The
// supervisor-owned types (intervention, escalation_packet) are rejected.
var agentEventTypes = map[trace.EventType]bool{
	trace.ToolCall:    true,
	trace.Observation: true,
	trace.Artifact:    true,
	trace.Decision:    true,
	trace.LLMCall:     true,
}

// Server wraps the MCP SDK server and manages supervision sessions.
type Server struct {
	MCPServer *sdkmcp.Server
	RunsDir   string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates an MCP server rooting run directories under runsDir.
func NewServer(runsDir string) *Server {
	s := &Server{
		RunsDir:  runsDir,
		sessions: make(map[string]*Session),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "sentinel", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_session",
		Description: "Start a supervision session. Creates the run directory and trace, returns a session ID.",
	}, s.handleStartSession)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "emit_event",
		Description: "Append one agent event (tool_call, observation, artifact, decision, llm_call) to the session trace.",
	}, s.handleEmitEvent)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "notify_artifact",
		Description: "Register an artifact file. Claims are extracted and evidence is rebound immediately.",
	}, s.handleNotifyArtifact)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "analyze_step",
		Description: "Run the supervision policy over the trailing trace window. Returns at most one intervention; escalations write a decision packet.",
	}, s.handleAnalyzeStep)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_summary",
		Description: "Get the session's supervision summary: event, claim, evidence, and intervention counts.",
	}, s.handleGetSummary)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "end_session",
		Description: "Close a supervision session and release its trace file.",
	}, s.handleEndSession)
}

// --- Tool input/output types ---

type startSessionInput struct {
	RunID        string `json:"run_id,omitempty" jsonschema:"run identifier (generated when empty)"`
	EvidenceJSON string `json:"evidence_json,omitempty" jsonschema:"JSON array of {text, source_ref, source_type} evidence sources for binding"`
}

type startSessionOutput struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	TracePath string `json:"trace_path"`
}

type emitEventInput struct {
	SessionID   string `json:"session_id" jsonschema:"session ID from start_session"`
	Type        string `json:"type" jsonschema:"event type (tool_call, observation, artifact, decision, llm_call)"`
	PayloadJSON string `json:"payload_json,omitempty" jsonschema:"JSON object with the event payload"`
}

type emitEventOutput struct {
	OK         string `json:"ok"`
	EventCount int    `json:"event_count"`
}

type notifyArtifactInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_session"`
	Path      string `json:"path" jsonschema:"artifact file path"`
	Name      string `json:"name,omitempty" jsonschema:"artifact name (defaults to the file stem)"`
}

type notifyArtifactOutput struct {
	Claims   int `json:"claims"`
	Evidence int `json:"evidence"`
}

type analyzeStepInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_session"`
	Window    int    `json:"window,omitempty" jsonschema:"trailing event window size (default 20)"`
}

type interventionPayload struct {
	Type               string                        `json:"type"`
	TargetID           string                        `json:"target_id"`
	Rationale          string                        `json:"rationale"`
	SuggestedNextSteps []string                      `json:"suggested_next_steps,omitempty"`
	SuggestedToolCalls []supervise.SuggestedToolCall `json:"suggested_tool_calls,omitempty"`
}

type analyzeStepOutput struct {
	Intervention *interventionPayload `json:"intervention,omitempty"`
}

type getSummaryInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_session"`
}

type getSummaryOutput struct {
	supervise.Summary
}

type endSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_session"`
}

type endSessionOutput struct {
	OK string `json:"ok"`
}

// --- Tool handlers ---

func (s *Server) handleStartSession(ctx context.Context, _ *sdkmcp.CallToolRequest, input startSessionInput) (*sdkmcp.CallToolResult, startSessionOutput, error) {
	logger := logging.New("mcp-session")

	var items []evidence.Source
	if input.EvidenceJSON != "" {
		if err := json.Unmarshal([]byte(input.EvidenceJSON), &items); err != nil {
			return nil, startSessionOutput{}, fmt.Errorf("evidence_json is not a valid source array: %w", err)
		}
	}

	sess, err := NewSession(s.RunsDir, input.RunID, items)
	if err != nil {
		return nil, startSessionOutput{}, fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	logger.Info("session started", "session_id", sess.ID, "run_id", sess.RunID, "evidence_sources", len(items))
	return nil, startSessionOutput{
		SessionID: sess.ID,
		RunID:     sess.RunID,
		TracePath: sess.TracePath(),
	}, nil
}

func (s *Server) handleEmitEvent(ctx context.Context, _ *sdkmcp.CallToolRequest, input emitEventInput) (*sdkmcp.CallToolResult, emitEventOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, emitEventOutput{}, err
	}

	eventType := trace.EventType(input.Type)
	if !agentEventTypes[eventType] {
		return nil, emitEventOutput{}, fmt.Errorf("event type %q not allowed", input.Type)
	}

	payload := map[string]any{}
	if input.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(input.PayloadJSON), &payload); err != nil {
			return nil, emitEventOutput{}, fmt.Errorf("payload_json is not a valid JSON object: %w", err)
		}
	}

	if err := sess.EmitEvent(trace.New(eventType, payload)); err != nil {
		return nil, emitEventOutput{}, fmt.Errorf("emit_event: %w", err)
	}
	count, err := sess.EventCount()
	if err != nil {
		return nil, emitEventOutput{}, fmt.Errorf("emit_event: %w", err)
	}
	return nil, emitEventOutput{OK: "event recorded", EventCount: count}, nil
}

func (s *Server) handleNotifyArtifact(ctx context.Context, _ *sdkmcp.CallToolRequest, input notifyArtifactInput) (*sdkmcp.CallToolResult, notifyArtifactOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, notifyArtifactOutput{}, err
	}
	if input.Path == "" {
		return nil, notifyArtifactOutput{}, fmt.Errorf("path is required")
	}

	claims, evidenceCount, err := sess.NotifyArtifact(input.Path, input.Name)
	if err != nil {
		return nil, notifyArtifactOutput{}, fmt.Errorf("notify_artifact: %w", err)
	}
	return nil, notifyArtifactOutput{Claims: claims, Evidence: evidenceCount}, nil
}

func (s *Server) handleAnalyzeStep(ctx context.Context, _ *sdkmcp.CallToolRequest, input analyzeStepInput) (*sdkmcp.CallToolResult, analyzeStepOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, analyzeStepOutput{}, err
	}

	iv, err := sess.AnalyzeStep(input.Window)
	if err != nil {
		return nil, analyzeStepOutput{}, fmt.Errorf("analyze_step: %w", err)
	}
	if iv == nil {
		return nil, analyzeStepOutput{}, nil
	}
	return nil, analyzeStepOutput{Intervention: &interventionPayload{
		Type:               string(iv.Type),
		TargetID:           iv.TargetID,
		Rationale:          iv.Rationale,
		SuggestedNextSteps: iv.SuggestedNextSteps,
		SuggestedToolCalls: iv.SuggestedToolCalls,
	}}, nil
}

func (s *Server) handleGetSummary(ctx context.Context, _ *sdkmcp.CallToolRequest, input getSummaryInput) (*sdkmcp.CallToolResult, getSummaryOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getSummaryOutput{}, err
	}
	summary, err := sess.Summary()
	if err != nil {
		return nil, getSummaryOutput{}, fmt.Errorf("get_summary: %w", err)
	}
	return nil, getSummaryOutput{Summary: summary}, nil
}

func (s *Server) handleEndSession(ctx context.Context, _ *sdkmcp.CallToolRequest, input endSessionInput) (*sdkmcp.CallToolResult, endSessionOutput, error) {
	s.mu.Lock()
	sess, ok := s.sessions[input.SessionID]
	if ok {
		delete(s.sessions, input.SessionID)
	}
	s.mu.Unlock()

	if !ok {
		return nil, endSessionOutput{}, fmt.Errorf("unknown session %q", input.SessionID)
	}
	if err := sess.Close(); err != nil {
		return nil, endSessionOutput{}, fmt.Errorf("end_session: %w", err)
	}
	return nil, endSessionOutput{OK: "session closed"}, nil
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every live session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		_ = sess.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) getSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q (call start_session first)", id)
	}
	return sess, nil
}
