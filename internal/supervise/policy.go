package supervise

import (
	"fmt"
	"log/slog"

	"sentinel/internal/boundary"
	"sentinel/internal/evidence"
	"sentinel/internal/logging"
	"sentinel/internal/trace"
)

// escalateClaimCount is the number of uncovered HIGH claims at which the
// policy escalates instead of requesting evidence.
const escalateClaimCount = 3

// toolCallLimit is the run-wide tool-call budget checked by the stuck-agent
// rule.
const toolCallLimit = 50

// minEvidenceAtLimit is the evidence count below which hitting the tool-call
// budget escalates.
const minEvidenceAtLimit = 5

// Supervisor evaluates the intervention rule ladder each step. State is
// per-instance: a monotonically increasing tool-call counter and the history
// of issued interventions. Never share one Supervisor across runs.
type Supervisor struct {
	graph    *evidence.Graph
	store    TraceStore
	detector *boundary.Detector
	logger   *slog.Logger

	toolCallCount int
	issued        []Intervention
}

// NewSupervisor creates a supervisor over the given graph and trace store.
func NewSupervisor(g *evidence.Graph, store TraceStore, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		graph:    g,
		store:    store,
		detector: boundary.NewDetector(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SupervisorOption configures a Supervisor during construction.
type SupervisorOption func(*Supervisor)

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

// ToolCallCount returns the cumulative tool calls observed this run.
func (s *Supervisor) ToolCallCount() int { return s.toolCallCount }

// Issued returns the interventions issued so far, oldest first.
func (s *Supervisor) Issued() []Intervention {
	out := make([]Intervention, len(s.issued))
	copy(out, s.issued)
	return out
}

// Graph returns the evidence graph the supervisor reads.
func (s *Supervisor) Graph() *evidence.Graph { return s.graph }

// AnalyzeStep runs the rule ladder over the window and returns at most one
// intervention, already appended to history and mirrored into the trace. Rule
// order is fixed: uncovered-claim escalation, evidence request, metric and
// tradeoff boundaries, then the stuck-agent budget. missing_evidence and
// low_evidence_rate signals are computed but drive no branch of their own;
// the claim and budget rules subsume them.
func (s *Supervisor) AnalyzeStep(events []trace.Event, artifacts map[string]string) (*Intervention, error) {
	s.toolCallCount += trace.CountByType(events)[trace.ToolCall]

	signals := s.detector.Detect(events, s.graph, artifacts)

	uncovered := s.graph.UncoveredClaims(evidence.SeverityHigh)
	if len(uncovered) >= escalateClaimCount {
		return s.emit(Intervention{
			Type:      Escalate,
			TargetID:  "multiple_claims",
			Rationale: fmt.Sprintf("%d HIGH severity claims lack evidence", len(uncovered)),
			SuggestedNextSteps: []string{
				"Review uncovered claims",
				"Gather additional evidence from GitHub issues",
				"Consider reducing scope or clarifying requirements",
			},
		})
	}
	if len(uncovered) >= 1 {
		claim := uncovered[0]
		return s.emit(Intervention{
			Type:      RequestEvidence,
			TargetID:  claim.ID,
			Rationale: fmt.Sprintf("HIGH severity claim in %s needs evidence", claim.Section),
			SuggestedNextSteps: []string{
				fmt.Sprintf("Fetch issue details related to: %s...", truncate(claim.Text, 50)),
				"Search GitHub issues for relevant keywords",
				"Review milestone description",
			},
			SuggestedToolCalls: []SuggestedToolCall{
				{Tool: "github_fetch_issue", Params: map[string]any{"query": truncate(claim.Text, 100)}},
			},
		})
	}

	for _, sig := range signals {
		switch sig.Type {
		case boundary.TypeEmptyMetrics:
			return s.emit(Intervention{
				Type:      RequestMetrics,
				TargetID:  sig.Section,
				Rationale: sig.Rationale,
				SuggestedNextSteps: []string{
					"Add measurable success metrics",
					"Include specific targets (e.g., '95% uptime', '1000 users')",
				},
			})
		case boundary.TypeMissingTradeoffs:
			return s.emit(Intervention{
				Type:      RequestOptions,
				TargetID:  sig.Section,
				Rationale: sig.Rationale,
				SuggestedNextSteps: []string{
					"Explicitly list what's out of scope",
					"Explain tradeoffs and alternatives considered",
				},
			})
		}
	}

	if s.toolCallCount > toolCallLimit && s.graph.EvidenceCount() < minEvidenceAtLimit {
		return s.emit(Intervention{
			Type:     Escalate,
			TargetID: "tool_call_limit",
			Rationale: fmt.Sprintf("Agent made %d tool calls but only found %d evidence items",
				s.toolCallCount, s.graph.EvidenceCount()),
			SuggestedNextSteps: []string{
				"Review agent's tool usage",
				"Consider if agent is stuck in a loop",
				"Check if GitHub data is sufficient",
			},
		})
	}

	return nil, nil
}

// emit appends the intervention to history and mirrors it into the trace.
func (s *Supervisor) emit(iv Intervention) (*Intervention, error) {
	s.issued = append(s.issued, iv)
	s.logger.Info("intervention issued",
		"type", string(iv.Type), "target", iv.TargetID, "rationale", iv.Rationale)
	if err := s.store.Append(iv.traceEvent()); err != nil {
		return &iv, fmt.Errorf("record intervention: %w", err)
	}
	return &iv, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
