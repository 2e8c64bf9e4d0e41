// Package boundary holds the structural and statistical risk checks run over
// a recent trace window. The detector is stateless: every call recomputes
// signals from the current graph, events, and artifact content.
package boundary

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"sentinel/internal/evidence"
	"sentinel/internal/trace"
)

// Signal types.
const (
	TypeMissingEvidence  = "missing_evidence"
	TypeEmptyMetrics     = "empty_metrics"
	TypeMissingTradeoffs = "missing_tradeoffs"
	TypeLowEvidenceRate  = "low_evidence_rate"
)

// Event is one detected risk condition. Ephemeral: recomputed every call and
// never persisted on its own, only via the intervention it triggers.
type Event struct {
	Type      string `json:"type"`
	Section   string `json:"section"`
	ClaimID   string `json:"claim_id"`
	Rationale string `json:"rationale"`
}

var (
	// measurableRe matches a percentage or a count with a unit, the minimum
	// bar for a metrics section to be considered non-empty.
	measurableRe = regexp.MustCompile(`(?i)\d+%|\d+\s*(?:users?|requests?|ms|seconds?)`)
	// tradeoffRe matches the phrases that signal an explicit scope tradeoff.
	tradeoffRe = regexp.MustCompile(`(?i)trade.?off|out of scope|not included|excluded|limitation`)
)

// lowEvidenceMinCalls is the tool-call count above which the call/observation
// ratio is checked.
const lowEvidenceMinCalls = 20

// lowEvidenceRatio is the minimum observations-per-tool-call ratio.
const lowEvidenceRatio = 0.3

// Detector runs the boundary checks. It holds no per-run state, only the
// section parser shared with the claim extractor.
type Detector struct {
	parser evidence.SectionParser
}

// NewDetector returns a Detector using the default markdown section parser.
func NewDetector() *Detector {
	return &Detector{parser: evidence.NewMarkdownParser()}
}

// Detect evaluates all four checks over the window. The checks are
// independent and non-exclusive; the artifacts argument is part of the
// contract but artifact paths are taken from the window's artifact events.
// Artifact content is re-read from disk on every call — the window is small,
// so no caching.
func (d *Detector) Detect(events []trace.Event, g *evidence.Graph, artifacts map[string]string) []Event {
	var signals []Event

	for _, claim := range g.UncoveredClaims(evidence.SeverityHigh) {
		signals = append(signals, Event{
			Type:      TypeMissingEvidence,
			Section:   claim.Section,
			ClaimID:   claim.ID,
			Rationale: fmt.Sprintf("HIGH severity claim in %s has no supporting evidence", claim.Section),
		})
	}

	for _, e := range events {
		path := e.ArtifactPath()
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signals = append(signals, d.checkArtifact(string(data))...)
	}

	if sig := checkEvidenceRate(events); sig != nil {
		signals = append(signals, *sig)
	}

	return signals
}

// checkArtifact evaluates the per-document checks: a metrics section without
// measurable indicators, and a scope section that talks about in/out without
// naming tradeoffs.
func (d *Detector) checkArtifact(content string) []Event {
	var signals []Event

	if body, ok := d.parser.Body(content, evidence.SectionMetrics); ok {
		if !measurableRe.MatchString(body) {
			signals = append(signals, Event{
				Type:      TypeEmptyMetrics,
				Section:   evidence.SectionMetrics,
				Rationale: "Metrics section exists but lacks measurable indicators",
			})
		}
	}

	if body, ok := d.parser.Body(content, evidence.SectionScope); ok {
		lower := strings.ToLower(body)
		if strings.Contains(lower, "in") && strings.Contains(lower, "out") && !tradeoffRe.MatchString(body) {
			signals = append(signals, Event{
				Type:      TypeMissingTradeoffs,
				Section:   evidence.SectionScope,
				Rationale: "Scope section mentions in/out but lacks explicit tradeoffs",
			})
		}
	}

	return signals
}

// checkEvidenceRate flags a window with many tool calls but few observations.
func checkEvidenceRate(events []trace.Event) *Event {
	counts := trace.CountByType(events)
	toolCalls := counts[trace.ToolCall]
	if toolCalls <= lowEvidenceMinCalls {
		return nil
	}
	observations := counts[trace.Observation]
	if float64(observations) >= float64(toolCalls)*lowEvidenceRatio {
		return nil
	}
	return &Event{
		Type:      TypeLowEvidenceRate,
		Rationale: fmt.Sprintf("Agent made %d tool calls but few resulted in evidence binding", toolCalls),
	}
}
