package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sentinel/internal/evidence"
	"sentinel/internal/trace"
)

// EventSource provides the full event history a report summarizes.
type EventSource interface {
	Events() ([]trace.Event, error)
}

// Generate renders the end-of-run report into reportsDir/report.md. It
// summarizes the trace, lists interventions and still-uncovered claims, and
// links artifacts and packets relative to the run directory.
func Generate(runID string, src EventSource, artifactsDir, packetsDir, reportsDir string, g *evidence.Graph) (string, error) {
	events, err := src.Events()
	if err != nil {
		return "", fmt.Errorf("read trace: %w", err)
	}
	counts := trace.CountByType(events)

	var interventions []trace.Event
	for _, e := range events {
		if e.Type == trace.Intervention {
			interventions = append(interventions, e)
		}
	}
	uncovered := g.UncoveredClaims("HIGH")

	artifacts, _ := filepath.Glob(filepath.Join(artifactsDir, "*.md"))
	packets, _ := filepath.Glob(filepath.Join(packetsDir, "packet_*.md"))

	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(reportsDir, "report.md")
	runDir := filepath.Dir(reportsDir)

	var b strings.Builder
	b.WriteString("# Sentinel Run Report\n\n")
	fmt.Fprintf(&b, "**Run ID**: %s\n\n", runID)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Events**: %d\n", len(events))
	fmt.Fprintf(&b, "- **LLM Calls**: %d\n", counts[trace.LLMCall])
	fmt.Fprintf(&b, "- **Tool Calls**: %d\n", counts[trace.ToolCall])
	fmt.Fprintf(&b, "- **Artifacts Created**: %d\n", counts[trace.Artifact])
	fmt.Fprintf(&b, "- **Interventions Issued**: %d\n", len(interventions))
	fmt.Fprintf(&b, "- **Uncovered Claims**: %d\n\n", len(uncovered))

	b.WriteString("## Interventions\n\n")
	if len(interventions) > 0 {
		for i, e := range interventions {
			fmt.Fprintf(&b, "### Intervention %d\n\n", i+1)
			fmt.Fprintf(&b, "- **Type**: %s\n", payloadString(e, "type"))
			fmt.Fprintf(&b, "- **Rationale**: %s\n", payloadString(e, "rationale"))
			fmt.Fprintf(&b, "- **Target**: %s\n\n", payloadString(e, "target_id"))
		}
	} else {
		b.WriteString("No interventions issued.\n\n")
	}

	b.WriteString("## Uncovered Claims\n\n")
	if len(uncovered) > 0 {
		for _, c := range uncovered {
			fmt.Fprintf(&b, "- **%s**: %s... (Severity: %s)\n", c.Section, head(c.Text, 100), c.Severity)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("All HIGH severity claims have supporting evidence.\n\n")
	}

	b.WriteString("## Artifacts\n\n")
	writeLinks(&b, artifacts, runDir, "No artifacts found.\n\n")

	b.WriteString("## Packets\n\n")
	writeLinks(&b, packets, runDir, "No escalation packets generated.\n\n")

	b.WriteString("## Trace\n\n")
	fmt.Fprintf(&b, "Trace file: `trace/events.jsonl` (%d events)\n\n", len(events))

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// writeLinks renders file links relative to the run directory, or the empty
// message when there are none.
func writeLinks(b *strings.Builder, paths []string, runDir, empty string) {
	if len(paths) == 0 {
		b.WriteString(empty)
		return
	}
	for _, p := range paths {
		rel, err := filepath.Rel(runDir, p)
		if err != nil {
			rel = p
		}
		fmt.Fprintf(b, "- [%s](%s)\n", filepath.Base(p), rel)
	}
	b.WriteString("\n")
}

func payloadString(e trace.Event, key string) string {
	if s, ok := e.Payload[key].(string); ok && s != "" {
		return s
	}
	return "N/A"
}
