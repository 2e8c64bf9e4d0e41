// Package report renders the human-facing outputs of a run: escalation
// decision packets and the end-of-run markdown report.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sentinel/internal/evidence"
	"sentinel/internal/logging"
	"sentinel/internal/supervise"
	"sentinel/internal/trace"
)

// packetEvidenceLimit caps the evidence listing in a packet.
const packetEvidenceLimit = 10

// RunContext carries run metadata into rendered outputs.
type RunContext struct {
	Repo       string
	Milestone  string
	IssueCount int
}

// EventSink receives the trace events renderers emit.
type EventSink interface {
	Append(trace.Event) error
}

// PacketWriter renders escalation decision packets into a directory,
// numbering them packet_0.md, packet_1.md, ... It satisfies the supervision
// hook's packet sink contract.
type PacketWriter struct {
	dir    string
	runID  string
	meta   RunContext
	sink   EventSink
	logger *slog.Logger
}

// PacketOption configures a PacketWriter.
type PacketOption func(*PacketWriter)

// WithPacketEventSink records an escalation_packet event per packet written.
func WithPacketEventSink(s EventSink) PacketOption {
	return func(w *PacketWriter) { w.sink = s }
}

// WithPacketLogger configures structured logging.
func WithPacketLogger(l *slog.Logger) PacketOption {
	return func(w *PacketWriter) { w.logger = l }
}

// NewPacketWriter creates a PacketWriter targeting dir.
func NewPacketWriter(dir, runID string, meta RunContext, opts ...PacketOption) *PacketWriter {
	w := &PacketWriter{
		dir:    dir,
		runID:  runID,
		meta:   meta,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WritePacket renders the decision packet for one escalation and returns its
// path. The packet number continues from whatever packets already exist in
// the directory.
func (w *PacketWriter) WritePacket(iv supervise.Intervention, g *evidence.Graph) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create packets dir: %w", err)
	}
	existing, err := filepath.Glob(filepath.Join(w.dir, "packet_*.md"))
	if err != nil {
		return "", fmt.Errorf("scan packets dir: %w", err)
	}
	num := len(existing)
	path := filepath.Join(w.dir, fmt.Sprintf("packet_%d.md", num))

	uncovered := g.UncoveredClaims("HIGH")

	var b strings.Builder
	fmt.Fprintf(&b, "# Decision Packet %d\n\n", num)
	fmt.Fprintf(&b, "**Run ID**: %s\n\n", w.runID)
	fmt.Fprintf(&b, "**Generated**: %s\n\n", trace.NowISO())

	b.WriteString("## Context\n\n")
	fmt.Fprintf(&b, "- **Repository**: %s\n", orNA(w.meta.Repo))
	fmt.Fprintf(&b, "- **Milestone**: %s\n", orNA(w.meta.Milestone))
	fmt.Fprintf(&b, "- **Issue Count**: %d\n\n", w.meta.IssueCount)

	b.WriteString("## Decision Boundary Reason\n\n")
	fmt.Fprintf(&b, "Escalation triggered by: %s\n\n", iv.Type)
	fmt.Fprintf(&b, "**Rationale**: %s\n\n", iv.Rationale)

	b.WriteString("## Uncovered Claims\n\n")
	if len(uncovered) > 0 {
		for _, c := range uncovered {
			fmt.Fprintf(&b, "### %s: %s...\n\n", c.Section, head(c.Text, 100))
			fmt.Fprintf(&b, "- **Severity**: %s\n", c.Severity)
			fmt.Fprintf(&b, "- **Source**: %s\n\n", c.ArtifactPath)
		}
	} else {
		b.WriteString("No uncovered HIGH severity claims.\n\n")
	}

	b.WriteString("## Evidence Gathered\n\n")
	items := g.EvidenceItems()
	if len(items) > 0 {
		if len(items) > packetEvidenceLimit {
			items = items[:packetEvidenceLimit]
		}
		for i, ev := range items {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "- %s... (from %s)", head(ev.Snippet, 100), ev.SourceRef)
		}
		b.WriteString("\n\n")
	} else {
		b.WriteString("No evidence gathered yet.\n\n")
	}

	b.WriteString("## Assumptions\n\n")
	b.WriteString("- Agent is working with available GitHub milestone data\n")
	b.WriteString("- Evidence binding uses keyword matching\n")
	b.WriteString("- HIGH severity claims require supporting evidence\n\n")

	b.WriteString("## Recommended Next Actions\n\n")
	for _, step := range iv.SuggestedNextSteps {
		fmt.Fprintf(&b, "- %s\n", step)
	}
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write packet: %w", err)
	}
	w.logger.Info("decision packet written", "path", path, "uncovered_claims", len(uncovered))

	if w.sink != nil {
		err := w.sink.Append(trace.New(trace.EscalationPacket, map[string]any{
			"run_id":                 w.runID,
			"packet_path":            path,
			"uncovered_claims_count": len(uncovered),
		}))
		if err != nil {
			return "", fmt.Errorf("record packet event: %w", err)
		}
	}
	return path, nil
}

// head returns the first n bytes of s.
func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
