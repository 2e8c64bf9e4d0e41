package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"sentinel/internal/bundle"
	"sentinel/internal/evidence"
	"sentinel/internal/logging"
	"sentinel/internal/report"
	"sentinel/internal/supervise"
	"sentinel/internal/trace"
)

// RunOptions parameterizes one supervised run.
type RunOptions struct {
	Repo          string
	Milestone     string
	RunID         string
	RunDir        string
	Model         string
	MaxIterations int
	Logger        *slog.Logger
}

// RunResult summarizes a finished supervised run.
type RunResult struct {
	RunID             string            `json:"run_id"`
	Artifacts         map[string]string `json:"artifacts"`
	ReportPath        string            `json:"report_path"`
	PacketsDir        string            `json:"packets_dir"`
	EventCount        int               `json:"event_count"`
	InterventionCount int               `json:"intervention_count"`
	UncoveredClaims   int               `json:"uncovered_claims"`
	Escalated         bool              `json:"escalated"`
}

// RunWithSupervisor fetches the milestone bundle, runs the writer agent, and
// analyzes the result under supervision: claims are extracted from every
// artifact, evidence is bound from the bundle and trace, the policy runs over
// the trailing trace window, and escalations produce a decision packet. A
// run report is always generated.
func RunWithSupervisor(ctx context.Context, opts RunOptions, store supervise.TraceStore, fetcher *bundle.Fetcher, client ChatCompleter) (*RunResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	artifactsDir := filepath.Join(opts.RunDir, "artifacts")
	packetsDir := filepath.Join(opts.RunDir, "packets")
	reportsDir := filepath.Join(opts.RunDir, "reports")
	for _, dir := range []string{artifactsDir, packetsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
	}

	err := store.Append(trace.NewDecision("run_start", map[string]any{
		"repo":      opts.Repo,
		"milestone": opts.Milestone,
		"run_id":    opts.RunID,
	}))
	if err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	b, err := fetcher.Fetch(ctx, opts.Repo, opts.Milestone)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}

	packets := report.NewPacketWriter(packetsDir, opts.RunID,
		report.RunContext{Repo: opts.Repo, Milestone: opts.Milestone, IssueCount: len(b.Issues)},
		report.WithPacketEventSink(store),
		report.WithPacketLogger(logger))

	hook := supervise.NewHook(store,
		supervise.WithEvidenceSource(b),
		supervise.WithPacketSink(packets, opts.RunID),
		supervise.WithHookLogger(logger))

	writer := NewWriter(b, artifactsDir, store, client,
		WithModel(opts.Model),
		WithMaxIterations(opts.MaxIterations),
		WithWriterLogger(logger))

	artifacts, err := writer.Run(ctx)
	if err != nil {
		_ = store.Append(trace.New(trace.Observation, map[string]any{
			"error": err.Error(),
			"type":  "agent_error",
		}))
		return nil, fmt.Errorf("agent run: %w", err)
	}

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := hook.OnArtifactCreated(artifacts[name], name); err != nil {
			return nil, fmt.Errorf("register artifact %s: %w", name, err)
		}
	}

	iv, err := hook.OnStep(nil)
	if err != nil {
		return nil, fmt.Errorf("analyze run: %w", err)
	}
	escalated := iv != nil && iv.Type == supervise.Escalate

	reportPath, err := report.Generate(opts.RunID, store, artifactsDir, packetsDir, reportsDir, hook.Graph())
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}

	events, err := store.Events()
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return &RunResult{
		RunID:             opts.RunID,
		Artifacts:         artifacts,
		ReportPath:        reportPath,
		PacketsDir:        packetsDir,
		EventCount:        len(events),
		InterventionCount: len(hook.Interventions()),
		UncoveredClaims:   len(hook.Graph().UncoveredClaims(evidence.SeverityHigh)),
		Escalated:         escalated,
	}, nil
}
