package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"sentinel/internal/supervise"
	"sentinel/internal/trace"
)

var replayFlags struct {
	runID  string
	window int
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run the supervision policy over a recorded trace",
	Long: `Reads a run's trace without modifying it, rebuilds the evidence graph from
the run's artifacts, and replays the intervention policy over the trailing
event window. Useful for inspecting what the supervisor would decide today
against an old run.`,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.runID, "run-id", "", "Run ID (required)")
	f.IntVar(&replayFlags.window, "window", 20, "Trailing event window to analyze")
	_ = replayCmd.MarkFlagRequired("run-id")
}

// replayStore serves recorded events and swallows appends so a replay never
// mutates the original trace.
type replayStore struct {
	events   []trace.Event
	appended []trace.Event
}

func (s *replayStore) Append(e trace.Event) error {
	s.appended = append(s.appended, e)
	return nil
}

func (s *replayStore) Events() ([]trace.Event, error) { return s.events, nil }

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runDir := filepath.Join(cfg.RunsDir, replayFlags.runID)
	tracePath := filepath.Join(runDir, "trace", "events.jsonl")
	events, err := trace.LoadEvents(tracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("trace is empty or missing: %s", tracePath)
	}

	artifactsDir := filepath.Join(runDir, "artifacts")
	rs := &replayStore{events: events}

	hook := supervise.NewHook(rs)
	artifactPaths, err := filepath.Glob(filepath.Join(artifactsDir, "*.md"))
	if err != nil {
		return fmt.Errorf("scan artifacts: %w", err)
	}
	for _, p := range artifactPaths {
		if err := hook.OnArtifactCreated(p, ""); err != nil {
			return fmt.Errorf("register artifact: %w", err)
		}
	}

	iv, err := hook.OnStep(trace.Window(events, replayFlags.window))
	if err != nil {
		return fmt.Errorf("replay policy: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replay of %s (%d events)\n\n", replayFlags.runID, len(events))

	counts := trace.CountByType(events)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	fmt.Fprintf(out, "Events:\n")
	for _, t := range types {
		fmt.Fprintf(out, "  %-18s %d\n", t, counts[trace.EventType(t)])
	}

	fmt.Fprintf(out, "\nClaims: %d (uncovered HIGH: %d)\n",
		hook.Graph().ClaimCount(), len(hook.Graph().UncoveredClaims("HIGH")))
	fmt.Fprintf(out, "Evidence: %d\n", hook.Graph().EvidenceCount())

	if iv == nil {
		fmt.Fprintf(out, "\nPolicy verdict: no intervention\n")
		return nil
	}
	fmt.Fprintf(out, "\nPolicy verdict: %s\n", iv.Type)
	fmt.Fprintf(out, "  Target: %s\n", iv.TargetID)
	fmt.Fprintf(out, "  Rationale: %s\n", iv.Rationale)
	for _, step := range iv.SuggestedNextSteps {
		fmt.Fprintf(out, "  - %s\n", step)
	}
	return nil
}
