package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"sentinel/internal/store"
	"sentinel/internal/trace"
)

var statusFlags struct {
	runID string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded runs, or the detail of one run",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.runID, "run-id", "", "Run ID (omit to list all runs)")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if statusFlags.runID == "" {
		runs, err := st.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded. Run 'sentinel run' to start one.")
			return nil
		}
		fmt.Fprintf(out, "%-20s %-24s %-16s %-10s %s\n", "RUN", "REPO", "MILESTONE", "STATUS", "ESCALATED")
		for _, r := range runs {
			escalated := ""
			if r.Escalated {
				escalated = "yes"
			}
			fmt.Fprintf(out, "%-20s %-24s %-16s %-10s %s\n", r.RunID, r.Repo, r.Milestone, r.Status, escalated)
		}
		return nil
	}

	rec, err := st.GetRun(statusFlags.runID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run %s not found", statusFlags.runID)
	}

	fmt.Fprintf(out, "Run:       %s\n", rec.RunID)
	fmt.Fprintf(out, "Repo:      %s\n", rec.Repo)
	fmt.Fprintf(out, "Milestone: %s\n", rec.Milestone)
	fmt.Fprintf(out, "Status:    %s\n", rec.Status)
	fmt.Fprintf(out, "Started:   %s\n", rec.StartedAt)
	if rec.FinishedAt != "" {
		fmt.Fprintf(out, "Finished:  %s\n", rec.FinishedAt)
	}
	if rec.Escalated {
		fmt.Fprintf(out, "Escalated: yes\n")
	}
	if rec.ReportPath != "" {
		fmt.Fprintf(out, "Report:    %s\n", rec.ReportPath)
	}

	tracePath := filepath.Join(cfg.RunsDir, rec.RunID, "trace", "events.jsonl")
	events, err := trace.LoadEvents(tracePath)
	if err == nil && len(events) > 0 {
		fmt.Fprintf(out, "Events:    %d\n", len(events))
		counts := trace.CountByType(events)
		fmt.Fprintf(out, "  tool calls %d, observations %d, interventions %d\n",
			counts[trace.ToolCall], counts[trace.Observation], counts[trace.Intervention])
	}
	return nil
}
