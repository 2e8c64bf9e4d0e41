package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sentinel/internal/bundle"
	"sentinel/internal/evidence"
	"sentinel/internal/report"
	"sentinel/internal/store"
	"sentinel/internal/trace"
)

var reportFlags struct {
	runID string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate the report for a finished run",
	Long: `Rebuilds the evidence graph from the run's artifacts and trace (using the
cached bundle when the run record is known) and regenerates the markdown
report.`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.runID, "run-id", "", "Run ID (required)")
	_ = reportCmd.MarkFlagRequired("run-id")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runDir := filepath.Join(cfg.RunsDir, reportFlags.runID)
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("run %s not found", reportFlags.runID)
	}
	tracePath := filepath.Join(runDir, "trace", "events.jsonl")
	if _, err := os.Stat(tracePath); err != nil {
		return fmt.Errorf("trace file not found: %s", tracePath)
	}
	artifactsDir := filepath.Join(runDir, "artifacts")
	packetsDir := filepath.Join(runDir, "packets")
	reportsDir := filepath.Join(runDir, "reports")

	traceStore, err := trace.Open(tracePath)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer traceStore.Close()
	events, err := traceStore.Events()
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}

	g, err := rebuildGraph(cfg.StorePath, reportFlags.runID, artifactsDir, events)
	if err != nil {
		return err
	}

	path, err := report.Generate(reportFlags.runID, traceStore, artifactsDir, packetsDir, reportsDir, g)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report generated: %s\n", path)
	return nil
}

// rebuildGraph re-extracts claims from the run's artifacts and rebinds
// evidence. The cached bundle is used when the run record still resolves;
// otherwise binding falls back to trace observations only.
func rebuildGraph(storePath, runID, artifactsDir string, events []trace.Event) (*evidence.Graph, error) {
	g := evidence.NewGraph()
	extractor := evidence.NewExtractor()

	paths, err := filepath.Glob(filepath.Join(artifactsDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}
	for _, p := range paths {
		for _, c := range extractor.ExtractFile(p) {
			g.AddClaim(c)
		}
	}
	if g.ClaimCount() == 0 {
		return g, nil
	}

	var items []evidence.Source
	if st, err := store.Open(storePath); err == nil {
		defer st.Close()
		if rec, err := st.GetRun(runID); err == nil && rec != nil {
			if data, err := st.GetBundle(rec.Repo, rec.Milestone); err == nil && data != nil {
				var b bundle.Bundle
				if err := json.Unmarshal(data, &b); err == nil {
					items = b.EvidenceSources()
				}
			}
		}
	}

	evidence.Bind(g.Claims(), events, items, g)
	return g, nil
}
