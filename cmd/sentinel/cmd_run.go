package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"sentinel/internal/agent"
	"sentinel/internal/bundle"
	"sentinel/internal/github"
	"sentinel/internal/logging"
	"sentinel/internal/store"
	"sentinel/internal/trace"
)

var runFlags struct {
	repo          string
	milestone     string
	runID         string
	model         string
	maxIterations int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the writer agent under supervision",
	Long: `Fetches the milestone bundle, runs the LLM writer agent, and supervises the
result: claims are extracted from every artifact, bound to evidence from the
bundle and trace, and checked against the intervention policy. Escalations
produce a decision packet; every run produces a report.

The OpenAI API key is read from the OPENAI_API_KEY environment variable.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.repo, "repo", "", "Repository (owner/repo) (required)")
	f.StringVar(&runFlags.milestone, "milestone", "", "Milestone title (required)")
	f.StringVar(&runFlags.runID, "run-id", "", "Run ID (default: auto-generated timestamp)")
	f.StringVar(&runFlags.model, "model", "", "Model name (overrides config)")
	f.IntVar(&runFlags.maxIterations, "max-iterations", 0, "Agent loop cap (overrides config)")

	_ = runCmd.MarkFlagRequired("repo")
	_ = runCmd.MarkFlagRequired("milestone")
}

func generateRunID() string {
	return time.Now().Format("20060102_150405")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	runID := runFlags.runID
	if runID == "" {
		runID = generateRunID()
	}
	runDir := filepath.Join(cfg.RunsDir, runID)

	traceStore, err := trace.Open(filepath.Join(runDir, "trace", "events.jsonl"))
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer traceStore.Close()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.CreateRun(runID, runFlags.repo, runFlags.milestone); err != nil {
		return err
	}

	client := github.New(cfg.GitHub.Token,
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithLogger(logging.New("github")))

	fetcher := bundle.NewFetcher(client,
		bundle.WithCache(st),
		bundle.WithEventSink(traceStore),
		bundle.WithDataDir(cfg.DataDir),
		bundle.WithLogger(logging.New("fetch")))

	model := cfg.Agent.Model
	if runFlags.model != "" {
		model = runFlags.model
	}
	maxIterations := cfg.Agent.MaxIterations
	if runFlags.maxIterations > 0 {
		maxIterations = runFlags.maxIterations
	}

	result, err := agent.RunWithSupervisor(cmd.Context(), agent.RunOptions{
		Repo:          runFlags.repo,
		Milestone:     runFlags.milestone,
		RunID:         runID,
		RunDir:        runDir,
		Model:         model,
		MaxIterations: maxIterations,
		Logger:        logging.New("supervise"),
	}, traceStore, fetcher, openai.NewClient(apiKey))
	if err != nil {
		_ = st.FinishRun(runID, store.RunStatusFailed, false, "")
		return err
	}

	if err := st.FinishRun(runID, store.RunStatusCompleted, result.Escalated, result.ReportPath); err != nil {
		return err
	}

	// Best effort; symlinks may be unsupported on the filesystem.
	latest := filepath.Join(cfg.RunsDir, "latest")
	_ = os.Remove(latest)
	_ = os.Symlink(runID, latest)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run completed: %s\n", runID)
	fmt.Fprintf(out, "  Artifacts: %d\n", len(result.Artifacts))
	fmt.Fprintf(out, "  Events: %d\n", result.EventCount)
	fmt.Fprintf(out, "  Interventions: %d\n", result.InterventionCount)
	fmt.Fprintf(out, "  Uncovered claims: %d\n", result.UncoveredClaims)
	if result.Escalated {
		fmt.Fprintf(out, "  ESCALATED: see %s\n", result.PacketsDir)
	}
	fmt.Fprintf(out, "\n  Report: %s\n", result.ReportPath)
	fmt.Fprintf(out, "  Trace: %s\n", traceStore.Path())
	return nil
}
