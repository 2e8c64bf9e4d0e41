package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"sentinel/internal/bundle"
	"sentinel/internal/github"
	"sentinel/internal/trace"
)

type stubGitHub struct{}

func (stubGitHub) MilestoneByTitle(_ context.Context, repo, title string) (*github.Milestone, error) {
	return &github.Milestone{Title: title, Number: 2, Description: "first release", State: "open"}, nil
}

func (stubGitHub) Issues(_ context.Context, repo string, milestoneNumber int) ([]github.Issue, error) {
	return []github.Issue{
		{Number: 10, Title: "Login is slow", Body: "premium users affected", User: github.User{Login: "alice"}},
	}, nil
}

func (stubGitHub) Comments(_ context.Context, repo string, number int) ([]github.Comment, error) {
	return nil, nil
}

func TestRunWithSupervisor(t *testing.T) {
	runDir := t.TempDir()
	store, err := trace.Open(filepath.Join(runDir, "trace", "events.jsonl"))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer store.Close()

	// The agent writes a PRD whose Goals claim has no matching issue text,
	// leaving one uncovered HIGH claim.
	prd := "# PRD\n\n## Goals\n\nImplement fingerprint authentication for kiosk hardware devices.\n"
	completer := &scriptedCompleter{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "write_file", `{"path":"PRD.md","content":"` +
			strings.ReplaceAll(strings.ReplaceAll(prd, "\n", `\n`), `"`, `\"`) + `"}`),
		textResponse("Done."),
	}}

	fetcher := bundle.NewFetcher(stubGitHub{})
	result, err := RunWithSupervisor(context.Background(), RunOptions{
		Repo:      "acme/widgets",
		Milestone: "v1.0.0",
		RunID:     "run-1",
		RunDir:    runDir,
	}, store, fetcher, completer)
	if err != nil {
		t.Fatalf("RunWithSupervisor: %v", err)
	}

	if result.RunID != "run-1" {
		t.Errorf("run_id = %q", result.RunID)
	}
	if _, ok := result.Artifacts["PRD"]; !ok {
		t.Fatalf("artifacts = %v", result.Artifacts)
	}
	if result.InterventionCount != 1 {
		t.Errorf("intervention count = %d, want 1", result.InterventionCount)
	}
	if result.UncoveredClaims != 1 {
		t.Errorf("uncovered claims = %d, want 1", result.UncoveredClaims)
	}
	if result.Escalated {
		t.Error("unexpected escalation")
	}

	data, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "REQUEST_EVIDENCE") {
		t.Error("report missing intervention")
	}

	events, err := store.Events()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != result.EventCount {
		t.Errorf("event count = %d, recorded %d", len(events), result.EventCount)
	}
	first := events[0]
	if first.Type != trace.Decision || first.Payload["type"] != "run_start" {
		t.Errorf("first event = %+v", first)
	}
	var sawIntervention bool
	for _, e := range events {
		if e.Type == trace.Intervention {
			sawIntervention = true
		}
	}
	if !sawIntervention {
		t.Error("intervention not mirrored into trace")
	}
}

func TestRunWithSupervisorCleanRun(t *testing.T) {
	runDir := t.TempDir()
	store, err := trace.Open(filepath.Join(runDir, "trace", "events.jsonl"))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer store.Close()

	// Goals claim shares keywords with the issue, so it binds and no
	// intervention fires.
	prd := "# PRD\n\n## Goals\n\nReduce slow login latency for premium users.\n"
	completer := &scriptedCompleter{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "write_file", `{"path":"PRD.md","content":"` +
			strings.ReplaceAll(prd, "\n", `\n`) + `"}`),
		textResponse("Done."),
	}}

	result, err := RunWithSupervisor(context.Background(), RunOptions{
		Repo:      "acme/widgets",
		Milestone: "v1.0.0",
		RunID:     "run-2",
		RunDir:    runDir,
	}, store, bundle.NewFetcher(stubGitHub{}), completer)
	if err != nil {
		t.Fatalf("RunWithSupervisor: %v", err)
	}
	if result.InterventionCount != 0 {
		t.Errorf("intervention count = %d, want 0", result.InterventionCount)
	}
	if result.UncoveredClaims != 0 {
		t.Errorf("uncovered claims = %d, want 0", result.UncoveredClaims)
	}
}
