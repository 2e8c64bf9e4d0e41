package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"sentinel/internal/bundle"
	"sentinel/internal/trace"
)

type memSink struct {
	events []trace.Event
}

func (m *memSink) Append(e trace.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) byType(t trace.EventType) []trace.Event {
	var out []trace.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type scriptedCompleter struct {
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
}

func (s *scriptedCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.responses) {
		return openai.ChatCompletionResponse{}, errors.New("script exhausted")
	}
	return s.responses[len(s.requests)-1], nil
}

func toolCallResponse(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       id,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
		Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
		}},
		Usage: openai.Usage{PromptTokens: 50, CompletionTokens: 10},
	}
}

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Repo:      bundle.Repo{Owner: "acme", Name: "widgets", FullName: "acme/widgets"},
		Milestone: bundle.Milestone{Title: "v1.0.0", Number: 2},
		Issues: []bundle.Issue{
			{Number: 10, Title: "Login is slow", Body: "premium users affected",
				Comments: []bundle.Comment{{Body: "p95 is 2.3 seconds", User: "carol"}}},
			{Number: 11, Title: "Add SSO", Body: "enterprise request"},
		},
	}
}

func TestRunWritesArtifactAndStops(t *testing.T) {
	dir := t.TempDir()
	sink := &memSink{}
	completer := &scriptedCompleter{responses: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "search_issues", `{"query":"login"}`),
		toolCallResponse("call_2", "write_file", `{"path":"PRD.md","content":"# PRD\n\n## Goals\n\nReduce login latency for premium users.\n"}`),
		textResponse("Done. Both documents are written."),
	}}
	w := NewWriter(testBundle(), dir, sink, completer, WithModel("gpt-4o"))

	artifacts, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	path, ok := artifacts["PRD"]
	if !ok {
		t.Fatalf("artifacts = %v, want PRD", artifacts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Reduce login latency") {
		t.Errorf("artifact content = %q", data)
	}

	if got := len(sink.byType(trace.LLMCall)); got != 3 {
		t.Errorf("llm_call count = %d, want 3", got)
	}
	if got := len(sink.byType(trace.ToolCall)); got != 2 {
		t.Errorf("tool_call count = %d, want 2", got)
	}
	if got := len(sink.byType(trace.Observation)); got != 2 {
		t.Errorf("observation count = %d, want 2", got)
	}
	artifactEvents := sink.byType(trace.Artifact)
	if len(artifactEvents) != 1 {
		t.Fatalf("artifact event count = %d, want 1", len(artifactEvents))
	}
	if artifactEvents[0].Payload["name"] != "PRD.md" {
		t.Errorf("artifact name = %v", artifactEvents[0].Payload["name"])
	}

	// Tool result was sent back to the model on the following round.
	second := completer.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != openai.ChatMessageRoleTool || last.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", last)
	}
}

func TestRunAssignsMissingToolCallIDs(t *testing.T) {
	sink := &memSink{}
	completer := &scriptedCompleter{responses: []openai.ChatCompletionResponse{
		toolCallResponse("", "read_file", `{"path":"nope.md"}`),
		textResponse("done"),
	}}
	w := NewWriter(testBundle(), t.TempDir(), sink, completer)

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := sink.byType(trace.ToolCall)
	if len(calls) != 1 {
		t.Fatalf("tool_call count = %d", len(calls))
	}
	id, _ := calls[0].Payload["tool_call_id"].(string)
	if id == "" {
		t.Error("tool_call_id not assigned")
	}
	obs := sink.byType(trace.Observation)
	if len(obs) != 1 || obs[0].Payload["tool_call_id"] != id {
		t.Errorf("observation id mismatch: %+v", obs)
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	sink := &memSink{}
	completer := &scriptedCompleter{responses: []openai.ChatCompletionResponse{
		textResponse("still thinking about the milestone"),
		textResponse("still thinking about the milestone"),
		textResponse("still thinking about the milestone"),
		textResponse("still thinking about the milestone"),
	}}
	w := NewWriter(testBundle(), t.TempDir(), sink, completer, WithMaxIterations(3))

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(sink.byType(trace.LLMCall)); got != 3 {
		t.Errorf("llm_call count = %d, want 3", got)
	}
}

func TestRunModelErrorEndsRunWithObservation(t *testing.T) {
	sink := &memSink{}
	completer := &scriptedCompleter{} // errors immediately
	w := NewWriter(testBundle(), t.TempDir(), sink, completer)

	artifacts, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("artifacts = %v", artifacts)
	}
	obs := sink.byType(trace.Observation)
	if len(obs) != 1 {
		t.Fatalf("observation count = %d", len(obs))
	}
	if obs[0].Payload["error"] == "" {
		t.Error("error not recorded")
	}
}

func TestDispatch(t *testing.T) {
	w := NewWriter(testBundle(), t.TempDir(), &memSink{}, nil)

	issue, ok := w.dispatch("github_fetch_issue", map[string]any{"issue_num": float64(10)}).(bundle.Issue)
	if !ok || issue.Title != "Login is slow" {
		t.Errorf("fetch_issue = %+v", issue)
	}

	missing := w.dispatch("github_fetch_issue", map[string]any{"issue_num": float64(99)})
	if m, ok := missing.(map[string]any); !ok || m["error"] != "Issue 99 not found" {
		t.Errorf("missing issue = %+v", missing)
	}

	comments, ok := w.dispatch("github_fetch_comments", map[string]any{"issue_num": float64(10)}).([]bundle.Comment)
	if !ok || len(comments) != 1 {
		t.Errorf("comments = %+v", comments)
	}

	if got := w.dispatch("read_file", map[string]any{"path": "does/not/exist.md"}); got != "" {
		t.Errorf("read_file missing = %q", got)
	}

	matches, ok := w.dispatch("search_issues", map[string]any{"query": "SSO"}).([]bundle.Issue)
	if !ok || len(matches) != 1 || matches[0].Number != 11 {
		t.Errorf("search = %+v", matches)
	}

	unknown := w.dispatch("launch_rocket", nil)
	if m, ok := unknown.(map[string]any); !ok || !strings.Contains(m["error"].(string), "Unknown tool") {
		t.Errorf("unknown tool = %+v", unknown)
	}
}

func TestWriteFileNestedPath(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(testBundle(), dir, &memSink{}, nil)

	res := w.dispatch("write_file", map[string]any{"path": "docs/LAUNCH_PLAN.md", "content": "# Plan"})
	m, ok := res.(map[string]any)
	if !ok || m["status"] != "success" {
		t.Fatalf("write_file = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "docs", "LAUNCH_PLAN.md")); err != nil {
		t.Errorf("file not written: %v", err)
	}
}
