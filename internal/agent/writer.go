// Package agent runs the LLM document writer that drafts a PRD and launch
// plan from a milestone bundle, recording every model round and tool call in
// the trace.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"sentinel/internal/bundle"
	"sentinel/internal/logging"
	"sentinel/internal/trace"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// DefaultMaxIterations bounds the agent loop.
const DefaultMaxIterations = 30

const systemPrompt = `You are an agent that generates Product Requirements Documents (PRD) and Launch Plans from GitHub milestone data.

Your goal is to:
1. Analyze the GitHub milestone and issues
2. Generate a comprehensive PRD.md with sections: Goals, Non-goals, Scope, Metrics, Risks
3. Generate a LAUNCH_PLAN.md with rollout strategy

You have access to tools to fetch issue details, read/write files, and search issues.
Use the tools to gather information and write the documents incrementally.
Reply with "done" when both documents are written.`

// ChatCompleter is the model surface the writer needs. *openai.Client
// satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EventSink receives the trace events the writer emits.
type EventSink interface {
	Append(trace.Event) error
}

// Writer is the supervised document-writing agent.
type Writer struct {
	bundle        *bundle.Bundle
	outputDir     string
	sink          EventSink
	client        ChatCompleter
	model         string
	maxIterations int
	logger        *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithModel overrides the default model.
func WithModel(model string) WriterOption {
	return func(w *Writer) {
		if model != "" {
			w.model = model
		}
	}
}

// WithMaxIterations bounds the agent loop.
func WithMaxIterations(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxIterations = n
		}
	}
}

// WithWriterLogger configures structured logging.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a Writer drafting into outputDir.
func NewWriter(b *bundle.Bundle, outputDir string, sink EventSink, client ChatCompleter, opts ...WriterOption) *Writer {
	w := &Writer{
		bundle:        b,
		outputDir:     outputDir,
		sink:          sink,
		client:        client,
		model:         DefaultModel,
		maxIterations: DefaultMaxIterations,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// toolDefinitions describes the agent's tools for function calling.
func toolDefinitions() []openai.Tool {
	fn := func(name, desc string, params map[string]any) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  params,
			},
		}
	}
	return []openai.Tool{
		fn("github_fetch_issue", "Fetch details of a specific issue by number", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"issue_num": map[string]any{"type": "integer", "description": "Issue number"},
			},
			"required": []string{"issue_num"},
		}),
		fn("github_fetch_comments", "Fetch comments for a specific issue", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"issue_num": map[string]any{"type": "integer", "description": "Issue number"},
			},
			"required": []string{"issue_num"},
		}),
		fn("read_file", "Read contents of a file", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "File path"},
			},
			"required": []string{"path"},
		}),
		fn("write_file", "Write content to a file", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "File path"},
				"content": map[string]any{"type": "string", "description": "File content"},
			},
			"required": []string{"path", "content"},
		}),
		fn("search_issues", "Search issues by keyword", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
			},
			"required": []string{"query"},
		}),
	}
}

// Run drives the model loop until the agent reports completion or the
// iteration cap is hit. Returns the artifact name → path map for every
// markdown file the agent wrote.
func (w *Writer) Run(ctx context.Context) (map[string]string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
			`Generate PRD and Launch Plan for milestone: %s

Repository: %s
Issues: %d issues in this milestone

Start by exploring the issues and then write PRD.md and LAUNCH_PLAN.md.`,
			w.bundle.Milestone.Title, w.bundle.Repo.FullName, len(w.bundle.Issues))},
	}
	tools := toolDefinitions()

	for iteration := 1; iteration <= w.maxIterations; iteration++ {
		resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:      w.model,
			Messages:   messages,
			Tools:      tools,
			ToolChoice: "auto",
		})
		if err != nil {
			// Model failure ends the run; whatever was written so far
			// still counts as artifacts.
			w.logger.Error("model call failed", "iteration", iteration, "error", err)
			w.emit(trace.New(trace.Observation, map[string]any{
				"error":     err.Error(),
				"iteration": iteration,
			}))
			break
		}
		w.emit(trace.NewLLMCall(w.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, iteration))

		if len(resp.Choices) == 0 {
			break
		}
		msg := resp.Choices[0].Message
		messages = append(messages, msg)

		if msg.Content != "" && strings.Contains(strings.ToLower(msg.Content), "done") {
			break
		}

		if len(msg.ToolCalls) == 0 {
			lower := strings.ToLower(msg.Content)
			if strings.Contains(lower, "complete") || strings.Contains(lower, "finished") {
				break
			}
			continue
		}

		for _, tc := range msg.ToolCalls {
			callID := tc.ID
			if callID == "" {
				callID = uuid.NewString()
			}
			params := map[string]any{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				params = map[string]any{}
			}

			w.emit(trace.NewToolCall(tc.Function.Name, params, callID))
			result := w.dispatch(tc.Function.Name, params)
			w.emit(trace.NewObservation(result, callID))

			content, ok := result.(string)
			if !ok {
				data, err := json.Marshal(result)
				if err != nil {
					data = []byte(`{"error":"unserializable result"}`)
				}
				content = string(data)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: callID,
				Content:    content,
			})
		}
	}

	artifacts := map[string]string{}
	paths, err := filepath.Glob(filepath.Join(w.outputDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}
	for _, p := range paths {
		base := filepath.Base(p)
		artifacts[strings.TrimSuffix(base, filepath.Ext(base))] = p
	}
	return artifacts, nil
}

// dispatch executes one tool call. Errors are returned as result payloads so
// the model can react to them.
func (w *Writer) dispatch(name string, params map[string]any) any {
	switch name {
	case "github_fetch_issue":
		num := intParam(params, "issue_num")
		for _, issue := range w.bundle.Issues {
			if issue.Number == num {
				return issue
			}
		}
		return map[string]any{"error": fmt.Sprintf("Issue %d not found", num)}

	case "github_fetch_comments":
		num := intParam(params, "issue_num")
		for _, issue := range w.bundle.Issues {
			if issue.Number == num {
				return issue.Comments
			}
		}
		return []bundle.Comment{}

	case "read_file":
		data, err := os.ReadFile(stringParam(params, "path"))
		if err != nil {
			return ""
		}
		return string(data)

	case "write_file":
		return w.writeFile(stringParam(params, "path"), stringParam(params, "content"))

	case "search_issues":
		query := strings.ToLower(stringParam(params, "query"))
		matches := []bundle.Issue{}
		for _, issue := range w.bundle.Issues {
			if strings.Contains(strings.ToLower(issue.Title), query) ||
				strings.Contains(strings.ToLower(issue.Body), query) {
				matches = append(matches, issue)
			}
		}
		return matches

	default:
		return map[string]any{"error": "Unknown tool: " + name}
	}
}

// writeFile writes an artifact under the output dir and records document
// artifacts in the trace.
func (w *Writer) writeFile(path, content string) any {
	full := filepath.Join(w.outputDir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return map[string]any{"error": err.Error()}
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return map[string]any{"error": err.Error()}
	}
	ext := filepath.Ext(path)
	if ext == ".md" || ext == ".txt" {
		w.emit(trace.NewArtifact(full, "document", filepath.Base(full)))
	}
	return map[string]any{"status": "success", "path": full}
}

func (w *Writer) emit(e trace.Event) {
	if err := w.sink.Append(e); err != nil {
		w.logger.Warn("trace append failed", "error", err)
	}
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
