// Package trace is the append-only event log for a supervised run. The trace
// is the single source of truth: every other view of a run (graph, report,
// packet) is derived by re-scanning it.
package trace

import (
	"time"
)

// EventType enumerates the event kinds recorded in a trace.
type EventType string

const (
	ToolCall         EventType = "tool_call"
	Observation      EventType = "observation"
	Artifact         EventType = "artifact"
	Decision         EventType = "decision"
	Intervention     EventType = "intervention"
	EscalationPacket EventType = "escalation_packet"
	LLMCall          EventType = "llm_call"
)

// Event is one trace record. Immutable once appended. Payload is the open
// key-value part of the wire format; the typed constructors below give each
// event kind an explicit schema at the creation site.
type Event struct {
	Type    EventType      `json:"type"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload"`
}

// NowISO returns the current UTC time as an ISO 8601 string.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// New creates an event of the given type with the current timestamp.
func New(t EventType, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, TS: NowISO(), Payload: payload}
}

// NewToolCall records a tool dispatch. params carries the tool's own
// arguments and stays an open map; tool parameters are genuinely
// heterogeneous.
func NewToolCall(tool string, params map[string]any, callID string) Event {
	p := map[string]any{
		"tool":       tool,
		"parameters": params,
	}
	if callID != "" {
		p["tool_call_id"] = callID
	}
	return New(ToolCall, p)
}

// NewObservation records a tool result. result is opaque to the core; an
// error field inside it is carried through untouched.
func NewObservation(result any, callID string) Event {
	p := map[string]any{"result": result}
	if callID != "" {
		p["tool_call_id"] = callID
	}
	return New(Observation, p)
}

// NewArtifact records creation of an artifact file.
func NewArtifact(path, artifactType, name string) Event {
	return New(Artifact, map[string]any{
		"path": path,
		"type": artifactType,
		"name": name,
	})
}

// NewDecision records an orchestration decision (run_start, escalation, ...).
// extra fields are merged in beside the decision type.
func NewDecision(decisionType string, extra map[string]any) Event {
	p := map[string]any{"type": decisionType}
	for k, v := range extra {
		p[k] = v
	}
	return New(Decision, p)
}

// NewLLMCall records one model round with its token usage.
func NewLLMCall(model string, promptTokens, completionTokens, iteration int) Event {
	return New(LLMCall, map[string]any{
		"model":             model,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"iteration":         iteration,
	})
}

// StringField returns a string payload field, or "" when absent or not a
// string.
func (e Event) StringField(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// MapField returns a nested map payload field, or nil.
func (e Event) MapField(key string) map[string]any {
	m, _ := e.Payload[key].(map[string]any)
	return m
}

// ArtifactPath returns the referenced file for artifact events ("" for other
// kinds).
func (e Event) ArtifactPath() string {
	if e.Type != Artifact {
		return ""
	}
	return e.StringField("path")
}

// ObservationResult returns the result (or legacy data) map of an observation
// event, or nil when the result is not a map.
func (e Event) ObservationResult() map[string]any {
	if e.Type != Observation {
		return nil
	}
	if m := e.MapField("result"); m != nil {
		return m
	}
	return e.MapField("data")
}

// CountByType tallies events per type.
func CountByType(events []Event) map[EventType]int {
	counts := make(map[EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	return counts
}

// Window returns the trailing n events (all of them when fewer).
func Window(events []Event, n int) []Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
