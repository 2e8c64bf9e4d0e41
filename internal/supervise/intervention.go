// Package supervise contains the stateful intervention policy and the hook
// that lets an agent loop (in-process or external) plug into supervision.
package supervise

import "sentinel/internal/trace"

// InterventionType enumerates the corrective signals the supervisor issues.
type InterventionType string

const (
	RequestEvidence InterventionType = "REQUEST_EVIDENCE"
	RequestOptions  InterventionType = "REQUEST_OPTIONS"
	RequestRisks    InterventionType = "REQUEST_RISKS"
	RequestMetrics  InterventionType = "REQUEST_METRICS"
	Escalate        InterventionType = "ESCALATE"
)

// SuggestedToolCall is a concrete tool invocation the agent could make to
// address an intervention.
type SuggestedToolCall struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Intervention is one supervisor-issued corrective signal. Immutable once
// created; mirrored into the trace as an intervention event.
type Intervention struct {
	Type               InterventionType    `json:"type"`
	TargetID           string              `json:"target_id"`
	Rationale          string              `json:"rationale"`
	SuggestedNextSteps []string            `json:"suggested_next_steps,omitempty"`
	SuggestedToolCalls []SuggestedToolCall `json:"suggested_tool_calls,omitempty"`
}

// traceEvent mirrors the intervention into the trace wire format.
func (iv Intervention) traceEvent() trace.Event {
	calls := make([]map[string]any, 0, len(iv.SuggestedToolCalls))
	for _, c := range iv.SuggestedToolCalls {
		calls = append(calls, map[string]any{"tool": c.Tool, "params": c.Params})
	}
	return trace.New(trace.Intervention, map[string]any{
		"type":                 string(iv.Type),
		"target_id":            iv.TargetID,
		"rationale":            iv.Rationale,
		"suggested_next_steps": iv.SuggestedNextSteps,
		"suggested_tool_calls": calls,
	})
}

// TraceStore is the event storage contract the policy and hook depend on.
// sentinel's JSONL store satisfies it; external loops may bring their own.
type TraceStore interface {
	Append(trace.Event) error
	Events() ([]trace.Event, error)
}
