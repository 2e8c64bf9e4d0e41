package supervise

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"sentinel/internal/evidence"
	"sentinel/internal/logging"
	"sentinel/internal/trace"
)

// defaultWindowSize is the trailing event window analyzed when the caller
// does not supply one.
const defaultWindowSize = 20

// Handler lets the embedding loop see each intervention before it takes
// effect. Returning Stop forces an immediate escalation.
type Handler interface {
	HandleIntervention(iv Intervention, ctx HandlerContext) HandlerResponse
}

// HandlerContext is the state snapshot given to a Handler.
type HandlerContext struct {
	Events            []trace.Event
	Artifacts         map[string]string
	Graph             *evidence.Graph
	InterventionCount int
}

// HandlerResponse is the handler's verdict. Action is free-form and opaque
// to the hook.
type HandlerResponse struct {
	Stop   bool
	Action string
}

// EvidenceSource supplies binder pool items in the generic {text, source_ref,
// source_type} contract, decoupling binding from any particular bundle shape.
type EvidenceSource interface {
	EvidenceSources() []evidence.Source
}

// PacketSink receives escalations and renders the human-facing decision
// packet. Packet formatting stays outside the core; the sink gets the
// triggering intervention and read access to the graph.
type PacketSink interface {
	WritePacket(iv Intervention, g *evidence.Graph) (path string, err error)
}

// Hook wires supervision into an event loop: it tracks artifacts, re-extracts
// claims and rebinds evidence as artifacts appear, and runs the policy on
// demand.
type Hook struct {
	store     TraceStore
	extractor *evidence.Extractor
	handler   Handler
	source    EvidenceSource
	items     []evidence.Source
	packets   PacketSink
	runID     string
	logger    *slog.Logger

	graph         *evidence.Graph
	supervisor    *Supervisor
	artifacts     map[string]string
	interventions []Intervention
}

// HookOption configures a Hook during construction.
type HookOption func(*Hook)

// WithHandler installs an intervention handler.
func WithHandler(h Handler) HookOption {
	return func(hk *Hook) { hk.handler = h }
}

// WithEvidenceSource installs a dynamic evidence source, preferred over
// static items.
func WithEvidenceSource(src EvidenceSource) HookOption {
	return func(hk *Hook) { hk.source = src }
}

// WithEvidenceItems installs a static binder pool.
func WithEvidenceItems(items []evidence.Source) HookOption {
	return func(hk *Hook) { hk.items = items }
}

// WithPacketSink installs the escalation packet writer.
func WithPacketSink(sink PacketSink, runID string) HookOption {
	return func(hk *Hook) {
		hk.packets = sink
		hk.runID = runID
	}
}

// WithHookLogger configures structured logging.
func WithHookLogger(l *slog.Logger) HookOption {
	return func(hk *Hook) { hk.logger = l }
}

// NewHook creates a supervision hook over the given trace store. The hook
// owns its graph and supervisor; one hook per run.
func NewHook(store TraceStore, opts ...HookOption) *Hook {
	hk := &Hook{
		store:     store,
		extractor: evidence.NewExtractor(),
		logger:    logging.Discard(),
		graph:     evidence.NewGraph(),
		artifacts: make(map[string]string),
	}
	for _, opt := range opts {
		opt(hk)
	}
	hk.supervisor = NewSupervisor(hk.graph, store, WithLogger(hk.logger))
	return hk
}

// Graph exposes the evidence graph for reporting.
func (hk *Hook) Graph() *evidence.Graph { return hk.graph }

// Artifacts returns the tracked artifact name → path map.
func (hk *Hook) Artifacts() map[string]string { return hk.artifacts }

// Interventions returns every intervention seen this run, oldest first.
func (hk *Hook) Interventions() []Intervention {
	out := make([]Intervention, len(hk.interventions))
	copy(out, hk.interventions)
	return out
}

// OnArtifactCreated registers a new artifact, extracts its claims, and
// rebinds evidence. name defaults to the file stem.
func (hk *Hook) OnArtifactCreated(path, name string) error {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	hk.artifacts[name] = path

	for _, claim := range hk.extractor.ExtractFile(path) {
		hk.graph.AddClaim(claim)
	}
	return hk.BindEvidenceNow()
}

// BindEvidenceNow rebinds evidence for every claim against the current pool.
// Useful when evidence sources change after artifacts were registered.
func (hk *Hook) BindEvidenceNow() error {
	if hk.graph.ClaimCount() == 0 {
		return nil
	}
	events, err := hk.store.Events()
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	items := hk.items
	if hk.source != nil {
		items = hk.source.EvidenceSources()
	}
	evidence.Bind(hk.graph.Claims(), events, items, hk.graph)
	return nil
}

// OnStep runs the policy over recent events (the trailing trace window when
// nil) and returns at most one intervention. A handler stop response rewraps
// the intervention as ESCALATE; escalations are handed to the packet sink.
func (hk *Hook) OnStep(recent []trace.Event) (*Intervention, error) {
	if recent == nil {
		all, err := hk.store.Events()
		if err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		recent = trace.Window(all, defaultWindowSize)
	}

	iv, err := hk.supervisor.AnalyzeStep(recent, hk.artifacts)
	if err != nil || iv == nil {
		return iv, err
	}
	hk.interventions = append(hk.interventions, *iv)

	if hk.handler != nil {
		resp := hk.handler.HandleIntervention(*iv, HandlerContext{
			Events:            recent,
			Artifacts:         hk.artifacts,
			Graph:             hk.graph,
			InterventionCount: len(hk.interventions),
		})
		if resp.Stop {
			escalated := Intervention{
				Type:               Escalate,
				TargetID:           iv.TargetID,
				Rationale:          "Handler requested escalation: " + iv.Rationale,
				SuggestedNextSteps: iv.SuggestedNextSteps,
			}
			hk.interventions[len(hk.interventions)-1] = escalated
			iv = &escalated
		}
	}

	if iv.Type == Escalate {
		if err := hk.handleEscalation(*iv); err != nil {
			return iv, err
		}
	}
	return iv, nil
}

// Summary is the supervision state snapshot exposed to reporters and
// external loops.
type Summary struct {
	EventCount            int `json:"event_count"`
	ArtifactCount         int `json:"artifact_count"`
	InterventionCount     int `json:"intervention_count"`
	UncoveredHighClaims   int `json:"uncovered_high_claims"`
	UncoveredMediumClaims int `json:"uncovered_medium_claims"`
	TotalClaims           int `json:"total_claims"`
	TotalEvidence         int `json:"total_evidence"`
}

// Summary returns the current supervision state.
func (hk *Hook) Summary() (Summary, error) {
	events, err := hk.store.Events()
	if err != nil {
		return Summary{}, fmt.Errorf("read trace: %w", err)
	}
	return Summary{
		EventCount:            len(events),
		ArtifactCount:         len(hk.artifacts),
		InterventionCount:     len(hk.interventions),
		UncoveredHighClaims:   len(hk.graph.UncoveredClaims(evidence.SeverityHigh)),
		UncoveredMediumClaims: len(hk.graph.UncoveredClaims(evidence.SeverityMedium)),
		TotalClaims:           hk.graph.ClaimCount(),
		TotalEvidence:         hk.graph.EvidenceCount(),
	}, nil
}

func (hk *Hook) handleEscalation(iv Intervention) error {
	if hk.packets == nil {
		return nil
	}
	path, err := hk.packets.WritePacket(iv, hk.graph)
	if err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	hk.logger.Info("escalation packet written", "path", path)

	return hk.store.Append(trace.NewDecision("escalation", map[string]any{
		"run_id":             hk.runID,
		"intervention_count": len(hk.interventions),
	}))
}
