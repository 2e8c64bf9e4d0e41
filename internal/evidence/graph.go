package evidence

// EdgeSupports is the relation from evidence to the claim it corroborates.
const EdgeSupports = "supports"

// Evidence is a snippet of source text judged to support a claim. Created
// only by the binder.
type Evidence struct {
	ID         string `json:"id"`
	Snippet    string `json:"snippet"`
	SourceRef  string `json:"source_ref"`
	SourceType string `json:"source_type"`
}

// Edge links two graph nodes by id.
type Edge struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the in-memory bipartite graph of claims and evidence. One graph
// instance exists per run with a single mutator context; callers sharing a
// graph across goroutines must add their own mutual exclusion.
type Graph struct {
	claims        map[string]Claim
	claimOrder    []string
	evidence      map[string]Evidence
	evidenceOrder []string
	edges         []Edge
}

// NewGraph returns an empty evidence graph.
func NewGraph() *Graph {
	return &Graph{
		claims:   make(map[string]Claim),
		evidence: make(map[string]Evidence),
	}
}

// AddClaim inserts a claim. Re-inserting an id overwrites the record but
// keeps its original position.
func (g *Graph) AddClaim(c Claim) {
	if _, ok := g.claims[c.ID]; !ok {
		g.claimOrder = append(g.claimOrder, c.ID)
	}
	g.claims[c.ID] = c
}

// AddEvidence inserts an evidence record.
func (g *Graph) AddEvidence(e Evidence) {
	if _, ok := g.evidence[e.ID]; !ok {
		g.evidenceOrder = append(g.evidenceOrder, e.ID)
	}
	g.evidence[e.ID] = e
}

// LinkSupport adds a supports edge from evidence to claim. Unknown endpoints
// and duplicate pairs are silent no-ops; callers are expected to have
// inserted both endpoints first.
func (g *Graph) LinkSupport(claimID, evidenceID string) {
	if _, ok := g.claims[claimID]; !ok {
		return
	}
	if _, ok := g.evidence[evidenceID]; !ok {
		return
	}
	for _, e := range g.edges {
		if e.Type == EdgeSupports && e.From == evidenceID && e.To == claimID {
			return
		}
	}
	g.edges = append(g.edges, Edge{Type: EdgeSupports, From: evidenceID, To: claimID})
}

// severityLevel orders severities for coverage queries. Unknown claim
// severities rank below LOW so they never qualify.
func severityLevel(s string) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// UncoveredClaims returns claims at or above minSeverity with no incoming
// supports edge, in claim insertion order. An unknown minSeverity means LOW.
func (g *Graph) UncoveredClaims(minSeverity string) []Claim {
	minLevel := severityLevel(minSeverity)
	if minLevel == 0 {
		minLevel = 1
	}

	var uncovered []Claim
	for _, id := range g.claimOrder {
		c := g.claims[id]
		if severityLevel(c.Severity) < minLevel {
			continue
		}
		if g.supported(id) {
			continue
		}
		uncovered = append(uncovered, c)
	}
	return uncovered
}

func (g *Graph) supported(claimID string) bool {
	for _, e := range g.edges {
		if e.Type == EdgeSupports && e.To == claimID {
			return true
		}
	}
	return false
}

// Claims returns all claims in insertion order.
func (g *Graph) Claims() []Claim {
	out := make([]Claim, 0, len(g.claimOrder))
	for _, id := range g.claimOrder {
		out = append(out, g.claims[id])
	}
	return out
}

// EvidenceItems returns all evidence in insertion order.
func (g *Graph) EvidenceItems() []Evidence {
	out := make([]Evidence, 0, len(g.evidenceOrder))
	for _, id := range g.evidenceOrder {
		out = append(out, g.evidence[id])
	}
	return out
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// ClaimCount returns the number of claims in the graph.
func (g *Graph) ClaimCount() int { return len(g.claims) }

// EvidenceCount returns the number of evidence records in the graph.
func (g *Graph) EvidenceCount() int { return len(g.evidence) }
