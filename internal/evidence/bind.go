package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"sentinel/internal/trace"
)

// Source is one candidate evidence source for binding. This is the
// collaborator contract: anything that can produce {text, source_ref,
// source_type} items can feed the binder.
type Source struct {
	Text       string `json:"text"`
	SourceRef  string `json:"source_ref"`
	SourceType string `json:"source_type"`
}

// stopwords dropped during keyword extraction.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"should": {}, "could": {}, "may": {}, "might": {}, "must": {}, "can": {},
}

var wordRe = regexp.MustCompile(`\w+`)

// keywords tokenizes on word boundaries, lowercases, and drops short tokens
// and stopwords.
func keywords(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// KeywordOverlap scores two texts by Jaccard similarity of their keyword
// sets: |intersection| / |union|, 0 if either set is empty.
func KeywordOverlap(a, b string) float64 {
	ka, kb := keywords(a), keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	inter := 0
	for w := range ka {
		if _, ok := kb[w]; ok {
			inter++
		}
	}
	union := len(ka) + len(kb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// bindThreshold is the minimum overlap a source must strictly exceed to bind.
const bindThreshold = 0.2

// snippetLen caps evidence snippets.
const snippetLen = 200

// BuildPool assembles the flat candidate pool: the supplied evidence items
// (external or bundle-derived — the caller has already chosen which), plus
// observation events whose result carries a title and/or body.
func BuildPool(items []Source, events []trace.Event) []Source {
	pool := make([]Source, 0, len(items))
	pool = append(pool, items...)

	for _, e := range events {
		result := e.ObservationResult()
		if result == nil {
			continue
		}
		var parts []string
		if title, ok := result["title"]; ok {
			parts = append(parts, fmt.Sprint(title))
		}
		if body, ok := result["body"]; ok {
			parts = append(parts, fmt.Sprint(body))
		}
		if len(parts) == 0 {
			continue
		}
		pool = append(pool, Source{
			Text:       strings.Join(parts, " "),
			SourceRef:  "trace:" + e.TS,
			SourceType: "tool_call",
		})
	}
	return pool
}

// Bind links each claim to its best-matching pool source, mutating g in
// place. A source binds only when its score strictly exceeds both the
// threshold and the best score so far, so ties resolve to the first source
// seen. Claims with no qualifying source stay uncovered — a normal outcome,
// and the one the boundary detector acts on. Returns the evidence created,
// in creation order.
func Bind(claims []Claim, events []trace.Event, items []Source, g *Graph) []Evidence {
	pool := BuildPool(items, events)

	var created []Evidence
	counter := 0
	for _, claim := range claims {
		var best *Source
		bestScore := 0.0
		for i := range pool {
			score := KeywordOverlap(claim.Text, pool[i].Text)
			if score > bestScore && score > bindThreshold {
				bestScore = score
				best = &pool[i]
			}
		}
		if best == nil {
			continue
		}

		counter++
		snippet := best.Text
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		ev := Evidence{
			ID:         fmt.Sprintf("evidence_%d", counter),
			Snippet:    snippet,
			SourceRef:  best.SourceRef,
			SourceType: best.SourceType,
		}
		g.AddEvidence(ev)
		g.LinkSupport(claim.ID, ev.ID)
		created = append(created, ev)
	}
	return created
}
