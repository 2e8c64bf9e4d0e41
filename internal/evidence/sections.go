package evidence

import (
	"regexp"
	"strings"
)

// Canonical section names recognized in generated documents.
const (
	SectionGoals    = "Goals"
	SectionNonGoals = "Non-goals"
	SectionScope    = "Scope"
	SectionMetrics  = "Metrics"
	SectionRisks    = "Risks"
	SectionRollout  = "Rollout"
)

// SectionParser detects document structure. The matching rules are heuristic,
// so they live behind this interface and can be swapped or tested without
// touching the graph or policy logic.
type SectionParser interface {
	// Match reports whether line is a recognized section header and, if so,
	// the canonical section name.
	Match(line string) (section string, ok bool)
	// Body returns the body of the first occurrence of the given canonical
	// section: the lines between its header and the next header (any heading
	// line) or end of document. ok is false when the section is absent.
	Body(content, section string) (body string, ok bool)
}

type sectionPattern struct {
	name string
	re   *regexp.Regexp
}

// markdownParser recognizes `#`-prefixed headers. Patterns are checked in a
// fixed order; the first match wins, so "Out of Scope" resolves to Non-goals
// before the Scope pattern can see it.
type markdownParser struct {
	patterns []sectionPattern
	anyHdr   *regexp.Regexp
}

// NewMarkdownParser returns the default SectionParser for markdown artifacts.
func NewMarkdownParser() SectionParser {
	return &markdownParser{
		patterns: []sectionPattern{
			{SectionGoals, regexp.MustCompile(`(?i)^#+\s*(?:Goals?|Objectives?)`)},
			{SectionNonGoals, regexp.MustCompile(`(?i)^#+\s*(?:Non-?goals?|Out of Scope)`)},
			{SectionScope, regexp.MustCompile(`(?i)^#+\s*Scope`)},
			{SectionMetrics, regexp.MustCompile(`(?i)^#+\s*(?:Metrics?|Success Metrics?)`)},
			{SectionRisks, regexp.MustCompile(`(?i)^#+\s*(?:Risks?|Risk Assessment)`)},
			{SectionRollout, regexp.MustCompile(`(?i)^#+\s*(?:Rollout|Launch Plan|Deployment)`)},
		},
		anyHdr: regexp.MustCompile(`^#+`),
	}
}

func (p *markdownParser) Match(line string) (string, bool) {
	for _, sp := range p.patterns {
		if sp.re.MatchString(line) {
			return sp.name, true
		}
	}
	return "", false
}

func (p *markdownParser) Body(content, section string) (string, bool) {
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if name, ok := p.Match(line); ok && name == section {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if p.anyHdr.MatchString(lines[i]) {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n")), true
}
