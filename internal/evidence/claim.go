// Package evidence implements the claim/evidence side of supervision: claim
// extraction from generated documents, the bipartite evidence graph, and the
// lexical binder that links the two.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"sentinel/internal/trace"
)

// Claim severities, ordered LOW < MEDIUM < HIGH.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Claim is a single factual assertion extracted from an artifact. Created
// once at extraction time, never mutated.
type Claim struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Section      string `json:"section"`
	Severity     string `json:"severity"`
	SourceLine   int    `json:"source_line"`
	ArtifactPath string `json:"artifact_path"`
}

// severityFor maps a section to the severity of claims made in it. Anything
// unrecognized is LOW.
func severityFor(section string) string {
	switch section {
	case SectionGoals, SectionScope, SectionMetrics, SectionRollout:
		return SeverityHigh
	case SectionRisks:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// sentenceSplit breaks a line on sentence-terminal punctuation followed by
// whitespace.
var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

// minClaimLen is the shortest fragment (after trimming) kept as a claim.
// Anything at or below this is heading noise or list scaffolding.
const minClaimLen = 20

// Extractor turns documents into section-scoped, severity-tagged claims.
type Extractor struct {
	parser SectionParser
}

// NewExtractor returns an Extractor using the default markdown section
// parser.
func NewExtractor() *Extractor {
	return &Extractor{parser: NewMarkdownParser()}
}

// NewExtractorWithParser returns an Extractor with a custom section parser.
func NewExtractorWithParser(p SectionParser) *Extractor {
	return &Extractor{parser: p}
}

// ExtractFile extracts claims from a markdown artifact on disk. A missing or
// unreadable file yields no claims; that is not an error.
func (x *Extractor) ExtractFile(path string) []Claim {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return x.Extract(string(data), path)
}

// Extract walks the document line by line. A recognized header moves the
// section cursor; the cursor persists until the next recognized header. While
// a section is active, each line is split into sentence-like fragments and
// every fragment longer than minClaimLen becomes one claim. No claims are
// produced before the first recognized header.
func (x *Extractor) Extract(content, artifactPath string) []Claim {
	stem := strings.TrimSuffix(filepath.Base(artifactPath), filepath.Ext(artifactPath))

	var claims []Claim
	section := ""
	counter := 0

	for lineNum, line := range strings.Split(content, "\n") {
		if name, ok := x.parser.Match(line); ok {
			section = name
		}
		if section == "" {
			continue
		}
		for _, fragment := range sentenceSplit.Split(strings.TrimSpace(line), -1) {
			fragment = strings.TrimSpace(fragment)
			if len(fragment) <= minClaimLen {
				continue
			}
			counter++
			claims = append(claims, Claim{
				ID:           fmt.Sprintf("%s_claim_%d", stem, counter),
				Text:         fragment,
				Section:      section,
				Severity:     severityFor(section),
				SourceLine:   lineNum + 1,
				ArtifactPath: artifactPath,
			})
		}
	}
	return claims
}

// ExtractFromTrace extracts claims from every artifact event whose referenced
// file still exists.
func (x *Extractor) ExtractFromTrace(events []trace.Event) []Claim {
	var claims []Claim
	for _, e := range events {
		path := e.ArtifactPath()
		if path == "" {
			continue
		}
		claims = append(claims, x.ExtractFile(path)...)
	}
	return claims
}
