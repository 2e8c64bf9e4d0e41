package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract_SeverityPerSection(t *testing.T) {
	cases := []struct {
		header   string
		section  string
		severity string
	}{
		{"## Goals", SectionGoals, SeverityHigh},
		{"## Objectives", SectionGoals, SeverityHigh},
		{"## Scope", SectionScope, SeverityHigh},
		{"## Metrics", SectionMetrics, SeverityHigh},
		{"## Success Metrics", SectionMetrics, SeverityHigh},
		{"## Rollout", SectionRollout, SeverityHigh},
		{"## Launch Plan", SectionRollout, SeverityHigh},
		{"## Risks", SectionRisks, SeverityMedium},
		{"## Non-goals", SectionNonGoals, SeverityLow},
		{"## Out of Scope", SectionNonGoals, SeverityLow},
	}

	x := NewExtractor()
	for _, c := range cases {
		t.Run(c.header, func(t *testing.T) {
			content := c.header + "\nThis sentence is definitely long enough to count.\n"
			claims := x.Extract(content, "doc.md")
			if len(claims) != 1 {
				t.Fatalf("expected 1 claim, got %d", len(claims))
			}
			if claims[0].Section != c.section {
				t.Errorf("section = %q, want %q", claims[0].Section, c.section)
			}
			if claims[0].Severity != c.severity {
				t.Errorf("severity = %q, want %q", claims[0].Severity, c.severity)
			}
		})
	}
}

func TestExtract_NoClaimsBeforeFirstHeader(t *testing.T) {
	content := `This preamble sentence is long enough to be a claim.
Another long preamble sentence that should not count either.
## Goals
Ship the feature to every customer by next quarter.`

	claims := NewExtractor().Extract(content, "doc.md")
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d: %+v", len(claims), claims)
	}
	if claims[0].SourceLine != 4 {
		t.Errorf("source line = %d, want 4", claims[0].SourceLine)
	}
}

func TestExtract_ShortFragmentsDiscarded(t *testing.T) {
	content := "## Goals\nTBD.\nShort one. This second fragment is long enough to survive.\n"
	claims := NewExtractor().Extract(content, "doc.md")
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d: %+v", len(claims), claims)
	}
	want := "This second fragment is long enough to survive."
	if claims[0].Text != want {
		t.Errorf("text = %q, want %q", claims[0].Text, want)
	}
}

func TestExtract_CursorPersistsAcrossUnrecognizedHeaders(t *testing.T) {
	content := `## Goals
First goal sentence that is long enough to matter.
## Misc Notes
Still inside goals because the header was not recognized.
## Risks
One risk sentence that is long enough to matter here.`

	claims := NewExtractor().Extract(content, "doc.md")
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}
	wantSections := []string{SectionGoals, SectionGoals, SectionRisks}
	for i, c := range claims {
		if c.Section != wantSections[i] {
			t.Errorf("claim %d section = %q, want %q", i, c.Section, wantSections[i])
		}
	}
}

func TestExtract_IDsStableAndOrdinal(t *testing.T) {
	content := "## Goals\nFirst goal sentence long enough. Second goal sentence long enough.\n"
	claims := NewExtractor().Extract(content, "/runs/x/artifacts/PRD.md")
	want := []string{"PRD_claim_1", "PRD_claim_2"}
	var got []string
	for _, c := range claims {
		got = append(got, c.ID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("claim ids mismatch:\n%s", diff)
	}
}

func TestExtractFile_MissingFile(t *testing.T) {
	claims := NewExtractor().ExtractFile(filepath.Join(t.TempDir(), "nope.md"))
	if len(claims) != 0 {
		t.Errorf("expected no claims for missing file, got %d", len(claims))
	}
}

func TestExtractFile_ReadsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PRD.md")
	content := "## Goals\nShip feature X to 10% of users by Q3 this year.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	claims := NewExtractor().ExtractFile(path)
	if len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(claims))
	}
	if claims[0].ArtifactPath != path {
		t.Errorf("artifact path = %q, want %q", claims[0].ArtifactPath, path)
	}
	if claims[0].Severity != SeverityHigh {
		t.Errorf("severity = %q, want HIGH", claims[0].Severity)
	}
}
