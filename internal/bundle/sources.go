package bundle

import (
	"fmt"

	"sentinel/internal/evidence"
)

// EvidenceSources flattens the bundle into bindable evidence sources: one per
// issue (title and body), one for the milestone description when present, and
// one per issue comment.
func (b *Bundle) EvidenceSources() []evidence.Source {
	var sources []evidence.Source
	for _, issue := range b.Issues {
		sources = append(sources, evidence.Source{
			Text:       issue.Title + " " + issue.Body,
			SourceRef:  fmt.Sprintf("issue:%d", issue.Number),
			SourceType: "issue",
		})
	}
	if b.Milestone.Description != "" {
		sources = append(sources, evidence.Source{
			Text:       b.Milestone.Description,
			SourceRef:  fmt.Sprintf("milestone:%d", b.Milestone.Number),
			SourceType: "milestone",
		})
	}
	for _, issue := range b.Issues {
		for i, c := range issue.Comments {
			sources = append(sources, evidence.Source{
				Text:       c.Body,
				SourceRef:  fmt.Sprintf("comment:%d:%d", issue.Number, i+1),
				SourceType: "comment",
			})
		}
	}
	return sources
}
