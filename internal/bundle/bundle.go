// Package bundle normalizes GitHub milestone data into the evidence bundle
// the writer agent and the binder consume.
package bundle

import (
	"regexp"
	"strings"
)

// Repo identifies the repository a bundle came from.
type Repo struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Milestone is the normalized milestone record.
type Milestone struct {
	Title       string  `json:"title"`
	Number      int     `json:"number"`
	Description string  `json:"description"`
	State       string  `json:"state"`
	CreatedAt   string  `json:"created_at"`
	DueOn       *string `json:"due_on"`
	ClosedAt    *string `json:"closed_at"`
}

// Comment is one normalized issue comment.
type Comment struct {
	Body string `json:"body"`
	User string `json:"user"`
}

// Issue is the normalized issue record. Pull requests are excluded at fetch
// time.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	CreatedAt string    `json:"created_at"`
	ClosedAt  *string   `json:"closed_at"`
	User      string    `json:"user"`
	Comments  []Comment `json:"comments,omitempty"`
}

// Bundle is the full normalized milestone bundle.
type Bundle struct {
	Repo      Repo      `json:"repo"`
	Milestone Milestone `json:"milestone"`
	Issues    []Issue   `json:"issues"`
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts text to a filesystem-safe slug: lowercase, punctuation
// stripped, whitespace runs collapsed to single hyphens.
func Slugify(text string) string {
	text = strings.ToLower(text)
	text = slugStrip.ReplaceAllString(text, "")
	text = slugCollapse.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}
