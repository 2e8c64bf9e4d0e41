package github

// Milestone is the subset of the GitHub milestone resource sentinel consumes.
type Milestone struct {
	Title       string  `json:"title"`
	Number      int     `json:"number"`
	Description string  `json:"description"`
	State       string  `json:"state"`
	CreatedAt   string  `json:"created_at"`
	DueOn       *string `json:"due_on"`
	ClosedAt    *string `json:"closed_at"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// User is the author of an issue or comment.
type User struct {
	Login string `json:"login"`
}

// Issue is the subset of the GitHub issue resource sentinel consumes. The
// issues endpoint also returns pull requests; PullRequest is non-nil for
// those.
type Issue struct {
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	State       string   `json:"state"`
	Labels      []Label  `json:"labels"`
	CreatedAt   string   `json:"created_at"`
	ClosedAt    *string  `json:"closed_at"`
	User        User     `json:"user"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Comment is one issue comment.
type Comment struct {
	Body string `json:"body"`
	User User   `json:"user"`
}
