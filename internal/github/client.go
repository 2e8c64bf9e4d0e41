// Package github is a thin GitHub REST v3 client covering the milestone and
// issue surface the bundle fetcher needs.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sentinel/internal/logging"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

const maxRetries = 3

// Client is a GitHub API client with token auth and basic retry handling.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithBaseURL points the client at a different API endpoint (tests, GitHub
// Enterprise).
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

// withSleep replaces the backoff sleeper (tests).
func withSleep(fn func(time.Duration)) Option {
	return func(cl *Client) { cl.sleep = fn }
}

// New creates a Client. token may be empty for anonymous access (low rate
// limits apply).
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.Discard(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON executes a GET with retry and decodes the JSON response into dst.
// 403 responses honor Retry-After; transport errors back off exponentially.
func (c *Client) getJSON(ctx context.Context, operation, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("%s: create request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if c.token != "" {
			req.Header.Set("Authorization", "token "+c.token)
		}

		c.logger.DebugContext(ctx, "API request", "operation", operation, "url", u, "attempt", attempt+1)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: do request: %w", operation, err)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		if resp.StatusCode == http.StatusForbidden {
			// Rate limited; wait out Retry-After and try again.
			retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			if retryAfter <= 0 {
				retryAfter = 60
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = newAPIError(operation, resp.StatusCode, "rate limited")
			c.sleep(time.Duration(retryAfter) * time.Second)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			var errBody struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(body, &errBody)
			return newAPIError(operation, resp.StatusCode, errBody.Message)
		}

		err = json.NewDecoder(resp.Body).Decode(dst)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s: decode response: %w", operation, err)
		}
		return nil
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", operation, maxRetries, lastErr)
}

// Milestones lists all milestones for "owner/repo", open and closed.
func (c *Client) Milestones(ctx context.Context, repo string) ([]Milestone, error) {
	var out []Milestone
	params := url.Values{"state": {"all"}}
	if err := c.getJSON(ctx, "list milestones", "/repos/"+repo+"/milestones", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MilestoneByTitle resolves a milestone by exact title or by number given as
// a string.
func (c *Client) MilestoneByTitle(ctx context.Context, repo, title string) (*Milestone, error) {
	milestones, err := c.Milestones(ctx, repo)
	if err != nil {
		return nil, err
	}
	for i, m := range milestones {
		if m.Title == title || strconv.Itoa(m.Number) == title {
			return &milestones[i], nil
		}
	}
	return nil, newAPIError("resolve milestone", http.StatusNotFound,
		fmt.Sprintf("milestone %q not found in %s", title, repo))
}

// Issues lists issues (including PRs — callers filter) for a milestone
// number, any state.
func (c *Client) Issues(ctx context.Context, repo string, milestoneNumber int) ([]Issue, error) {
	var out []Issue
	params := url.Values{
		"state":     {"all"},
		"milestone": {strconv.Itoa(milestoneNumber)},
	}
	if err := c.getJSON(ctx, "list issues", "/repos/"+repo+"/issues", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Issue fetches a single issue.
func (c *Client) Issue(ctx context.Context, repo string, number int) (*Issue, error) {
	var out Issue
	path := fmt.Sprintf("/repos/%s/issues/%d", repo, number)
	if err := c.getJSON(ctx, "get issue", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Comments lists comments for an issue.
func (c *Client) Comments(ctx context.Context, repo string, number int) ([]Comment, error) {
	var out []Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	if err := c.getJSON(ctx, "list comments", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
