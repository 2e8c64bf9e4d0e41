package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"sentinel/internal/github"
	"sentinel/internal/logging"
	"sentinel/internal/trace"
)

// commentFetchLimit bounds concurrent comment requests per milestone fetch.
const commentFetchLimit = 4

// Client is the GitHub API surface the fetcher needs.
type Client interface {
	MilestoneByTitle(ctx context.Context, repo, title string) (*github.Milestone, error)
	Issues(ctx context.Context, repo string, milestoneNumber int) ([]github.Issue, error)
	Comments(ctx context.Context, repo string, number int) ([]github.Comment, error)
}

// Cache persists fetched bundles across runs.
type Cache interface {
	GetBundle(repo, milestone string) ([]byte, error)
	SaveBundle(repo, milestone string, data []byte) error
}

// EventSink receives the trace events a fetch emits.
type EventSink interface {
	Append(trace.Event) error
}

// Fetcher retrieves a milestone bundle, caching results and recording the
// fetch in the trace.
type Fetcher struct {
	client  Client
	cache   Cache
	sink    EventSink
	logger  *slog.Logger
	dataDir string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache enables bundle caching.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithEventSink records fetch activity as trace events.
func WithEventSink(s EventSink) FetcherOption {
	return func(f *Fetcher) { f.sink = s }
}

// WithDataDir writes a bundle.json copy under dir for inspection.
func WithDataDir(dir string) FetcherOption {
	return func(f *Fetcher) { f.dataDir = dir }
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher around client.
func NewFetcher(client Client, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: client,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the bundle for repo ("owner/repo") and milestone title,
// serving from cache when possible. Pull requests are excluded from the
// issue list.
func (f *Fetcher) Fetch(ctx context.Context, repo, milestone string) (*Bundle, error) {
	f.emit(trace.New(trace.ToolCall, map[string]any{
		"tool":      "github.fetch",
		"repo":      repo,
		"milestone": milestone,
	}))

	if f.cache != nil {
		data, err := f.cache.GetBundle(repo, milestone)
		if err != nil {
			f.logger.Warn("bundle cache read failed", "error", err)
		} else if data != nil {
			var b Bundle
			if err := json.Unmarshal(data, &b); err != nil {
				f.logger.Warn("bundle cache entry corrupt, refetching", "error", err)
			} else {
				f.emit(trace.New(trace.Observation, map[string]any{
					"source":      "cache",
					"repo":        repo,
					"milestone":   milestone,
					"issue_count": len(b.Issues),
				}))
				return &b, nil
			}
		}
	}

	b, err := f.fetchFromAPI(ctx, repo, milestone)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	if f.cache != nil {
		if err := f.cache.SaveBundle(repo, milestone, data); err != nil {
			f.logger.Warn("bundle cache write failed", "error", err)
		}
	}
	if f.dataDir != "" {
		path := filepath.Join(f.dataDir, Slugify(repo), Slugify(milestone), "bundle.json")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create bundle dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write bundle file: %w", err)
		}
	}

	f.emit(trace.New(trace.Observation, map[string]any{
		"source":       "api",
		"repo":         repo,
		"milestone":    milestone,
		"issue_count":  len(b.Issues),
		"label_counts": topLabelCounts(b.Issues, 5),
	}))
	return b, nil
}

func (f *Fetcher) fetchFromAPI(ctx context.Context, repo, milestone string) (*Bundle, error) {
	m, err := f.client.MilestoneByTitle(ctx, repo, milestone)
	if err != nil {
		return nil, fmt.Errorf("fetch milestone: %w", err)
	}

	issues, err := f.client.Issues(ctx, repo, m.Number)
	if err != nil {
		return nil, fmt.Errorf("fetch issues: %w", err)
	}

	owner, name := splitRepo(repo)
	b := &Bundle{
		Repo: Repo{Owner: owner, Name: name, FullName: repo},
		Milestone: Milestone{
			Title:       m.Title,
			Number:      m.Number,
			Description: m.Description,
			State:       m.State,
			CreatedAt:   m.CreatedAt,
			DueOn:       m.DueOn,
			ClosedAt:    m.ClosedAt,
		},
	}
	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.Name)
		}
		b.Issues = append(b.Issues, Issue{
			Number:    issue.Number,
			Title:     issue.Title,
			Body:      issue.Body,
			State:     issue.State,
			Labels:    labels,
			CreatedAt: issue.CreatedAt,
			ClosedAt:  issue.ClosedAt,
			User:      issue.User.Login,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commentFetchLimit)
	for i := range b.Issues {
		g.Go(func() error {
			comments, err := f.client.Comments(gctx, repo, b.Issues[i].Number)
			if err != nil {
				return fmt.Errorf("fetch comments for #%d: %w", b.Issues[i].Number, err)
			}
			for _, c := range comments {
				b.Issues[i].Comments = append(b.Issues[i].Comments, Comment{
					Body: c.Body,
					User: c.User.Login,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

func (f *Fetcher) emit(e trace.Event) {
	if f.sink == nil {
		return
	}
	if err := f.sink.Append(e); err != nil {
		f.logger.Warn("trace append failed", "error", err)
	}
}

func splitRepo(repo string) (owner, name string) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:]
		}
	}
	return repo, ""
}

// topLabelCounts returns the n most frequent labels across issues.
func topLabelCounts(issues []Issue, n int) map[string]int {
	counts := map[string]int{}
	for _, issue := range issues {
		for _, l := range issue.Labels {
			counts[l]++
		}
	}
	type kv struct {
		label string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for l, c := range counts {
		pairs = append(pairs, kv{l, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].label < pairs[j].label
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	top := make(map[string]int, len(pairs))
	for _, p := range pairs {
		top[p.label] = p.count
	}
	return top
}
