package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel/internal/bundle"
	"sentinel/internal/github"
	"sentinel/internal/logging"
	"sentinel/internal/store"
)

var fetchFlags struct {
	repo      string
	milestone string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and cache a GitHub milestone bundle",
	Long: `Fetches the milestone, its issues, and their comments from the GitHub API,
normalizes them into a bundle, and caches the bundle in the local store.
A JSON copy is written under the data directory for inspection.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringVar(&fetchFlags.repo, "repo", "", "Repository (owner/repo) (required)")
	f.StringVar(&fetchFlags.milestone, "milestone", "", "Milestone title (required)")

	_ = fetchCmd.MarkFlagRequired("repo")
	_ = fetchCmd.MarkFlagRequired("milestone")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client := github.New(cfg.GitHub.Token,
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithLogger(logging.New("github")))

	fetcher := bundle.NewFetcher(client,
		bundle.WithCache(st),
		bundle.WithDataDir(cfg.DataDir),
		bundle.WithLogger(logging.New("fetch")))

	b, err := fetcher.Fetch(cmd.Context(), fetchFlags.repo, fetchFlags.milestone)
	if err != nil {
		return fmt.Errorf("fetch bundle: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched bundle for %s milestone %q\n", fetchFlags.repo, fetchFlags.milestone)
	fmt.Fprintf(out, "  Issues: %d\n", len(b.Issues))
	return nil
}
