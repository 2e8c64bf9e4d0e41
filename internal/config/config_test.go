package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	data := []byte(`
runs_dir: /var/sentinel/runs
github:
  token: tok-123
agent:
  model: gpt-4o-mini
  max_iterations: 10
log:
  level: debug
`)
	c, err := Load(data, ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RunsDir != "/var/sentinel/runs" {
		t.Errorf("runs_dir = %q", c.RunsDir)
	}
	if c.GitHub.Token != "tok-123" {
		t.Errorf("token = %q", c.GitHub.Token)
	}
	if c.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d", c.Agent.MaxIterations)
	}
	// Unset fields keep their defaults.
	if c.DataDir != "data" {
		t.Errorf("data_dir = %q, want default", c.DataDir)
	}
	if c.GitHub.BaseURL != "https://api.github.com" {
		t.Errorf("base_url = %q, want default", c.GitHub.BaseURL)
	}
}

func TestLoadJSONByContent(t *testing.T) {
	data := []byte(`{"agent": {"model": "gpt-4o", "max_iterations": 5}}`)
	c, err := Load(data, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Agent.MaxIterations != 5 {
		t.Errorf("max_iterations = %d, want 5", c.Agent.MaxIterations)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yml")
	if err := os.WriteFile(path, []byte("runs_dir: r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if c.RunsDir != "r" {
		t.Errorf("runs_dir = %q", c.RunsDir)
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-tok")
	c, err := Load([]byte("runs_dir: runs\n"), ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GitHub.Token != "env-tok" {
		t.Errorf("token = %q, want env-tok", c.GitHub.Token)
	}
}

func TestFileTokenBeatsEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-tok")
	c, err := Load([]byte("github:\n  token: file-tok\n"), ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GitHub.Token != "file-tok" {
		t.Errorf("token = %q, want file-tok", c.GitHub.Token)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	c.Agent.MaxIterations = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero max_iterations")
	}
}
