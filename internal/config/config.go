// Package config loads sentinel's configuration from a YAML or JSON file,
// with environment fallbacks for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// GitHubConfig holds GitHub API access settings.
type GitHubConfig struct {
	Token   string `yaml:"token" json:"token"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// AgentConfig holds the writer agent settings.
type AgentConfig struct {
	Model         string `yaml:"model" json:"model"`
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the full sentinel configuration.
type Config struct {
	RunsDir   string       `yaml:"runs_dir" json:"runs_dir"`
	DataDir   string       `yaml:"data_dir" json:"data_dir"`
	StorePath string       `yaml:"store_path" json:"store_path"`
	GitHub    GitHubConfig `yaml:"github" json:"github"`
	Agent     AgentConfig  `yaml:"agent" json:"agent"`
	Log       LogConfig    `yaml:"log" json:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RunsDir:   "runs",
		DataDir:   "data",
		StorePath: ".sentinel/sentinel.db",
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
		Agent: AgentConfig{
			Model:         "gpt-4o",
			MaxIterations: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromPath reads a config file (YAML or JSON) and returns the parsed
// Config merged over defaults. Format is detected by extension (.yaml/.yml →
// YAML, .json → JSON) or by content (first non-whitespace char).
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config from bytes. ext is the file extension for format hint;
// empty = detect from content.
func Load(data []byte, ext string) (*Config, error) {
	c := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	switch ext {
	case ".yaml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	default:
		// Detect: try JSON first (starts with {), else YAML
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "{") {
			if err := json.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config json: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}
	c.applyEnv()
	return c, nil
}

// LoadOrDefault loads path when non-empty, otherwise returns defaults with
// env fallbacks applied.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		c := Default()
		c.applyEnv()
		return c, nil
	}
	return LoadFromPath(path)
}

// applyEnv fills secrets from the environment when the file left them empty.
func (c *Config) applyEnv() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
}

// Validate reports structural problems a run would hit immediately.
func (c *Config) Validate() error {
	if c.RunsDir == "" {
		return fmt.Errorf("config: runs_dir must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("config: agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	return nil
}
