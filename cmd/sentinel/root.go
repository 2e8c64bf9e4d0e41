// sentinel supervises document-writing agents: it fetches GitHub milestone
// bundles, runs the writer agent under an evidence-checking policy, and
// escalates to a human with a decision packet when the agent drifts from its
// evidence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sentinel/internal/config"
	"sentinel/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Runtime supervision for document-writing agents",
	Long: "Sentinel runs an LLM agent that drafts PRDs and launch plans from GitHub\n" +
		"milestone data, extracts the claims the agent makes, binds them to evidence,\n" +
		"and intervenes or escalates when claims go unsupported.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file path (YAML or JSON)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadConfig reads the configured (or default) config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := cfg.Log.Level
	if rootFlags.logLevel != "" {
		name = rootFlags.logLevel
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Log.Format)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
