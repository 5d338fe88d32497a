package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bugspot/bugspot/internal/core/config"
	"github.com/bugspot/bugspot/internal/storage"
)

var (
	cfgFile string
	verbose bool

	buildVersion string
	buildCommit  string
)

var rootCmd = &cobra.Command{
	Use:   "bugspot",
	Short: "AI bug-report triage for GitHub repositories",
	Long: `Bugspot receives bug reports from embedded forms, lets an LLM decide
whether to ask a follow-up question, close the report or file a GitHub issue,
and folds duplicates into existing issues.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(version, commit string) {
	buildVersion = version
	buildCommit = commit

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./bugspot.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// loadConfig reads the config file when one is found and falls back to
// defaults plus environment otherwise.
func loadConfig() (*config.Config, error) {
	path := config.FindConfigPath(cfgFile)
	if path == "" {
		if cfgFile != "" {
			return nil, fmt.Errorf("config file %s not found", cfgFile)
		}
		if verbose {
			fmt.Println("ℹ No config file found, using defaults and environment")
		}
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		fmt.Printf("✓ Loaded config from %s\n", path)
	}
	return cfg, nil
}

// openStore loads config and opens the database it names.
func openStore() (*config.Config, *storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.Database.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, store, nil
}
