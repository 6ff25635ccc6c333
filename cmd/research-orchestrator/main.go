// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-orchestrator CLI.
// See docs/ARCHITECTURE.md § CLI Surface.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-orchestrator/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the research-orchestrator CLI.
var rootCmd = &cobra.Command{
	Use:   "research-orchestrator",
	Short: "Durable agent-driven academic research runs",
	Long: `research-orchestrator runs bounded, resumable research sessions: an AI agent
plans a strategy, iterates tool calls (paper search, download, citation
extraction) against arXiv and Semantic Scholar, and summarizes its findings.

Every iteration is checkpointed to a local store, so interrupted runs resume
from their last committed state. Runs are inspectable while in flight via the
status and result subcommands.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-orchestrator.yaml or ~/.config/research-orchestrator/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "data", "base directory for the run store and downloaded papers")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-orchestrator")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-orchestrator"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_ORCHESTRATOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
