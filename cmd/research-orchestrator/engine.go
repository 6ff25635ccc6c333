// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-orchestrator/internal/engine"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/internal/runstore"
	"github.com/pdiddy/research-orchestrator/internal/tools"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	defaultModel         = "claude-sonnet-4-5-20250929"
	defaultUserAgent     = "research-orchestrator/0.1"
	defaultTimeout       = 30 * time.Second
	defaultMaxIterations = 10
)

// buildConfig assembles the engine configuration from flags, config file,
// and loaded secrets.
func buildConfig(cmd *cobra.Command) (types.EngineConfig, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	maxIterations, _ := cmd.Flags().GetInt("max-iterations")
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	timeBudget, _ := cmd.Flags().GetDuration("time-budget")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("model")
	}
	if model == "" {
		model = defaultModel
	}

	apiKey := secretDefault("anthropic-api-key", viper.GetString("anthropic_api_key"))
	if apiKey == "" {
		return types.EngineConfig{}, fmt.Errorf("no Anthropic API key: create .secrets/anthropic-api-key or set RESEARCH_ORCHESTRATOR_ANTHROPIC_API_KEY")
	}

	return types.EngineConfig{
		Orchestrator: types.OrchestratorConfig{
			MaxIterations:    maxIterations,
			TimeBudget:       timeBudget,
			MaxParallelCalls: maxParallel,
		},
		AI: types.AIConfig{
			Model:  model,
			APIKey: apiKey,
		},
		Tools: types.ToolsConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   defaultTimeout,
				UserAgent: defaultUserAgent,
			},
			PapersDir:             filepath.Join(dataDir, "papers"),
			SemanticScholarAPIKey: secretDefault("semantic-scholar-api-key", viper.GetString("semantic_scholar_api_key")),
		},
		Store: types.StoreConfig{
			Dir: dataDir,
		},
	}, nil
}

// buildEngine opens the run store, registers the built-in tools, and wires
// the engine. The caller owns closing the returned store.
func buildEngine(cmd *cobra.Command) (*engine.Engine, *runstore.Store, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := runstore.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run store: %w", err)
	}

	reg := registry.New()
	if err := tools.NewSet(cfg.Tools, nil, cmd.OutOrStdout()).RegisterAll(reg); err != nil {
		store.Close()
		return nil, nil, err
	}

	e := engine.New(cfg, reg, store, engine.Options{Progress: cmd.OutOrStdout()})
	return e, store, nil
}

// buildReadEngine wires an engine over the store alone, for commands that
// only read stored runs and must work without an API key. The caller owns
// closing the returned store.
func buildReadEngine(cmd *cobra.Command) (*engine.Engine, *runstore.Store, error) {
	store, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	e := engine.New(types.EngineConfig{}, registry.New(), store, engine.Options{})
	return e, store, nil
}

// openStore opens just the run store, for read-only commands that never
// execute a run.
func openStore(cmd *cobra.Command) (*runstore.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := runstore.Open(types.StoreConfig{Dir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	return store, nil
}
