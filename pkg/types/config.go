// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by tools that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-orchestrator/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds settings for components that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of corrective re-asks after a
	// schema-violating model response (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// RetryPolicy controls retry behavior for one tool's transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	// (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the initial backoff delay; it doubles per attempt
	// (default 2s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the backoff delay (default 30s).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
}

// OrchestratorConfig holds budgets and thresholds for the run loop.
type OrchestratorConfig struct {
	// MaxIterations bounds completed loop passes per run (default 10).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// TimeBudget bounds total run duration. Zero disables the time budget.
	TimeBudget time.Duration `json:"time_budget" yaml:"time_budget"`

	// MaxParallelCalls bounds tool-call fan-out within one iteration
	// (default 3).
	MaxParallelCalls int `json:"max_parallel_calls" yaml:"max_parallel_calls"`

	// ProjectionBudget is the approximate character budget for the context
	// projection sent to the decision engine; older tool results are
	// collapsed into counts once exceeded (default 6000).
	ProjectionBudget int `json:"projection_budget" yaml:"projection_budget"`

	// MaxConsecutiveDecisionErrors fails the run when the decision engine
	// produces this many unusable responses in a row during iteration
	// (default 3).
	MaxConsecutiveDecisionErrors int `json:"max_consecutive_decision_errors" yaml:"max_consecutive_decision_errors"`
}

// Defaults fills zero-valued fields with the documented defaults.
func (c OrchestratorConfig) Defaults() OrchestratorConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxParallelCalls <= 0 {
		c.MaxParallelCalls = 3
	}
	if c.ProjectionBudget <= 0 {
		c.ProjectionBudget = 6000
	}
	if c.MaxConsecutiveDecisionErrors <= 0 {
		c.MaxConsecutiveDecisionErrors = 3
	}
	return c
}

// ToolsConfig holds settings for the built-in research tools.
type ToolsConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxSearchResults caps results per search call (default 10).
	MaxSearchResults int `json:"max_search_results" yaml:"max_search_results"`

	// PapersDir is the base directory for downloaded papers.
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`
}

// StoreConfig holds settings for the run checkpoint store.
type StoreConfig struct {
	// Dir is the directory containing the runs database.
	Dir string `json:"dir" yaml:"dir"`
}

// EngineConfig groups all component configurations for the run manager.
type EngineConfig struct {
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	AI           AIConfig           `json:"ai" yaml:"ai"`
	Tools        ToolsConfig        `json:"tools" yaml:"tools"`
	Store        StoreConfig        `json:"store" yaml:"store"`
}
