// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decision wraps the language model that proposes each next research
// action. Raw model output is never trusted: every response is parsed against
// a strict schema and checked against the tool catalog before the
// orchestrator may branch on it. Schema-violating responses are re-asked with
// a corrective prompt a bounded number of times before escalating.
// See docs/ARCHITECTURE.md § Decision Engine.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Backend abstracts the Generative AI API so tests can supply a mock.
// Complete sends one prompt and returns the raw model text.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DecisionError marks the decision engine as unusable for one call: the
// backend failed outright or kept returning schema-violating output.
type DecisionError struct {
	Message string
	Err     error
}

func (e *DecisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision engine: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("decision engine: %s", e.Message)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// ToolCall is one validated tool proposal.
type ToolCall struct {
	Name string         `json:"tool_name"`
	Args map[string]any `json:"tool_args"`
}

// Decision is the validated outcome of one decide call: either a completion
// signal or one or more tool calls.
type Decision struct {
	Complete bool
	Reason   string
	Calls    []ToolCall
}

// Engine validates model proposals against the shared tool registry.
type Engine struct {
	backend    Backend
	reg        *registry.Registry
	maxRetries int
}

// New returns an engine. maxRetries is the number of corrective re-asks
// after a schema-violating response; values below zero mean zero.
func New(backend Backend, reg *registry.Registry, maxRetries int) *Engine {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Engine{backend: backend, reg: reg, maxRetries: maxRetries}
}

// rawPlan is the model's planning response shape.
type rawPlan struct {
	Methodology string   `json:"methodology"`
	Steps       []string `json:"steps"`
}

// Plan asks the model for a research strategy. A DecisionError here is
// unrecoverable for the run.
func (e *Engine) Plan(ctx context.Context, query string) (types.Plan, error) {
	prompt, err := renderPlanPrompt(query, e.reg.Tools())
	if err != nil {
		return types.Plan{}, &DecisionError{Message: "rendering plan prompt", Err: err}
	}

	raw, err := e.askValidated(ctx, prompt, func(text string) (any, error) {
		var p rawPlan
		if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
			return nil, fmt.Errorf("response is not valid JSON: %w", err)
		}
		if strings.TrimSpace(p.Methodology) == "" {
			return nil, fmt.Errorf("plan is missing a methodology")
		}
		for _, step := range p.Steps {
			if !e.reg.IsRegistered(step) {
				return nil, fmt.Errorf("plan step %q is not a registered tool", step)
			}
		}
		return p, nil
	})
	if err != nil {
		return types.Plan{}, err
	}

	p := raw.(rawPlan)
	return types.Plan{Methodology: p.Methodology, Steps: p.Steps}, nil
}

// rawDecision is the model's next-action response shape. Both a single
// tool_name/tool_args pair and a calls array are accepted.
type rawDecision struct {
	Action   string         `json:"action"`
	Reason   string         `json:"reason"`
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
	Calls    []ToolCall     `json:"calls"`
}

// Decide asks the model for the next action given the context projection.
func (e *Engine) Decide(ctx context.Context, projection string) (Decision, error) {
	prompt, err := renderDecidePrompt(projection, e.reg.Tools())
	if err != nil {
		return Decision{}, &DecisionError{Message: "rendering decide prompt", Err: err}
	}

	raw, err := e.askValidated(ctx, prompt, func(text string) (any, error) {
		var d rawDecision
		if err := json.Unmarshal([]byte(stripFences(text)), &d); err != nil {
			return nil, fmt.Errorf("response is not valid JSON: %w", err)
		}
		return e.validateDecision(d)
	})
	if err != nil {
		return Decision{}, err
	}
	return raw.(Decision), nil
}

// validateDecision checks the parsed response shape against the registry.
func (e *Engine) validateDecision(d rawDecision) (Decision, error) {
	switch d.Action {
	case "complete":
		return Decision{Complete: true, Reason: d.Reason}, nil
	case "use_tool":
		calls := d.Calls
		if len(calls) == 0 {
			if d.ToolName == "" {
				return Decision{}, fmt.Errorf("use_tool action has no tool_name and no calls")
			}
			calls = []ToolCall{{Name: d.ToolName, Args: d.ToolArgs}}
		}
		for _, call := range calls {
			if err := e.reg.ValidateCall(call.Name, call.Args); err != nil {
				return Decision{}, err
			}
		}
		return Decision{Reason: d.Reason, Calls: calls}, nil
	default:
		return Decision{}, fmt.Errorf("action must be %q or %q, got %q", "complete", "use_tool", d.Action)
	}
}

// askValidated sends the prompt, validates the response, and re-asks with a
// corrective suffix on schema violations up to maxRetries extra attempts.
// Backend transport errors are not re-asked; they escalate immediately.
func (e *Engine) askValidated(ctx context.Context, prompt string, validate func(string) (any, error)) (any, error) {
	ask := prompt
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		text, err := e.backend.Complete(ctx, ask)
		if err != nil {
			return nil, &DecisionError{Message: "model call failed", Err: err}
		}

		parsed, err := validate(text)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		ask = prompt + correctiveSuffix(err)
	}
	return nil, &DecisionError{
		Message: fmt.Sprintf("unusable response after %d attempt(s)", e.maxRetries+1),
		Err:     lastErr,
	}
}

func correctiveSuffix(err error) string {
	return fmt.Sprintf("\n\nYour previous response was invalid: %v.\nRespond again with only the JSON object, exactly in the format described above.", err)
}

// stripFences removes a surrounding Markdown code fence, which some models
// add despite instructions.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
