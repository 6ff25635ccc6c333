package decision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// scriptedBackend replays canned responses in order.
type scriptedBackend struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (b *scriptedBackend) Complete(_ context.Context, prompt string) (string, error) {
	b.calls++
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return "", b.err
	}
	i := b.calls - 1
	if i >= len(b.responses) {
		i = len(b.responses) - 1
	}
	return b.responses[i], nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	err := r.Register(registry.Tool{
		Name:        "arxiv_search_papers",
		Description: "Search arXiv",
		Args: map[string]registry.ArgSpec{
			"query": {Description: "search query", Required: true},
		},
		Handler: func(context.Context, map[string]any, func()) (types.ToolOutput, error) {
			return types.ToolOutput{}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func TestPlanValidResponse(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"methodology": "survey transformer papers, then trace citations", "steps": ["arxiv_search_papers"]}`,
	}}
	e := New(backend, testRegistry(t), 2)

	plan, err := e.Plan(context.Background(), "attention mechanisms")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Methodology == "" {
		t.Error("Plan().Methodology is empty")
	}
	if len(plan.Steps) != 1 || plan.Steps[0] != "arxiv_search_papers" {
		t.Errorf("Plan().Steps = %v", plan.Steps)
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls)
	}
}

func TestPlanCorrectiveRetry(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`this is not JSON`,
		`{"methodology": "basic search", "steps": []}`,
	}}
	e := New(backend, testRegistry(t), 2)

	plan, err := e.Plan(context.Background(), "attention mechanisms")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Methodology != "basic search" {
		t.Errorf("Plan().Methodology = %q", plan.Methodology)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
	// The second ask must include a corrective suffix.
	if !strings.Contains(backend.prompts[1], "previous response was invalid") {
		t.Error("second prompt lacks corrective suffix")
	}
}

func TestPlanEscalatesAfterRetryBound(t *testing.T) {
	backend := &scriptedBackend{responses: []string{`still not JSON`}}
	e := New(backend, testRegistry(t), 2)

	_, err := e.Plan(context.Background(), "attention mechanisms")
	var dErr *DecisionError
	if !errors.As(err, &dErr) {
		t.Fatalf("Plan() error = %v, want DecisionError", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3 (1 + 2 corrective)", backend.calls)
	}
}

func TestPlanRejectsUnknownStep(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"methodology": "m", "steps": ["made_up_tool"]}`,
	}}
	e := New(backend, testRegistry(t), 0)

	_, err := e.Plan(context.Background(), "q")
	var dErr *DecisionError
	if !errors.As(err, &dErr) {
		t.Fatalf("Plan() error = %v, want DecisionError", err)
	}
}

func TestDecideComplete(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"action": "complete", "reason": "enough papers found"}`,
	}}
	e := New(backend, testRegistry(t), 2)

	d, err := e.Decide(context.Background(), "projection")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Complete {
		t.Error("Decide().Complete = false, want true")
	}
	if d.Reason != "enough papers found" {
		t.Errorf("Decide().Reason = %q", d.Reason)
	}
}

func TestDecideSingleToolCall(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"action": "use_tool", "tool_name": "arxiv_search_papers", "tool_args": {"query": "attention"}}`,
	}}
	e := New(backend, testRegistry(t), 2)

	d, err := e.Decide(context.Background(), "projection")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Complete {
		t.Error("Decide().Complete = true, want false")
	}
	if len(d.Calls) != 1 || d.Calls[0].Name != "arxiv_search_papers" {
		t.Fatalf("Decide().Calls = %+v", d.Calls)
	}
	if d.Calls[0].Args["query"] != "attention" {
		t.Errorf("call args = %v", d.Calls[0].Args)
	}
}

func TestDecideCallsArray(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"action": "use_tool", "calls": [
			{"tool_name": "arxiv_search_papers", "tool_args": {"query": "attention"}},
			{"tool_name": "arxiv_search_papers", "tool_args": {"query": "transformers"}}
		]}`,
	}}
	e := New(backend, testRegistry(t), 2)

	d, err := e.Decide(context.Background(), "projection")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if len(d.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(d.Calls))
	}
}

func TestDecideRejectsUnknownTool(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"action": "use_tool", "tool_name": "rm_rf", "tool_args": {}}`,
	}}
	e := New(backend, testRegistry(t), 0)

	_, err := e.Decide(context.Background(), "projection")
	var dErr *DecisionError
	if !errors.As(err, &dErr) {
		t.Fatalf("Decide() error = %v, want DecisionError", err)
	}
}

func TestDecideRejectsMissingRequiredArg(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"action": "use_tool", "tool_name": "arxiv_search_papers", "tool_args": {}}`,
	}}
	e := New(backend, testRegistry(t), 0)

	if _, err := e.Decide(context.Background(), "projection"); err == nil {
		t.Fatal("Decide() error = nil, want validation failure")
	}
}

func TestDecideBackendErrorNotReAsked(t *testing.T) {
	backend := &scriptedBackend{err: fmt.Errorf("connection refused")}
	e := New(backend, testRegistry(t), 2)

	_, err := e.Decide(context.Background(), "projection")
	var dErr *DecisionError
	if !errors.As(err, &dErr) {
		t.Fatalf("Decide() error = %v, want DecisionError", err)
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (transport errors escalate immediately)", backend.calls)
	}
}

func TestDecideToleratesCodeFences(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		"```json\n{\"action\": \"complete\", \"reason\": \"done\"}\n```",
	}}
	e := New(backend, testRegistry(t), 0)

	d, err := e.Decide(context.Background(), "projection")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Complete {
		t.Error("Decide().Complete = false, want true")
	}
}

func TestClaudeBackendComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "{\"action\": \"complete\"}"}]}`)
	}))
	defer srv.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "test-key", Model: "claude-sonnet-4-5-20250929"}
	text, err := backend.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(text, "complete") {
		t.Errorf("Complete() = %q", text)
	}
}

func TestClaudeBackendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = oldURL }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	if _, err := backend.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("Complete() error = nil, want HTTP error")
	}
}
