package registry

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func noopHandler(_ context.Context, _ map[string]any, _ func()) (types.ToolOutput, error) {
	return types.ToolOutput{}, nil
}

func searchTool() Tool {
	return Tool{
		Name:        "arxiv_search_papers",
		Description: "Search arXiv for papers",
		Args: map[string]ArgSpec{
			"query":       {Description: "search query", Required: true},
			"max_results": {Description: "maximum papers to return"},
		},
		Handler: noopHandler,
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register(searchTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Lookup("arxiv_search_papers")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Name != "arxiv_search_papers" {
		t.Errorf("Lookup().Name = %q", got.Name)
	}
	if !r.IsRegistered("arxiv_search_papers") {
		t.Error("IsRegistered() = false, want true")
	}
	if r.IsRegistered("no_such_tool") {
		t.Error("IsRegistered(no_such_tool) = true, want false")
	}
}

func TestRegisterRejectsInvalidTools(t *testing.T) {
	r := New()

	if err := r.Register(Tool{Handler: noopHandler}); !errors.Is(err, ErrToolNameEmpty) {
		t.Errorf("empty name: error = %v, want ErrToolNameEmpty", err)
	}
	if err := r.Register(Tool{Name: "x"}); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler: error = %v, want ErrNilHandler", err)
	}
}

func TestLookupUnregistered(t *testing.T) {
	r := New()
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrToolUnregistered) {
		t.Errorf("Lookup(missing) error = %v, want ErrToolUnregistered", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta_tool", "alpha_tool", "mid_tool"} {
		if err := r.Register(Tool{Name: name, Handler: noopHandler}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	want := []string{"alpha_tool", "mid_tool", "zeta_tool"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestValidateCall(t *testing.T) {
	r := New()
	if err := r.Register(searchTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr string
	}{
		{"valid call", "arxiv_search_papers", map[string]any{"query": "attention"}, ""},
		{"optional arg omitted", "arxiv_search_papers", map[string]any{"query": "attention", "max_results": 5}, ""},
		{"missing required", "arxiv_search_papers", map[string]any{"max_results": 5}, "missing required"},
		{"empty required", "arxiv_search_papers", map[string]any{"query": ""}, "missing required"},
		{"unknown tool", "no_such_tool", map[string]any{}, "not registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateCall(tt.tool, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateCall() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateCall() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
