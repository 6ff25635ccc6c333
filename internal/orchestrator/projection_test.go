package orchestrator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func TestProjectionCollapsesOldHistory(t *testing.T) {
	c := types.ResearchContext{Query: "q"}
	for i := 0; i < 10; i++ {
		c.ToolResults = append(c.ToolResults, types.ToolInvocationRecord{
			ToolName: "extract_citations",
			Outcome:  types.ToolOutcome{Kind: types.FailPermanent, Message: fmt.Sprintf("boom %02d", i)},
		})
	}
	for i := 10; i < 50; i++ {
		c.ToolResults = append(c.ToolResults, types.ToolInvocationRecord{
			ToolName: "arxiv_search_papers",
			Outcome:  types.ToolOutcome{OK: true, Result: fmt.Sprintf("result %02d %s", i, strings.Repeat("x", 50))},
		})
	}

	budget := 500
	out := Projection(c, budget)

	if !strings.Contains(out, "Earlier tool calls (summarized): ") {
		t.Fatalf("projection lacks the collapse marker:\n%s", out)
	}
	if !strings.Contains(out, "arxiv_search_papers ×") {
		t.Errorf("projection lacks the per-tool tally:\n%s", out)
	}
	if !strings.Contains(out, "extract_citations ×10 (0 ok, 10 failed)") {
		t.Errorf("projection lacks the failure tally:\n%s", out)
	}
	if !strings.Contains(out, "result 49") {
		t.Errorf("projection dropped the newest record:\n%s", out)
	}
	if strings.Contains(out, "boom 00") {
		t.Errorf("projection kept the oldest record verbatim:\n%s", out)
	}

	// Full lines stay within the budget; only the collapse line and the
	// section headers may spill past it.
	if full := strings.Count(out, "  - "); full > 7 {
		t.Errorf("projection kept %d full history lines under a %d-char budget:\n%s", full, budget, out)
	}
}

// Even a budget too small for a single history line keeps the latest record
// so the decision engine always sees the last thing that happened.
func TestProjectionTightBudgetKeepsLatest(t *testing.T) {
	c := types.ResearchContext{Query: "q"}
	for i := 0; i < 3; i++ {
		c.ToolResults = append(c.ToolResults, types.ToolInvocationRecord{
			ToolName: "arxiv_search_papers",
			Outcome:  types.ToolOutcome{OK: true, Result: fmt.Sprintf("result %d", i)},
		})
	}

	out := Projection(c, 1)
	if !strings.Contains(out, "result 2") {
		t.Errorf("projection under a tight budget lacks the latest record:\n%s", out)
	}
	if strings.Contains(out, "result 1\n") {
		t.Errorf("projection under a tight budget kept more than the latest record:\n%s", out)
	}
}

func TestStatsExcludesNonToolRecords(t *testing.T) {
	c := types.ResearchContext{
		Iteration: 3,
		ToolResults: []types.ToolInvocationRecord{
			{ToolName: "arxiv_search_papers", Outcome: types.ToolOutcome{OK: true, Result: "ok"}},
			{ToolName: "decide", Outcome: types.ToolOutcome{Kind: types.FailDecision, Message: "unparseable"}},
			{ToolName: "made_up_tool", Outcome: types.ToolOutcome{Kind: types.FailUnknownTool, Message: "not registered"}},
		},
	}

	got := Stats(c)
	if got.ToolsUsed != 1 {
		t.Errorf("ToolsUsed = %d, want 1 (decision and unknown-tool records excluded)", got.ToolsUsed)
	}
	if got.IterationsCompleted != 3 {
		t.Errorf("IterationsCompleted = %d", got.IterationsCompleted)
	}
}
