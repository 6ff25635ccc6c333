// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func TestPrintResultCompleted(t *testing.T) {
	var b strings.Builder
	printResult(&b, "run-1", types.RunResult{
		Success:          true,
		PapersDiscovered: 3,
		FinalSummary: types.Summary{
			Text:  "Found three relevant papers.",
			Stats: types.ResearchStats{IterationsCompleted: 4, ToolsUsed: 2, CitationsFound: 7},
		},
		Context: types.ResearchContext{
			Status: types.StatusCompleted,
			Reason: types.ReasonAgentComplete,
		},
	})

	out := b.String()
	for _, want := range []string{
		"run run-1 completed",
		"iterations: 4",
		"papers:     3",
		"citations:  7",
		"Found three relevant papers.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// A failed run still prints its statistics and degraded-summary notice so
// the operator sees what the run accomplished before it died.
func TestPrintResultFailed(t *testing.T) {
	var b strings.Builder
	printResult(&b, "run-2", types.RunResult{
		PapersDiscovered: 2,
		FinalSummary: types.Summary{
			Partial: true,
			Stats:   types.ResearchStats{IterationsCompleted: 3, ToolsUsed: 1},
		},
		Context: types.ResearchContext{
			Status: types.StatusFailed,
			Reason: types.ReasonDecisionErrors,
		},
	})

	out := b.String()
	for _, want := range []string{
		"run run-2 failed",
		"iterations: 3",
		"papers:     2",
		"statistics only",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
