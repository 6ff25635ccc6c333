// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// maxProjectionPapers bounds the paper listing in a projection; the rest is
// reported as a count.
const maxProjectionPapers = 10

// Projection renders a compact, bounded view of the context for the decision
// engine. Raw history is never sent wholesale: the most recent tool results
// appear in full until the character budget is reached, and everything older
// collapses into per-tool counts.
func Projection(c types.ResearchContext, budget int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query: %s\n", c.Query)
	if c.Focus != "" {
		fmt.Fprintf(&b, "Updated focus: %s\n", c.Focus)
	}
	if c.Plan != nil {
		fmt.Fprintf(&b, "Methodology: %s\n", c.Plan.Methodology)
		if len(c.Plan.Steps) > 0 {
			fmt.Fprintf(&b, "Suggested steps: %s\n", strings.Join(c.Plan.Steps, ", "))
		}
	}
	fmt.Fprintf(&b, "Iteration: %d\n", c.Iteration)

	writePapers(&b, c.Papers)
	if len(c.Citations) > 0 {
		fmt.Fprintf(&b, "Citations found: %d\n", len(c.Citations))
	}
	if len(c.Downloaded) > 0 {
		fmt.Fprintf(&b, "Papers downloaded: %d\n", len(c.Downloaded))
	}
	if c.AnalysisCount > 0 {
		fmt.Fprintf(&b, "Analyses completed: %d\n", c.AnalysisCount)
	}

	writeHistory(&b, c.ToolResults, budget)
	return b.String()
}

func writePapers(b *strings.Builder, papers []types.Paper) {
	if len(papers) == 0 {
		return
	}
	fmt.Fprintf(b, "Papers discovered (%d):\n", len(papers))
	shown := papers
	if len(shown) > maxProjectionPapers {
		shown = shown[:maxProjectionPapers]
	}
	for _, p := range shown {
		fmt.Fprintf(b, "  - %s: %s\n", p.ID, p.Title)
	}
	if len(papers) > maxProjectionPapers {
		fmt.Fprintf(b, "  ... and %d more\n", len(papers)-maxProjectionPapers)
	}
}

// writeHistory appends recent tool results in full, newest last, until the
// overall budget is reached; older entries collapse into per-tool counts.
func writeHistory(b *strings.Builder, results []types.ToolInvocationRecord, budget int) {
	if len(results) == 0 {
		return
	}

	// Walk backwards deciding how many recent records fit in the budget.
	remaining := budget - b.Len()
	full := 0
	for i := len(results) - 1; i >= 0; i-- {
		line := historyLine(results[i])
		if remaining-len(line) < 0 {
			break
		}
		remaining -= len(line)
		full++
	}
	// Always show at least the latest record so the model sees what just
	// happened, even under a tight budget.
	if full == 0 {
		full = 1
	}

	older := results[:len(results)-full]
	if len(older) > 0 {
		type tally struct{ ok, failed int }
		counts := make(map[string]*tally)
		for _, r := range older {
			t := counts[r.ToolName]
			if t == nil {
				t = &tally{}
				counts[r.ToolName] = t
			}
			if r.Outcome.OK {
				t.ok++
			} else {
				t.failed++
			}
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(b, "Earlier tool calls (summarized): ")
		parts := make([]string, 0, len(names))
		for _, name := range names {
			t := counts[name]
			parts = append(parts, fmt.Sprintf("%s ×%d (%d ok, %d failed)", name, t.ok+t.failed, t.ok, t.failed))
		}
		fmt.Fprintf(b, "%s\n", strings.Join(parts, "; "))
	}

	fmt.Fprintf(b, "Recent tool results:\n")
	for _, r := range results[len(results)-full:] {
		b.WriteString(historyLine(r))
	}
}

func historyLine(r types.ToolInvocationRecord) string {
	if r.Outcome.OK {
		return fmt.Sprintf("  - %s: %s\n", r.ToolName, r.Outcome.Result)
	}
	return fmt.Sprintf("  - %s: failed (%s): %s\n", r.ToolName, r.Outcome.Kind, r.Outcome.Message)
}
