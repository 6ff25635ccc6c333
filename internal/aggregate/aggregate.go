// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate condenses a finished research run into a final summary.
// Summarization is best-effort: when the model is unreachable or produces
// nothing usable, the run still completes with a stats-only partial summary.
package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/research-orchestrator/internal/decision"
	"github.com/pdiddy/research-orchestrator/internal/orchestrator"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// maxPapersInPrompt bounds the paper list handed to the model; beyond it the
// remainder is reported as a count.
const maxPapersInPrompt = 25

var summaryPromptTmpl = template.Must(template.New("summary").Parse(`You are a research assistant writing the final summary of an automated literature search.

Research query: {{.Query}}
{{if .Focus}}Updated focus: {{.Focus}}
{{end}}{{if .Methodology}}Methodology: {{.Methodology}}
{{end}}
Papers discovered ({{.PaperCount}} total):
{{.Papers}}
{{if .Citations}}Citations extracted: {{.Citations}}
{{end}}Iterations completed: {{.Iterations}}

Write a concise research summary in plain prose: what was found, how the papers relate to the query, and notable gaps. Respond with the summary text only, no preamble and no JSON.
`))

// Aggregator builds final run summaries with a model backend.
type Aggregator struct {
	backend decision.Backend
	w       io.Writer
}

// New returns an Aggregator using backend for text generation. Progress lines
// go to w; nil discards them.
func New(backend decision.Backend, w io.Writer) *Aggregator {
	if w == nil {
		w = io.Discard
	}
	return &Aggregator{backend: backend, w: w}
}

// Summarize produces the final summary for a finished context. It never
// returns an error: a failed or empty model response degrades to a partial,
// stats-only summary so the accumulated findings are preserved either way.
func (a *Aggregator) Summarize(ctx context.Context, c types.ResearchContext) types.Summary {
	stats := orchestrator.Stats(c)

	prompt, err := renderSummaryPrompt(c)
	if err != nil {
		fmt.Fprintf(a.w, "warning: summary prompt failed: %v\n", err)
		return types.Summary{Partial: true, Stats: stats}
	}

	text, err := a.backend.Complete(ctx, prompt)
	if err != nil {
		fmt.Fprintf(a.w, "warning: summarization degraded to stats only: %v\n", err)
		return types.Summary{Partial: true, Stats: stats}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		fmt.Fprintln(a.w, "warning: empty summary from model, keeping stats only")
		return types.Summary{Partial: true, Stats: stats}
	}

	return types.Summary{Text: text, Stats: stats}
}

func renderSummaryPrompt(c types.ResearchContext) (string, error) {
	data := struct {
		Query       string
		Focus       string
		Methodology string
		PaperCount  int
		Papers      string
		Citations   int
		Iterations  int
	}{
		Query:      c.Query,
		Focus:      c.Focus,
		PaperCount: len(c.Papers),
		Papers:     renderPaperList(c.Papers),
		Citations:  len(c.Citations),
		Iterations: c.Iteration,
	}
	if c.Plan != nil {
		data.Methodology = c.Plan.Methodology
	}

	var buf bytes.Buffer
	if err := summaryPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderPaperList(papers []types.Paper) string {
	if len(papers) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, p := range papers {
		if i == maxPapersInPrompt {
			fmt.Fprintf(&b, "... and %d more\n", len(papers)-maxPapersInPrompt)
			break
		}
		fmt.Fprintf(&b, "- %s", p.Title)
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, " (%s", p.Authors[0])
			if len(p.Authors) > 1 {
				fmt.Fprintf(&b, " et al.")
			}
			fmt.Fprintf(&b, ")")
		}
		if p.Abstract != "" {
			fmt.Fprintf(&b, ": %s", truncate(p.Abstract, 200))
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
