// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package decision

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/research-orchestrator/internal/registry"
)

// planPromptTmpl asks the model for a research strategy before the iteration
// loop starts. The steps list is advisory; only registered tool names are
// accepted in it.
var planPromptTmpl = template.Must(template.New("plan").Parse(`You are a research planning assistant. Given a research query, produce a research plan for an automated agent that discovers and analyzes academic papers.

Available tools:
{{.Tools}}

Respond with a JSON object only, no text outside it:
{"methodology": "<free-text research approach>", "steps": ["<tool name>", "..."]}

Each entry in "steps" must be one of the tool names listed above.

Research query: {{.Query}}
`))

// decidePromptTmpl asks the model for the next action during iteration.
var decidePromptTmpl = template.Must(template.New("decide").Parse(`You are a research agent deciding the next action. Based on the research context below and the available tools, choose the next step.

Available tools:
{{.Tools}}

Respond with a JSON object only, in exactly one of these forms:
{"action": "complete", "reason": "<why the research is done>"}
{"action": "use_tool", "reason": "<why>", "calls": [{"tool_name": "<name>", "tool_args": {"<arg>": "<value>"}}]}

Rules:
- Every tool_name must be one of the tools listed above.
- Provide all required arguments for each chosen tool.
- Propose multiple calls only when they are independent (e.g. downloading several papers).
- Use the actual research query terms from the context, never placeholder text.
- Declare "complete" once the discovered papers and citations answer the query.

Research context:
{{.Projection}}
`))

// renderToolCatalog formats the registry for a prompt: one line per tool,
// arguments annotated with (required) or (optional).
func renderToolCatalog(tools []registry.Tool) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)

		names := make([]string, 0, len(t.Args))
		for name := range t.Args {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			spec := t.Args[name]
			label := "optional"
			if spec.Required {
				label = "required"
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", name, label, spec.Description)
		}
	}
	return b.String()
}

func renderPlanPrompt(query string, tools []registry.Tool) (string, error) {
	var buf bytes.Buffer
	err := planPromptTmpl.Execute(&buf, struct{ Query, Tools string }{Query: query, Tools: renderToolCatalog(tools)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderDecidePrompt(projection string, tools []registry.Tool) (string, error) {
	var buf bytes.Buffer
	err := decidePromptTmpl.Execute(&buf, struct{ Projection, Tools string }{Projection: projection, Tools: renderToolCatalog(tools)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
