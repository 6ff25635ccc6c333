// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research orchestrator.
// See docs/ARCHITECTURE.md § Data Model.
package types

import "time"

// RunStatus is the orchestrator state machine phase for one research run.
// Transitions follow initializing → planning → iterating → summarizing →
// {completed | failed | cancelled}; terminal states admit no further change.
type RunStatus string

const (
	StatusInitializing RunStatus = "initializing"
	StatusPlanning     RunStatus = "planning"
	StatusIterating    RunStatus = "iterating"
	StatusSummarizing  RunStatus = "summarizing"
	StatusCompleted    RunStatus = "completed"
	StatusFailed       RunStatus = "failed"
	StatusCancelled    RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TerminationReason records why a run left the iterating phase.
type TerminationReason string

const (
	// ReasonAgentComplete: the decision engine declared the research done.
	ReasonAgentComplete TerminationReason = "agent_complete"

	// ReasonBudgetExceeded: the iteration or time budget ran out. Not an
	// error; the run still summarizes and completes.
	ReasonBudgetExceeded TerminationReason = "budget_exceeded"

	// ReasonCancelled: an external cancellation request was observed.
	ReasonCancelled TerminationReason = "cancelled"

	// ReasonInvalidInput: the initial query failed validation.
	ReasonInvalidInput TerminationReason = "invalid_input"

	// ReasonPlanningFailed: the decision engine could not produce a plan.
	ReasonPlanningFailed TerminationReason = "planning_failed"

	// ReasonDecisionErrors: consecutive decision failures crossed the
	// configured threshold during iteration.
	ReasonDecisionErrors TerminationReason = "decision_errors"
)

// FailureKind classifies a failed activity for the error taxonomy.
type FailureKind string

const (
	FailInvalidInput     FailureKind = "invalid_input"
	FailTransient        FailureKind = "transient_tool_error"
	FailPermanent        FailureKind = "permanent_tool_error"
	FailUnknownTool      FailureKind = "unknown_tool"
	FailDecision         FailureKind = "decision_error"
	FailTimeout          FailureKind = "timeout"
	FailRetriesExhausted FailureKind = "retries_exhausted"
)

// Paper holds metadata for a discovered paper. Records are immutable once
// merged into a run's context; re-discovery of the same ID is a no-op.
type Paper struct {
	// ID is the stable external identifier (arXiv ID, DOI, or S2 paper ID).
	ID string `json:"id" yaml:"id"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Date is the publication or preprint date, when known.
	Date time.Time `json:"date,omitzero" yaml:"date,omitempty"`

	// SourceURL is where the paper can be retrieved.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	// Source identifies which backend found this paper (e.g. "arxiv",
	// "semantic_scholar").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Citation is a reference extracted from a paper's text.
type Citation struct {
	// Title is the cited work's title or reference key.
	Title string `json:"title" yaml:"title"`

	// SourceText is the surrounding text where the citation appears.
	SourceText string `json:"source_text,omitempty" yaml:"source_text,omitempty"`

	// FromPaperID identifies the paper the citation was extracted from.
	FromPaperID string `json:"from_paper_id,omitempty" yaml:"from_paper_id,omitempty"`
}

// Plan is the research strategy produced once during the planning phase.
// Write-once: the orchestrator never replaces a recorded plan.
type Plan struct {
	// Methodology is the free-text research approach.
	Methodology string `json:"methodology" yaml:"methodology"`

	// Steps lists intended tool names in suggested order. Advisory only;
	// the iteration loop is not bound to follow them.
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// ToolOutcome is the final result of one tool invocation, success or failure.
type ToolOutcome struct {
	// OK reports whether the invocation succeeded.
	OK bool `json:"ok" yaml:"ok"`

	// Result is a compact human-readable summary of a successful call.
	Result string `json:"result,omitempty" yaml:"result,omitempty"`

	// Kind classifies a failure. Empty on success.
	Kind FailureKind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Message is the failure detail. Empty on success.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ToolInvocationRecord is the append-only audit record of one tool call.
// Records are never rewritten after being merged into the context.
type ToolInvocationRecord struct {
	ToolName  string         `json:"tool_name" yaml:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Outcome   ToolOutcome    `json:"outcome" yaml:"outcome"`

	// Attempts is the retry count at the time of the final outcome.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// ToolOutput is what a tool handler returns on success. The orchestrator
// merges each field idempotently into the run context.
type ToolOutput struct {
	// Papers are newly discovered papers. Duplicates of already-known IDs
	// are dropped during the merge.
	Papers []Paper `json:"papers,omitempty" yaml:"papers,omitempty"`

	// Citations are references extracted during the call.
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`

	// Downloaded lists paper IDs whose PDFs were stored locally.
	Downloaded []string `json:"downloaded,omitempty" yaml:"downloaded,omitempty"`

	// Analyses counts analysis artifacts produced by the call.
	Analyses int `json:"analyses,omitempty" yaml:"analyses,omitempty"`

	// Summary is a one-line description of what the call accomplished,
	// recorded in the invocation record and the decision projection.
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// ResearchContext is the single durable state record for one research run.
// It is owned exclusively by the run's orchestrator: all mutation happens
// through the orchestrator's merge step, and the record becomes immutable
// the moment Status reaches a terminal value.
type ResearchContext struct {
	RunID  string `json:"run_id" yaml:"run_id"`
	Query  string `json:"query" yaml:"query"`
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	// CorrelationID is the caller-supplied idempotency key. Submitting the
	// same correlation id twice joins the existing run instead of starting
	// a new one.
	CorrelationID string `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`

	// Iteration counts completed loop passes. Strictly increases by one
	// per committed pass, starting at zero.
	Iteration int `json:"iteration" yaml:"iteration"`

	// Papers holds discovered papers in discovery order, deduplicated by ID.
	Papers []Paper `json:"papers,omitempty" yaml:"papers,omitempty"`

	// ToolResults is the append-only sequence of invocation records.
	ToolResults []ToolInvocationRecord `json:"tool_results,omitempty" yaml:"tool_results,omitempty"`

	// Citations holds extracted citations in extraction order.
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`

	// Downloaded lists paper IDs stored locally, deduplicated.
	Downloaded []string `json:"downloaded,omitempty" yaml:"downloaded,omitempty"`

	// AnalysisCount totals analysis artifacts across all tool calls.
	AnalysisCount int `json:"analysis_count" yaml:"analysis_count"`

	// Plan is set once after the planning phase.
	Plan *Plan `json:"plan,omitempty" yaml:"plan,omitempty"`

	// FinalSummary is set with the terminal commit, so the outcome of a
	// finished run survives a process restart.
	FinalSummary *Summary `json:"final_summary,omitempty" yaml:"final_summary,omitempty"`

	Status RunStatus         `json:"status" yaml:"status"`
	Reason TerminationReason `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Focus is an optional mid-run refocus note supplied externally and
	// surfaced to the decision engine on subsequent iterations.
	Focus string `json:"focus,omitempty" yaml:"focus,omitempty"`

	// Error records the failure message for a failed run.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at" yaml:"last_updated_at"`
}

// HasPaper reports whether a paper with the given ID is already recorded.
func (c *ResearchContext) HasPaper(id string) bool {
	for _, p := range c.Papers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// CloneContext returns a deep copy safe to hand to readers while the
// orchestrator continues mutating the original.
func CloneContext(in ResearchContext) ResearchContext {
	out := in
	out.Papers = clonePapers(in.Papers)
	out.Citations = append([]Citation(nil), in.Citations...)
	out.Downloaded = append([]string(nil), in.Downloaded...)
	if in.Plan != nil {
		planCopy := *in.Plan
		planCopy.Steps = append([]string(nil), in.Plan.Steps...)
		out.Plan = &planCopy
	}
	if in.ToolResults != nil {
		out.ToolResults = make([]ToolInvocationRecord, len(in.ToolResults))
		for i, r := range in.ToolResults {
			rc := r
			rc.Arguments = cloneArguments(r.Arguments)
			out.ToolResults[i] = rc
		}
	}
	if in.FinalSummary != nil {
		summaryCopy := *in.FinalSummary
		out.FinalSummary = &summaryCopy
	}
	return out
}

func clonePapers(in []Paper) []Paper {
	if in == nil {
		return nil
	}
	out := make([]Paper, len(in))
	for i, p := range in {
		pc := p
		pc.Authors = append([]string(nil), p.Authors...)
		out[i] = pc
	}
	return out
}

func cloneArguments(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StatusSnapshot is a point-in-time projection of a run's committed context,
// safe to serialize and hand to external pollers.
type StatusSnapshot struct {
	RunID            string    `json:"run_id" yaml:"run_id"`
	Status           RunStatus `json:"status" yaml:"status"`
	Iteration        int       `json:"iteration" yaml:"iteration"`
	PapersDiscovered int       `json:"papers_discovered" yaml:"papers_discovered"`
	AnalysisCount    int       `json:"analysis_count" yaml:"analysis_count"`

	// Activity is a human-readable label for what the run is doing.
	Activity string `json:"activity" yaml:"activity"`
}

// ResearchStats summarizes a finished run numerically.
type ResearchStats struct {
	PapersAnalyzed      int `json:"papers_analyzed" yaml:"papers_analyzed"`
	IterationsCompleted int `json:"iterations_completed" yaml:"iterations_completed"`
	ToolsUsed           int `json:"tools_used" yaml:"tools_used"`
	CitationsFound      int `json:"citations_found" yaml:"citations_found"`
}

// Summary is the result aggregator's final compression of a run.
type Summary struct {
	// Text is the prose summary. Empty when only stats could be produced.
	Text string `json:"summary" yaml:"summary"`

	// Partial marks a summary whose prose generation failed; the stats and
	// the underlying context are still complete.
	Partial bool `json:"partial,omitempty" yaml:"partial,omitempty"`

	Stats ResearchStats `json:"research_stats" yaml:"research_stats"`
}

// RunResult is returned once a run reaches a terminal status.
type RunResult struct {
	Success          bool            `json:"success" yaml:"success"`
	PapersDiscovered int             `json:"papers_discovered" yaml:"papers_discovered"`
	FinalSummary     Summary         `json:"final_summary" yaml:"final_summary"`
	Context          ResearchContext `json:"context" yaml:"context"`
}
