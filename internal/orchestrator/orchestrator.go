// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator drives one research run through an explicit state
// machine: initializing → planning → iterating → summarizing → terminal.
// The loop owns the run's ResearchContext exclusively; every transition
// commits a consistent snapshot that external readers can observe and a
// checkpoint hook can persist. Branching depends only on committed state and
// activity outcomes, so replaying the same outcomes reproduces the same run.
// See docs/ARCHITECTURE.md § Orchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/decision"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Decider proposes the research plan and each next action.
// *decision.Engine satisfies this.
type Decider interface {
	Plan(ctx context.Context, query string) (types.Plan, error)
	Decide(ctx context.Context, projection string) (decision.Decision, error)
}

// ToolRunner executes one validated tool call to its final outcome.
// *executor.Executor satisfies this.
type ToolRunner interface {
	Execute(ctx context.Context, tool registry.Tool, args map[string]any) (types.ToolOutput, types.ToolInvocationRecord)
}

// Summarizer compresses a finished context into a Summary. Implementations
// must degrade to a stats-only summary rather than fail.
type Summarizer interface {
	Summarize(ctx context.Context, c types.ResearchContext) types.Summary
}

// CheckpointFunc persists a committed context. Called after every commit. A
// checkpoint error is reported but does not stop the run; the in-memory state
// stays authoritative and the next commit retries persistence.
type CheckpointFunc func(c types.ResearchContext) error

// Params wires one orchestrator instance.
type Params struct {
	Config     types.OrchestratorConfig
	Registry   *registry.Registry
	Decider    Decider
	Runner     ToolRunner
	Summarizer Summarizer

	// Checkpoint is optional; nil disables durability.
	Checkpoint CheckpointFunc

	// Now supplies the clock, read only at iteration boundaries.
	// Defaults to time.Now.
	Now func() time.Time

	// Progress receives human-readable progress lines. Defaults to discard.
	Progress io.Writer
}

// Orchestrator is the deterministic control loop for a single run. Exactly
// one goroutine executes Run; Snapshot and Cancel are safe from any
// goroutine at any time.
type Orchestrator struct {
	cfg        types.OrchestratorConfig
	reg        *registry.Registry
	decider    Decider
	runner     ToolRunner
	summarizer Summarizer
	checkpoint CheckpointFunc
	now        func() time.Time
	w          io.Writer

	mu        sync.RWMutex
	committed types.ResearchContext
	activity  string

	signals struct {
		sync.Mutex
		cancel  bool
		refocus string
	}
}

// RunSpec identifies a fresh run.
type RunSpec struct {
	RunID         string
	Query         string
	UserID        string
	CorrelationID string
}

// NewRun builds an orchestrator for a fresh run.
func NewRun(p Params, spec RunSpec) *Orchestrator {
	o := build(p)
	o.committed = types.ResearchContext{
		RunID:         spec.RunID,
		Query:         spec.Query,
		UserID:        spec.UserID,
		CorrelationID: spec.CorrelationID,
		Status:        types.StatusInitializing,
		StartedAt:     o.now(),
	}
	o.committed.LastUpdatedAt = o.committed.StartedAt
	o.activity = "initializing"
	return o
}

// Resume builds an orchestrator continuing from a previously committed
// context, e.g. one reloaded from the checkpoint store after a crash.
func Resume(p Params, saved types.ResearchContext) (*Orchestrator, error) {
	if saved.Status.Terminal() {
		return nil, fmt.Errorf("run %s already terminal (%s)", saved.RunID, saved.Status)
	}
	o := build(p)
	o.committed = types.CloneContext(saved)
	o.activity = "resuming"
	return o, nil
}

func build(p Params) *Orchestrator {
	o := &Orchestrator{
		cfg:        p.Config.Defaults(),
		reg:        p.Registry,
		decider:    p.Decider,
		runner:     p.Runner,
		summarizer: p.Summarizer,
		checkpoint: p.Checkpoint,
		now:        p.Now,
		w:          p.Progress,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.w == nil {
		o.w = io.Discard
	}
	return o
}

// Snapshot returns the most recently committed state. It never blocks on an
// in-flight iteration and never exposes a partially merged context.
func (o *Orchestrator) Snapshot() types.StatusSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return types.StatusSnapshot{
		RunID:            o.committed.RunID,
		Status:           o.committed.Status,
		Iteration:        o.committed.Iteration,
		PapersDiscovered: len(o.committed.Papers),
		AnalysisCount:    o.committed.AnalysisCount,
		Activity:         o.activity,
	}
}

// Context returns a deep copy of the last committed context.
func (o *Orchestrator) Context() types.ResearchContext {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return types.CloneContext(o.committed)
}

// Cancel requests cooperative cancellation. The loop observes it at the next
// iteration boundary; the last fully committed context is preserved.
func (o *Orchestrator) Cancel() {
	o.signals.Lock()
	o.signals.cancel = true
	o.signals.Unlock()
}

// Refocus records a note steering subsequent iterations. Observed at the
// next iteration boundary and surfaced in the decision projection.
func (o *Orchestrator) Refocus(note string) {
	o.signals.Lock()
	o.signals.refocus = note
	o.signals.Unlock()
}

// Run executes the state machine to a terminal status and returns the final
// result. The returned error is non-nil only when the run ends Failed; the
// result is complete in every case, including failure and cancellation.
func (o *Orchestrator) Run(ctx context.Context) (types.RunResult, error) {
	cur := o.Context()

	if cur.Status == types.StatusInitializing {
		if err := o.initialize(&cur); err != nil {
			return o.settleFailed(&cur, types.ReasonInvalidInput, err)
		}
	}

	if cur.Status == types.StatusPlanning {
		if err := o.plan(ctx, &cur); err != nil {
			return o.settleFailed(&cur, types.ReasonPlanningFailed, err)
		}
	}

	consecutiveDecisionErrors := 0
	for cur.Status == types.StatusIterating {
		if o.cancelled(ctx) {
			return o.settleCancelled(&cur)
		}
		o.applyRefocus(&cur)

		// Budget exhaustion wins the tie against a later Complete signal.
		if reason, exceeded := o.budgetExceeded(&cur); exceeded {
			cur.Reason = reason
			fmt.Fprintf(o.w, "budget exhausted after %d iteration(s)\n", cur.Iteration)
			break
		}

		d, err := o.decider.Decide(ctx, Projection(cur, o.cfg.ProjectionBudget))
		if err != nil {
			var dErr *decision.DecisionError
			if !errors.As(err, &dErr) {
				dErr = &decision.DecisionError{Message: "unexpected decider failure", Err: err}
			}
			consecutiveDecisionErrors++
			if consecutiveDecisionErrors >= o.cfg.MaxConsecutiveDecisionErrors {
				return o.settleFailed(&cur, types.ReasonDecisionErrors,
					fmt.Errorf("%d consecutive decision failures, last: %w", consecutiveDecisionErrors, dErr))
			}
			// One unusable decision is one failed iteration, not a dead run.
			o.commitIteration(&cur, []types.ToolInvocationRecord{{
				ToolName:  "decide",
				StartedAt: o.now(),
				Outcome:   types.ToolOutcome{Kind: types.FailDecision, Message: dErr.Error()},
				Attempts:  1,
			}}, nil)
			fmt.Fprintf(o.w, "iteration %d: decision failed (%d consecutive)\n", cur.Iteration, consecutiveDecisionErrors)
			continue
		}
		consecutiveDecisionErrors = 0

		if d.Complete {
			cur.Reason = types.ReasonAgentComplete
			fmt.Fprintf(o.w, "agent declared research complete: %s\n", d.Reason)
			break
		}

		records, outputs := o.executeCalls(ctx, &cur, d.Calls)
		o.commitIteration(&cur, records, outputs)
		fmt.Fprintf(o.w, "iteration %d: %d call(s), %d paper(s) total\n",
			cur.Iteration, len(d.Calls), len(cur.Papers))
	}

	if o.cancelled(ctx) {
		return o.settleCancelled(&cur)
	}
	return o.settleCompleted(ctx, &cur)
}

// initialize validates the query and commits the planning transition.
func (o *Orchestrator) initialize(cur *types.ResearchContext) error {
	if cur.Query == "" {
		return fmt.Errorf("research query is empty")
	}
	cur.Status = types.StatusPlanning
	o.commit(cur, "planning research strategy")
	return nil
}

// plan obtains the write-once research plan. A resumed run that already has
// a plan skips the model call.
func (o *Orchestrator) plan(ctx context.Context, cur *types.ResearchContext) error {
	if cur.Plan == nil {
		p, err := o.decider.Plan(ctx, cur.Query)
		if err != nil {
			return err
		}
		cur.Plan = &p
		fmt.Fprintf(o.w, "plan: %s\n", p.Methodology)
	}
	cur.Status = types.StatusIterating
	o.commit(cur, "iterating")
	return nil
}

// budgetExceeded checks the iteration and time budgets.
func (o *Orchestrator) budgetExceeded(cur *types.ResearchContext) (types.TerminationReason, bool) {
	if cur.Iteration >= o.cfg.MaxIterations {
		return types.ReasonBudgetExceeded, true
	}
	if o.cfg.TimeBudget > 0 && o.now().Sub(cur.StartedAt) >= o.cfg.TimeBudget {
		return types.ReasonBudgetExceeded, true
	}
	return "", false
}

// executeCalls validates and runs the proposed calls. A single call runs
// inline; multiple calls fan out with bounded concurrency and results are
// kept in submission order so the merge is deterministic regardless of
// completion order. An unknown or invalid tool yields a failure record for
// that call without aborting the run.
func (o *Orchestrator) executeCalls(ctx context.Context, cur *types.ResearchContext, calls []decision.ToolCall) ([]types.ToolInvocationRecord, []types.ToolOutput) {
	records := make([]types.ToolInvocationRecord, len(calls))
	outputs := make([]types.ToolOutput, len(calls))

	type job struct {
		idx  int
		tool registry.Tool
		args map[string]any
	}
	var jobs []job

	for i, call := range calls {
		tool, err := o.reg.Lookup(call.Name)
		if err != nil {
			records[i] = types.ToolInvocationRecord{
				ToolName:  call.Name,
				Arguments: call.Args,
				StartedAt: o.now(),
				Outcome:   types.ToolOutcome{Kind: types.FailUnknownTool, Message: err.Error()},
				Attempts:  1,
			}
			fmt.Fprintf(o.w, "warning: proposed tool %q is not registered\n", call.Name)
			continue
		}
		if err := o.reg.ValidateCall(call.Name, call.Args); err != nil {
			records[i] = types.ToolInvocationRecord{
				ToolName:  call.Name,
				Arguments: call.Args,
				StartedAt: o.now(),
				Outcome:   types.ToolOutcome{Kind: types.FailPermanent, Message: err.Error()},
				Attempts:  1,
			}
			continue
		}
		jobs = append(jobs, job{idx: i, tool: tool, args: call.Args})
	}

	if len(jobs) == 1 {
		j := jobs[0]
		outputs[j.idx], records[j.idx] = o.runner.Execute(ctx, j.tool, j.args)
		return records, outputs
	}

	sem := make(chan struct{}, o.cfg.MaxParallelCalls)
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outputs[j.idx], records[j.idx] = o.runner.Execute(ctx, j.tool, j.args)
		}(j)
	}
	wg.Wait()

	return records, outputs
}

// commitIteration merges one completed pass into the context and commits it:
// records append, papers and citations union, counters accumulate, the
// iteration counter advances by exactly one.
func (o *Orchestrator) commitIteration(cur *types.ResearchContext, records []types.ToolInvocationRecord, outputs []types.ToolOutput) {
	for _, r := range records {
		cur.ToolResults = append(cur.ToolResults, r)
	}
	for _, out := range outputs {
		mergeOutput(cur, out)
	}
	cur.Iteration++
	o.commit(cur, fmt.Sprintf("completed iteration %d", cur.Iteration))
}

// mergeOutput folds one tool output into the context idempotently.
func mergeOutput(cur *types.ResearchContext, out types.ToolOutput) {
	for _, p := range out.Papers {
		if p.ID == "" || cur.HasPaper(p.ID) {
			continue
		}
		cur.Papers = append(cur.Papers, p)
	}
	for _, c := range out.Citations {
		if hasCitation(cur, c) {
			continue
		}
		cur.Citations = append(cur.Citations, c)
	}
	for _, id := range out.Downloaded {
		if !contains(cur.Downloaded, id) {
			cur.Downloaded = append(cur.Downloaded, id)
		}
	}
	cur.AnalysisCount += out.Analyses
}

func hasCitation(cur *types.ResearchContext, c types.Citation) bool {
	for _, existing := range cur.Citations {
		if existing.Title == c.Title && existing.FromPaperID == c.FromPaperID {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// commit publishes cur as the new committed context and invokes the
// checkpoint hook. Publication is atomic with respect to Snapshot readers.
func (o *Orchestrator) commit(cur *types.ResearchContext, activity string) {
	cur.LastUpdatedAt = o.now()
	snapshot := types.CloneContext(*cur)

	o.mu.Lock()
	o.committed = snapshot
	o.activity = activity
	o.mu.Unlock()

	if o.checkpoint != nil {
		if err := o.checkpoint(snapshot); err != nil {
			fmt.Fprintf(o.w, "warning: checkpoint failed: %v\n", err)
		}
	}
}

// cancelled reports whether an external cancellation is pending, via either
// the Cancel signal or the run context.
func (o *Orchestrator) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	o.signals.Lock()
	defer o.signals.Unlock()
	return o.signals.cancel
}

// applyRefocus folds a pending refocus note into the context, if any.
func (o *Orchestrator) applyRefocus(cur *types.ResearchContext) {
	o.signals.Lock()
	note := o.signals.refocus
	o.signals.refocus = ""
	o.signals.Unlock()
	if note == "" {
		return
	}
	cur.Focus = note
	o.commit(cur, "refocused")
	fmt.Fprintf(o.w, "research focus updated: %s\n", note)
}

// settleCompleted runs the summarizing phase. Aggregator degradation never
// demotes the run: accumulated papers and citations are kept and the run
// completes with a partial summary.
func (o *Orchestrator) settleCompleted(ctx context.Context, cur *types.ResearchContext) (types.RunResult, error) {
	cur.Status = types.StatusSummarizing
	o.commit(cur, "summarizing findings")

	summary := o.summarizer.Summarize(ctx, types.CloneContext(*cur))

	cur.Status = types.StatusCompleted
	cur.FinalSummary = &summary
	o.commit(cur, "completed")

	return types.RunResult{
		Success:          true,
		PapersDiscovered: len(cur.Papers),
		FinalSummary:     summary,
		Context:          types.CloneContext(*cur),
	}, nil
}

// settleFailed commits the failed terminal state. The result still carries
// the full committed context and a stats-only summary for audit.
func (o *Orchestrator) settleFailed(cur *types.ResearchContext, reason types.TerminationReason, err error) (types.RunResult, error) {
	cur.Status = types.StatusFailed
	cur.Reason = reason
	cur.Error = err.Error()
	summary := statsOnlySummary(*cur)
	cur.FinalSummary = &summary
	o.commit(cur, "failed")

	return types.RunResult{
		PapersDiscovered: len(cur.Papers),
		FinalSummary:     summary,
		Context:          types.CloneContext(*cur),
	}, fmt.Errorf("run %s failed: %w", cur.RunID, err)
}

// settleCancelled commits the cancelled terminal state with the last fully
// committed context — never a partially merged iteration.
func (o *Orchestrator) settleCancelled(cur *types.ResearchContext) (types.RunResult, error) {
	cur.Status = types.StatusCancelled
	cur.Reason = types.ReasonCancelled
	summary := statsOnlySummary(*cur)
	cur.FinalSummary = &summary
	o.commit(cur, "cancelled")
	fmt.Fprintf(o.w, "run cancelled after %d committed iteration(s)\n", cur.Iteration)

	return types.RunResult{
		PapersDiscovered: len(cur.Papers),
		FinalSummary:     summary,
		Context:          types.CloneContext(*cur),
	}, nil
}

// statsOnlySummary builds the degraded summary used for failed and
// cancelled runs.
func statsOnlySummary(c types.ResearchContext) types.Summary {
	return types.Summary{Partial: true, Stats: Stats(c)}
}

// Stats computes run statistics purely from a context. Decision and
// unknown-tool failure records never name a real tool, so they are left
// out of the tool tally.
func Stats(c types.ResearchContext) types.ResearchStats {
	tools := make(map[string]bool)
	for _, r := range c.ToolResults {
		if r.Outcome.Kind == types.FailDecision || r.Outcome.Kind == types.FailUnknownTool {
			continue
		}
		tools[r.ToolName] = true
	}
	return types.ResearchStats{
		PapersAnalyzed:      len(c.Papers),
		IterationsCompleted: c.Iteration,
		ToolsUsed:           len(tools),
		CitationsFound:      len(c.Citations),
	}
}
