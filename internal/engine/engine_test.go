package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/internal/decision"
	"github.com/pdiddy/research-orchestrator/internal/orchestrator"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/internal/runstore"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// stubDecider searches on the first iteration of each run, then completes.
// The projection's iteration counter drives the branch, so the stub is safe
// to share across concurrent runs. release, when non-nil, holds each
// decision until the test allows it to proceed.
type stubDecider struct {
	release chan struct{}
}

func (s *stubDecider) Plan(context.Context, string) (types.Plan, error) {
	return types.Plan{Methodology: "search then stop"}, nil
}

func (s *stubDecider) Decide(_ context.Context, projection string) (decision.Decision, error) {
	if s.release != nil {
		<-s.release
	}
	if strings.Contains(projection, "Iteration: 0\n") {
		return decision.Decision{Calls: []decision.ToolCall{{Name: "search", Args: map[string]any{"query": "q"}}}}, nil
	}
	return decision.Decision{Complete: true}, nil
}

type stubRunner struct{}

func (stubRunner) Execute(_ context.Context, tool registry.Tool, args map[string]any) (types.ToolOutput, types.ToolInvocationRecord) {
	return types.ToolOutput{Papers: []types.Paper{{ID: "p1", Title: "Found"}}},
		types.ToolInvocationRecord{ToolName: tool.Name, Arguments: args, Outcome: types.ToolOutcome{OK: true}, Attempts: 1}
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, c types.ResearchContext) types.Summary {
	return types.Summary{Text: "done: " + c.Query, Stats: orchestrator.Stats(c)}
}

func testEngine(t *testing.T, dec orchestrator.Decider) (*Engine, *runstore.Store) {
	t.Helper()
	store, err := runstore.Open(types.StoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New()
	err = reg.Register(registry.Tool{
		Name: "search",
		Args: map[string]registry.ArgSpec{"query": {Required: true}},
		Handler: func(context.Context, map[string]any, func()) (types.ToolOutput, error) {
			return types.ToolOutput{}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := New(types.EngineConfig{
		Orchestrator: types.OrchestratorConfig{MaxIterations: 10},
	}, reg, store, Options{
		Decider:    dec,
		Runner:     stubRunner{},
		Summarizer: stubSummarizer{},
	})
	return e, store
}

func TestStartAndWait(t *testing.T) {
	e, _ := testEngine(t, &stubDecider{})
	ctx := context.Background()

	runID, err := e.Start(ctx, StartRequest{Query: "attention", UserID: "u1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runID == "" {
		t.Fatal("Start() returned empty run id")
	}

	result, err := e.Wait(ctx, runID)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !result.Success {
		t.Error("result.Success = false")
	}
	if result.PapersDiscovered != 1 {
		t.Errorf("PapersDiscovered = %d, want 1", result.PapersDiscovered)
	}
	if result.FinalSummary.Text != "done: attention" {
		t.Errorf("FinalSummary.Text = %q", result.FinalSummary.Text)
	}
}

func TestStartCorrelationIdempotent(t *testing.T) {
	e, _ := testEngine(t, &stubDecider{})
	ctx := context.Background()

	first, err := e.Start(ctx, StartRequest{Query: "q", CorrelationID: "ticket-42"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Start(ctx, StartRequest{Query: "q", CorrelationID: "ticket-42"})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("Start() twice with one correlation id = %q, %q; want same run", first, second)
	}
	if _, err := e.Wait(ctx, first); err != nil {
		t.Fatal(err)
	}
}

func TestStartDistinctCorrelationsAreIsolated(t *testing.T) {
	e, _ := testEngine(t, &stubDecider{})
	ctx := context.Background()

	a, err := e.Start(ctx, StartRequest{Query: "alpha", CorrelationID: "c-a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Start(ctx, StartRequest{Query: "beta", CorrelationID: "c-b"})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("distinct correlations mapped to one run")
	}

	ra, err := e.Wait(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := e.Wait(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if ra.Context.Query != "alpha" || rb.Context.Query != "beta" {
		t.Errorf("queries = %q, %q", ra.Context.Query, rb.Context.Query)
	}
}

func TestFailedRunDoesNotAffectOthers(t *testing.T) {
	good := &stubDecider{}
	e, _ := testEngine(t, good)
	ctx := context.Background()

	okID, err := e.Start(ctx, StartRequest{Query: "fine"})
	if err != nil {
		t.Fatal(err)
	}
	badID, err := e.Start(ctx, StartRequest{Query: ""}) // empty query fails validation
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Wait(ctx, badID); err == nil {
		t.Error("Wait(bad) error = nil, want failure")
	}
	if _, err := e.Wait(ctx, okID); err != nil {
		t.Errorf("Wait(ok) error = %v, want nil", err)
	}
}

func TestStatusLiveAndStored(t *testing.T) {
	dec := &stubDecider{release: make(chan struct{})}
	e, _ := testEngine(t, dec)
	ctx := context.Background()

	runID, err := e.Start(ctx, StartRequest{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}

	// The run is parked inside its first decision; status must answer.
	snap, err := e.Status(ctx, runID)
	if err != nil {
		t.Fatalf("Status() during run error = %v", err)
	}
	if snap.Status.Terminal() {
		t.Errorf("live status = %s, want non-terminal", snap.Status)
	}

	close(dec.release)
	if _, err := e.Wait(ctx, runID); err != nil {
		t.Fatal(err)
	}

	snap, err = e.Status(ctx, runID)
	if err != nil {
		t.Fatalf("Status() after finish error = %v", err)
	}
	if snap.Status != types.StatusCompleted {
		t.Errorf("stored status = %s, want completed", snap.Status)
	}
	if snap.PapersDiscovered != 1 {
		t.Errorf("stored papers = %d, want 1", snap.PapersDiscovered)
	}
}

func TestStatusUnknownRun(t *testing.T) {
	e, _ := testEngine(t, &stubDecider{})
	if _, err := e.Status(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Status(unknown) error = %v, want ErrRunNotFound", err)
	}
}

func TestCancelLiveRun(t *testing.T) {
	dec := &stubDecider{release: make(chan struct{}, 64)}
	e, _ := testEngine(t, dec)
	ctx := context.Background()

	runID, err := e.Start(ctx, StartRequest{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Cancel(runID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	for i := 0; i < 64; i++ {
		dec.release <- struct{}{}
	}

	result, err := e.Wait(ctx, runID)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.Context.Status != types.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", result.Context.Status)
	}
	if !result.FinalSummary.Partial {
		t.Error("cancelled run summary not marked partial")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	e, _ := testEngine(t, &stubDecider{})
	if err := e.Cancel("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Cancel(unknown) error = %v, want ErrRunNotFound", err)
	}
}

func TestResultWhileActive(t *testing.T) {
	dec := &stubDecider{release: make(chan struct{})}
	e, _ := testEngine(t, dec)
	ctx := context.Background()

	runID, err := e.Start(ctx, StartRequest{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Result(ctx, runID); !errors.Is(err, ErrRunActive) {
		t.Errorf("Result() during run error = %v, want ErrRunActive", err)
	}

	close(dec.release)
	if _, err := e.Wait(ctx, runID); err != nil {
		t.Fatal(err)
	}
	result, err := e.Result(ctx, runID)
	if err != nil {
		t.Fatalf("Result() after finish error = %v", err)
	}
	if !result.Success {
		t.Error("result.Success = false")
	}
	if result.FinalSummary.Text == "" {
		t.Error("stored result lost the final summary text")
	}
}

func TestResumeAllRecoversInterruptedRuns(t *testing.T) {
	e, store := testEngine(t, &stubDecider{})
	ctx := context.Background()

	// A checkpoint left behind by a crashed process: plan recorded, one
	// paper carried over, first iteration not yet committed.
	interrupted := types.ResearchContext{
		RunID:  "run-crashed",
		Query:  "resumed query",
		Status: types.StatusIterating,
		Plan:   &types.Plan{Methodology: "m"},
		Papers: []types.Paper{{ID: "p0", Title: "Earlier"}},
	}
	if err := store.Save(ctx, interrupted); err != nil {
		t.Fatal(err)
	}
	finished := types.ResearchContext{RunID: "run-done", Query: "done", Status: types.StatusCompleted}
	if err := store.Save(ctx, finished); err != nil {
		t.Fatal(err)
	}

	resumed, err := e.ResumeAll(ctx)
	if err != nil {
		t.Fatalf("ResumeAll() error = %v", err)
	}
	if len(resumed) != 1 || resumed[0] != "run-crashed" {
		t.Fatalf("ResumeAll() = %v, want [run-crashed]", resumed)
	}

	result, err := e.Wait(ctx, "run-crashed")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.Context.Status != types.StatusCompleted {
		t.Errorf("Status = %s, want completed", result.Context.Status)
	}
	if result.Context.Iteration != 1 {
		t.Errorf("Iteration = %d, want progress past the checkpoint", result.Context.Iteration)
	}
	if len(result.Context.Papers) != 2 {
		t.Errorf("papers = %d, want checkpointed paper plus new one", len(result.Context.Papers))
	}
}

func TestResumeTerminalRunRejected(t *testing.T) {
	e, store := testEngine(t, &stubDecider{})
	ctx := context.Background()

	done := types.ResearchContext{RunID: "run-done", Query: "q", Status: types.StatusCompleted}
	if err := store.Save(ctx, done); err != nil {
		t.Fatal(err)
	}
	if err := e.Resume(ctx, "run-done"); err == nil {
		t.Error("Resume(terminal) error = nil, want rejection")
	}
}
