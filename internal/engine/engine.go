// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine manages research runs end to end: it wires the decision
// engine, tool executor, and summarizer into an orchestrator per run, tracks
// live runs, checkpoints every commit to the run store, and resumes
// interrupted runs after a restart. Runs are isolated; one failed or
// cancelled run never affects another.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/pdiddy/research-orchestrator/internal/aggregate"
	"github.com/pdiddy/research-orchestrator/internal/decision"
	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/orchestrator"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/internal/runstore"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// ErrRunNotFound is returned when a run id is neither live nor stored.
var ErrRunNotFound = runstore.ErrRunNotFound

// ErrRunActive is returned when a result is requested for a run that has not
// reached a terminal status yet.
var ErrRunActive = errors.New("run still active")

// Engine starts, tracks, and finishes research runs.
type Engine struct {
	cfg     types.EngineConfig
	reg     *registry.Registry
	store   *runstore.Store
	decider orchestrator.Decider
	runner  orchestrator.ToolRunner
	agg     orchestrator.Summarizer
	w       io.Writer

	mu   sync.Mutex
	runs map[string]*handle
}

// handle tracks one live run.
type handle struct {
	orch   *orchestrator.Orchestrator
	done   chan struct{}
	result types.RunResult
	err    error
}

// Options overrides Engine collaborators; zero fields get production wiring.
type Options struct {
	// Decider overrides the model-backed decision engine.
	Decider orchestrator.Decider
	// Runner overrides the retrying tool executor.
	Runner orchestrator.ToolRunner
	// Summarizer overrides the model-backed aggregator.
	Summarizer orchestrator.Summarizer
	// Progress receives human-readable progress lines. Defaults to discard.
	Progress io.Writer
}

// New builds an Engine over an open run store and a populated tool registry.
func New(cfg types.EngineConfig, reg *registry.Registry, store *runstore.Store, opts Options) *Engine {
	w := opts.Progress
	if w == nil {
		w = io.Discard
	}

	decider := opts.Decider
	agg := opts.Summarizer
	if decider == nil || agg == nil {
		backend := &decision.ClaudeBackend{APIKey: cfg.AI.APIKey, Model: cfg.AI.Model}
		if decider == nil {
			decider = decision.New(backend, reg, cfg.AI.MaxRetries)
		}
		if agg == nil {
			agg = aggregate.New(backend, w)
		}
	}

	runner := opts.Runner
	if runner == nil {
		runner = executor.New()
	}

	return &Engine{
		cfg:     cfg,
		reg:     reg,
		store:   store,
		decider: decider,
		runner:  runner,
		agg:     agg,
		w:       w,
		runs:    make(map[string]*handle),
	}
}

// StartRequest describes a run submission.
type StartRequest struct {
	Query  string
	UserID string

	// CorrelationID is an optional idempotency key. Submitting the same key
	// again returns the existing run id instead of starting a second run.
	CorrelationID string
}

// Start begins a new research run and returns its id. The run executes on
// its own goroutine; use Status to observe it and Wait or Result to collect
// the outcome.
func (e *Engine) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.CorrelationID != "" {
		runID, err := e.store.FindByCorrelation(ctx, req.CorrelationID)
		if err == nil {
			fmt.Fprintf(e.w, "correlation %s already running as %s\n", req.CorrelationID, runID)
			return runID, nil
		}
		if !errors.Is(err, runstore.ErrRunNotFound) {
			return "", err
		}
	}

	runID := uuid.NewString()
	orch := orchestrator.NewRun(e.params(), orchestrator.RunSpec{
		RunID:         runID,
		Query:         req.Query,
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
	})

	// Claim the correlation id before the run starts committing; the unique
	// index turns a concurrent duplicate submission into a join.
	if err := e.store.Save(ctx, orch.Context()); err != nil {
		if req.CorrelationID != "" {
			if existing, lookupErr := e.store.FindByCorrelation(ctx, req.CorrelationID); lookupErr == nil {
				return existing, nil
			}
		}
		return "", err
	}

	e.launch(ctx, runID, orch)
	return runID, nil
}

// Resume reloads an interrupted run from its last checkpoint and continues
// it. Returns ErrRunNotFound for unknown ids and an error for runs that are
// already terminal or already live.
func (e *Engine) Resume(ctx context.Context, runID string) error {
	e.mu.Lock()
	_, live := e.runs[runID]
	e.mu.Unlock()
	if live {
		return fmt.Errorf("run %s is already active", runID)
	}

	saved, err := e.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	orch, err := orchestrator.Resume(e.params(), saved)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.w, "resuming run %s from iteration %d\n", runID, saved.Iteration)
	e.launch(ctx, runID, orch)
	return nil
}

// ResumeAll resumes every non-terminal run in the store. Used at process
// start for crash recovery. Returns the resumed run ids.
func (e *Engine) ResumeAll(ctx context.Context) ([]string, error) {
	infos, err := e.store.Resumable(ctx)
	if err != nil {
		return nil, err
	}
	var resumed []string
	for _, info := range infos {
		if err := e.Resume(ctx, info.RunID); err != nil {
			fmt.Fprintf(e.w, "warning: cannot resume run %s: %v\n", info.RunID, err)
			continue
		}
		resumed = append(resumed, info.RunID)
	}
	return resumed, nil
}

func (e *Engine) params() orchestrator.Params {
	return orchestrator.Params{
		Config:     e.cfg.Orchestrator,
		Registry:   e.reg,
		Decider:    e.decider,
		Runner:     e.runner,
		Summarizer: e.agg,
		Checkpoint: func(c types.ResearchContext) error {
			return e.store.Save(context.Background(), c)
		},
		Progress: e.w,
	}
}

func (e *Engine) launch(ctx context.Context, runID string, orch *orchestrator.Orchestrator) {
	h := &handle{orch: orch, done: make(chan struct{})}
	e.mu.Lock()
	e.runs[runID] = h
	e.mu.Unlock()

	go func() {
		h.result, h.err = orch.Run(ctx)
		close(h.done)

		e.mu.Lock()
		delete(e.runs, runID)
		e.mu.Unlock()
	}()
}

// Status returns the current snapshot for a run, live or stored.
func (e *Engine) Status(ctx context.Context, runID string) (types.StatusSnapshot, error) {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if live {
		return h.orch.Snapshot(), nil
	}

	c, err := e.store.Load(ctx, runID)
	if err != nil {
		return types.StatusSnapshot{}, err
	}
	return types.StatusSnapshot{
		RunID:            c.RunID,
		Status:           c.Status,
		Iteration:        c.Iteration,
		PapersDiscovered: len(c.Papers),
		AnalysisCount:    c.AnalysisCount,
		Activity:         string(c.Status),
	}, nil
}

// Context returns the last committed context for a run, live or stored.
func (e *Engine) Context(ctx context.Context, runID string) (types.ResearchContext, error) {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if live {
		return h.orch.Context(), nil
	}
	return e.store.Load(ctx, runID)
}

// Cancel requests cooperative cancellation of a live run. Cancelling a
// finished or unknown run returns ErrRunNotFound.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if !live {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	h.orch.Cancel()
	return nil
}

// Refocus steers a live run's subsequent iterations with a note.
func (e *Engine) Refocus(runID, note string) error {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if !live {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	h.orch.Refocus(note)
	return nil
}

// Wait blocks until the run reaches a terminal status and returns its
// result. The error mirrors the orchestrator's: non-nil only for failed
// runs. For runs that finished in an earlier process, the result is
// reconstructed from the stored context.
func (e *Engine) Wait(ctx context.Context, runID string) (types.RunResult, error) {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if live {
		select {
		case <-h.done:
			return h.result, h.err
		case <-ctx.Done():
			return types.RunResult{}, ctx.Err()
		}
	}
	return e.storedResult(ctx, runID)
}

// Result returns the outcome of a finished run without blocking. A live,
// unfinished run returns ErrRunActive.
func (e *Engine) Result(ctx context.Context, runID string) (types.RunResult, error) {
	e.mu.Lock()
	h, live := e.runs[runID]
	e.mu.Unlock()
	if live {
		select {
		case <-h.done:
			return h.result, h.err
		default:
			return types.RunResult{}, fmt.Errorf("run %s: %w", runID, ErrRunActive)
		}
	}
	return e.storedResult(ctx, runID)
}

func (e *Engine) storedResult(ctx context.Context, runID string) (types.RunResult, error) {
	c, err := e.store.Load(ctx, runID)
	if err != nil {
		return types.RunResult{}, err
	}
	if !c.Status.Terminal() {
		return types.RunResult{}, fmt.Errorf("run %s: %w", runID, ErrRunActive)
	}

	summary := types.Summary{Partial: true, Stats: orchestrator.Stats(c)}
	if c.FinalSummary != nil {
		summary = *c.FinalSummary
	}
	result := types.RunResult{
		Success:          c.Status == types.StatusCompleted,
		PapersDiscovered: len(c.Papers),
		FinalSummary:     summary,
		Context:          c,
	}
	if c.Status == types.StatusFailed {
		return result, fmt.Errorf("run %s failed: %s", runID, c.Error)
	}
	return result, nil
}

// List returns listing rows for all stored runs.
func (e *Engine) List(ctx context.Context) ([]runstore.RunInfo, error) {
	return e.store.List(ctx)
}
