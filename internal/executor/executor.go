// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package executor runs one tool call as a retryable, timed unit of work.
// Failures are classified as transient (retried with exponential backoff)
// or permanent (surfaced immediately); long-running tools emit heartbeats
// and a silent window is treated as a stall. The executor never decides
// whether the overall run continues — it only reports the final outcome.
// See docs/ARCHITECTURE.md § Tool Executor.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

// ToolError carries a failure classification from a tool handler.
type ToolError struct {
	Kind    types.FailureKind
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Transient builds a retryable tool error (network, rate limit, temporary
// unavailability).
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Kind: types.FailTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanent builds a non-retryable tool error (validation failure, not found).
func Permanent(format string, args ...any) *ToolError {
	return &ToolError{Kind: types.FailPermanent, Message: fmt.Sprintf(format, args...)}
}

// Executor executes tool calls under each tool's declared policy.
type Executor struct {
	// Now supplies timestamps for invocation records. Defaults to time.Now.
	Now func() time.Time

	// Sleep waits between retry attempts. Defaults to a context-aware
	// sleep; tests substitute an instant version.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns an executor with default clock and sleep.
func New() *Executor {
	return &Executor{
		Now:   time.Now,
		Sleep: sleepCtx,
	}
}

// Execute runs the tool until success, a permanent failure, or exhausted
// retries, and returns the merged output alongside the audit record. The
// record is complete in every case; Output is meaningful only when
// record.Outcome.OK is true.
func (e *Executor) Execute(ctx context.Context, tool registry.Tool, args map[string]any) (types.ToolOutput, types.ToolInvocationRecord) {
	record := types.ToolInvocationRecord{
		ToolName:  tool.Name,
		Arguments: args,
		StartedAt: e.Now(),
	}

	maxAttempts := tool.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record.Attempts = attempt

		out, err := e.runAttempt(ctx, tool, args)
		if err == nil {
			record.Outcome = types.ToolOutcome{OK: true, Result: resultSummary(out)}
			return out, record
		}
		lastErr = err

		kind := classify(err)
		if kind == types.FailPermanent {
			record.Outcome = types.ToolOutcome{Kind: types.FailPermanent, Message: err.Error()}
			return types.ToolOutput{}, record
		}

		// Stop retrying once the run itself is being torn down.
		if ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts {
			if sleepErr := e.Sleep(ctx, backoff(tool.Retry, attempt)); sleepErr != nil {
				break
			}
		}
	}

	record.Outcome = types.ToolOutcome{
		Kind:    types.FailRetriesExhausted,
		Message: fmt.Sprintf("after %d attempt(s): %v", record.Attempts, lastErr),
	}
	return types.ToolOutput{}, record
}

// runAttempt executes a single attempt under the tool's timeout, with stall
// detection when the tool declares a heartbeat interval.
func (e *Executor) runAttempt(ctx context.Context, tool registry.Tool, args map[string]any) (types.ToolOutput, error) {
	attemptCtx := ctx
	if tool.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, tool.Timeout)
		defer cancel()
	}

	if tool.Heartbeat <= 0 {
		return tool.Handler(attemptCtx, args, func() {})
	}

	handlerCtx, cancel := context.WithCancel(attemptCtx)
	defer cancel()

	beats := make(chan struct{}, 1)
	beat := func() {
		select {
		case beats <- struct{}{}:
		default:
		}
	}

	type attemptResult struct {
		out types.ToolOutput
		err error
	}
	done := make(chan attemptResult, 1)
	go func() {
		out, err := tool.Handler(handlerCtx, args, beat)
		done <- attemptResult{out: out, err: err}
	}()

	// Heartbeat is the maximum allowed silence between liveness signals.
	watchdog := time.NewTimer(tool.Heartbeat)
	defer watchdog.Stop()

	for {
		select {
		case r := <-done:
			return r.out, r.err
		case <-beats:
			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(tool.Heartbeat)
		case <-watchdog.C:
			// Abandon the attempt; the goroutine drains into the
			// buffered channel when the handler notices cancellation.
			cancel()
			return types.ToolOutput{}, Transient("tool %q stalled: no heartbeat within %v", tool.Name, tool.Heartbeat)
		}
	}
}

// classify maps an attempt error to a failure kind. Tool handlers signal
// their own classification via ToolError; network and deadline errors are
// transient; anything else is permanent and not worth repeating.
func classify(err error) types.FailureKind {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.FailTransient
	}
	return types.FailPermanent
}

// backoff computes the delay before the next attempt:
// min(base * 2^(attempt-1), max) plus up to 25% jitter.
func backoff(policy types.RetryPolicy, attempt int) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := base << uint(attempt-1)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int63n(int64(quarter)))
	}
	return delay
}

// resultSummary picks the record text for a successful call.
func resultSummary(out types.ToolOutput) string {
	if out.Summary != "" {
		return out.Summary
	}
	return fmt.Sprintf("ok: %d paper(s), %d citation(s)", len(out.Papers), len(out.Citations))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
