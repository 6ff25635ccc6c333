// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run [query...]",
	Short: "Start a research run and wait for its result",
	Long: `Run starts a research session for the given query and blocks until it
reaches a terminal state. The agent plans a strategy, iterates searches,
downloads, and citation extraction within the configured budgets, then
summarizes what it found.

Progress is printed as iterations commit. Interrupting the process leaves a
resumable checkpoint; see the resume subcommand.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("user", "", "user identifier recorded on the run")
	runCmd.Flags().String("correlation-id", "", "idempotency key; reuse joins the existing run")
	runCmd.Flags().Int("max-iterations", defaultMaxIterations, "iteration budget for the run")
	runCmd.Flags().Duration("time-budget", 0, "wall-clock budget for the run (0 = unlimited)")
	runCmd.Flags().Int("max-parallel", 0, "maximum parallel tool calls per iteration")
	runCmd.Flags().String("model", "", "AI model identifier")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("provide a research query")
	}

	e, store, err := buildEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	userID, _ := cmd.Flags().GetString("user")
	correlationID, _ := cmd.Flags().GetString("correlation-id")

	ctx := cmd.Context()
	runID, err := e.Start(ctx, engine.StartRequest{
		Query:         query,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s started\n", runID)

	result, err := e.Wait(ctx, runID)
	if result.Context.Status.Terminal() {
		// A failed run still gets its stats and failure trail printed.
		printResult(cmd.OutOrStdout(), runID, result)
	}
	return err
}
