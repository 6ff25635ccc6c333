// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue an interrupted run from its last checkpoint",
	Long: `Resume reloads a non-terminal run from the store and continues it.
Every iteration committed before the interruption is preserved; work resumes
from the next iteration. With --all, every resumable run in the store is
restarted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().Bool("all", false, "resume every interrupted run")
	resumeCmd.Flags().Int("max-iterations", defaultMaxIterations, "iteration budget for the run")
	resumeCmd.Flags().Duration("time-budget", 0, "wall-clock budget for the run (0 = unlimited)")
	resumeCmd.Flags().Int("max-parallel", 0, "maximum parallel tool calls per iteration")
	resumeCmd.Flags().String("model", "", "AI model identifier")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) == 1) {
		return fmt.Errorf("provide a run id or --all, not both")
	}

	e, store, err := buildEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	var runIDs []string
	if all {
		runIDs, err = e.ResumeAll(ctx)
		if err != nil {
			return err
		}
		if len(runIDs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no interrupted runs")
			return nil
		}
	} else {
		if err := e.Resume(ctx, args[0]); err != nil {
			return err
		}
		runIDs = args[:1]
	}

	var firstErr error
	for _, runID := range runIDs {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s resumed\n", runID)
		result, err := e.Wait(ctx, runID)
		if result.Context.Status.Terminal() {
			printResult(cmd.OutOrStdout(), runID, result)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %v\n", runID, err)
		}
	}
	return firstErr
}
