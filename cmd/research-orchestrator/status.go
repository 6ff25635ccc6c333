// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the current status of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	runID := args[0]

	e, store, err := buildReadEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := e.Status(cmd.Context(), runID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s\n", snap.RunID)
	fmt.Fprintf(w, "  status:    %s\n", snap.Status)
	fmt.Fprintf(w, "  iteration: %d\n", snap.Iteration)
	fmt.Fprintf(w, "  papers:    %d\n", snap.PapersDiscovered)
	fmt.Fprintf(w, "  analyses:  %d\n", snap.AnalysisCount)
	if snap.Activity != "" {
		fmt.Fprintf(w, "  activity:  %s\n", snap.Activity)
	}
	return nil
}
