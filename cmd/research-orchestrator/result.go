// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var resultCmd = &cobra.Command{
	Use:   "result <run-id>",
	Short: "Print the final result of a finished run",
	Long: `Result prints the summary and statistics of a run that has reached a
terminal state. Results survive process restarts; a run finished before a
crash can still be read here.`,
	Args: cobra.ExactArgs(1),
	RunE: runResult,
}

func init() {
	resultCmd.Flags().String("export", "", "export format (yaml)")
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
	runID := args[0]

	e, store, err := buildReadEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := e.Result(cmd.Context(), runID)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("export")
	switch format {
	case "":
		printResult(cmd.OutOrStdout(), runID, result)
		return nil
	case "yaml":
		out, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	default:
		return fmt.Errorf("unknown export format %q (supported: yaml)", format)
	}
}

func printResult(w io.Writer, runID string, result types.RunResult) {
	status := "completed"
	if !result.Success {
		status = string(result.Context.Status)
	}
	fmt.Fprintf(w, "run %s %s (%s)\n", runID, status, result.Context.Reason)
	fmt.Fprintf(w, "  iterations: %d\n", result.FinalSummary.Stats.IterationsCompleted)
	fmt.Fprintf(w, "  papers:     %d\n", result.PapersDiscovered)
	fmt.Fprintf(w, "  tool calls: %d\n", result.FinalSummary.Stats.ToolsUsed)
	fmt.Fprintf(w, "  citations:  %d\n", result.FinalSummary.Stats.CitationsFound)
	if result.FinalSummary.Partial {
		fmt.Fprintln(w, "  (summary generation degraded; statistics only)")
	}
	if result.FinalSummary.Text != "" {
		fmt.Fprintf(w, "\n%s\n", result.FinalSummary.Text)
	}
}
