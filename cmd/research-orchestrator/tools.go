// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/internal/tools"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the research agent",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	set := tools.NewSet(types.ToolsConfig{PapersDir: filepath.Join(dataDir, "papers")}, nil, nil)

	reg := registry.New()
	if err := set.RegisterAll(reg); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, t := range reg.Tools() {
		fmt.Fprintf(w, "%s\n  %s\n", t.Name, t.Description)
		argNames := make([]string, 0, len(t.Args))
		for name := range t.Args {
			argNames = append(argNames, name)
		}
		sort.Strings(argNames)
		for _, name := range argNames {
			spec := t.Args[name]
			req := ""
			if spec.Required {
				req = " (required)"
			}
			fmt.Fprintf(w, "    %s%s: %s\n", name, req, spec.Description)
		}
		fmt.Fprintln(w)
	}
	return nil
}
