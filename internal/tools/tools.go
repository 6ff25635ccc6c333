// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tools provides the built-in research tools: paper search, paper
// download, and citation extraction. Each tool is a registry handler with a
// declared argument schema, timeout, and retry policy; the decision engine
// only ever sees the registry's catalog.
package tools

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const defaultMaxResults = 10

// Set holds the shared collaborators for the built-in tools.
type Set struct {
	cfg    types.ToolsConfig
	client *http.Client
	w      io.Writer
}

// NewSet builds the tool set. A nil client gets a default with the
// configured timeout; a nil writer discards best-effort warnings.
func NewSet(cfg types.ToolsConfig, client *http.Client, w io.Writer) *Set {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = defaultMaxResults
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if w == nil {
		w = io.Discard
	}
	return &Set{cfg: cfg, client: client, w: w}
}

// RegisterAll registers every built-in tool.
func (s *Set) RegisterAll(reg *registry.Registry) error {
	for _, t := range []registry.Tool{
		s.arxivSearchTool(),
		s.semanticScholarSearchTool(),
		s.arxivDownloadTool(),
		s.arxivListTool(),
		s.arxivGetMetadataTool(),
		s.extractCitationsTool(),
	} {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("registering %s: %w", t.Name, err)
		}
	}
	return nil
}

// stringArg reads a required or optional string argument.
func stringArg(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// intArg reads an optional integer argument. Model-proposed arguments
// arrive JSON-decoded, so numbers are float64.
func intArg(args map[string]any, name string, fallback int) int {
	v, ok := args[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
