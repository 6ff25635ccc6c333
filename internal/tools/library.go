// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func (s *Set) arxivListTool() registry.Tool {
	return registry.Tool{
		Name:        "arxiv_list_papers",
		Description: "List the papers already downloaded to the local library.",
		Args:        map[string]registry.ArgSpec{},
		Timeout:     10 * time.Second,
		Handler:     s.arxivList,
	}
}

// arxivList reports the PDFs under the papers directory. An absent
// directory just means nothing has been downloaded yet.
func (s *Set) arxivList(_ context.Context, _ map[string]any, _ func()) (types.ToolOutput, error) {
	dir := filepath.Join(s.cfg.PapersDir, rawDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return types.ToolOutput{Summary: "no papers downloaded yet"}, nil
	}
	if err != nil {
		return types.ToolOutput{}, executor.Permanent("reading papers directory: %v", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".pdf"))
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return types.ToolOutput{Summary: "no papers downloaded yet"}, nil
	}
	return types.ToolOutput{
		Summary: fmt.Sprintf("%d papers downloaded: %s", len(ids), strings.Join(ids, ", ")),
	}, nil
}

func (s *Set) arxivGetMetadataTool() registry.Tool {
	return registry.Tool{
		Name:        "arxiv_get_metadata",
		Description: "Fetch title, abstract, and authors for an arXiv paper.",
		Args: map[string]registry.ArgSpec{
			"paper_id": {Description: "arXiv identifier (e.g. 2301.07041)", Required: true},
		},
		Timeout: 30 * time.Second,
		Retry:   types.RetryPolicy{MaxAttempts: 3},
		Handler: s.arxivGetMetadata,
	}
}

func (s *Set) arxivGetMetadata(ctx context.Context, args map[string]any, _ func()) (types.ToolOutput, error) {
	paperID := strings.TrimSpace(stringArg(args, "paper_id"))
	if paperID == "" {
		return types.ToolOutput{}, executor.Permanent("empty paper_id")
	}

	paper := types.Paper{
		ID:        paperID,
		Source:    "arxiv",
		SourceURL: arxivAbsBase + "/" + paperID,
	}
	if err := s.fetchArxivMetadata(ctx, paperID, &paper); err != nil {
		return types.ToolOutput{}, err
	}

	return types.ToolOutput{
		Papers:  []types.Paper{paper},
		Summary: fmt.Sprintf("metadata for %s: %s", paperID, paper.Title),
	}, nil
}
