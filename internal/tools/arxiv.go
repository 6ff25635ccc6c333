// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// arXiv endpoints. Declared as vars so tests can substitute an httptest
// server.
var (
	arxivAPIBase = "https://export.arxiv.org/api/query"
	arxivPDFBase = "https://arxiv.org/pdf"
	arxivAbsBase = "https://arxiv.org/abs"
)

func (s *Set) arxivSearchTool() registry.Tool {
	return registry.Tool{
		Name:        "arxiv_search_papers",
		Description: "Search arXiv for academic papers matching a query.",
		Args: map[string]registry.ArgSpec{
			"query":       {Description: "Search terms", Required: true},
			"max_results": {Description: "Maximum number of results"},
			"category":    {Description: "Restrict results to one arXiv category (e.g. cs.AI)"},
		},
		Timeout: 30 * time.Second,
		Retry:   types.RetryPolicy{MaxAttempts: 3},
		Handler: s.arxivSearch,
	}
}

func (s *Set) arxivSearch(ctx context.Context, args map[string]any, _ func()) (types.ToolOutput, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return types.ToolOutput{}, executor.Permanent("empty arXiv query")
	}
	maxResults := intArg(args, "max_results", s.cfg.MaxSearchResults)

	searchQuery := "all:" + strings.Join(strings.Fields(query), "+")
	if cat := strings.TrimSpace(stringArg(args, "category")); cat != "" {
		searchQuery += "+AND+cat:" + cat
	}
	url := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, searchQuery, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.ToolOutput{}, executor.Permanent("creating request: %v", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return types.ToolOutput{}, executor.Transient("arXiv API request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.ToolOutput{}, classifyHTTP("arXiv", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return types.ToolOutput{}, executor.Permanent("parsing arXiv response: %v", err)
	}

	var papers []types.Paper
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}
		p := types.Paper{
			ID:        arxivID,
			Title:     strings.TrimSpace(entry.Title),
			Abstract:  strings.TrimSpace(entry.Summary),
			Source:    "arxiv",
			SourceURL: arxivAbsBase + "/" + arxivID,
		}
		for _, a := range entry.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			p.Date = t
		}
		papers = append(papers, p)
	}

	return types.ToolOutput{
		Papers:  papers,
		Summary: fmt.Sprintf("arXiv search %q: %d paper(s)", query, len(papers)),
	}, nil
}

// classifyHTTP maps an API status code to a failure classification: rate
// limits and server errors are worth retrying, other statuses are not.
func classifyHTTP(api string, status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return executor.Transient("%s API returned HTTP %d", api, status)
	}
	return executor.Permanent("%s API returned HTTP %d", api, status)
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
