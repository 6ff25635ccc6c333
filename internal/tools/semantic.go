// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/httputil"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate"

func (s *Set) semanticScholarSearchTool() registry.Tool {
	return registry.Tool{
		Name:        "semantic_scholar_search",
		Description: "Search Semantic Scholar for academic papers matching a query.",
		Args: map[string]registry.ArgSpec{
			"query":       {Description: "Search terms", Required: true},
			"max_results": {Description: "Maximum number of results"},
		},
		Timeout: 30 * time.Second,
		Retry:   types.RetryPolicy{MaxAttempts: 3},
		Handler: s.semanticScholarSearch,
	}
}

func (s *Set) semanticScholarSearch(ctx context.Context, args map[string]any, _ func()) (types.ToolOutput, error) {
	query := stringArg(args, "query")
	if query == "" {
		return types.ToolOutput{}, executor.Permanent("empty Semantic Scholar query")
	}
	maxResults := intArg(args, "max_results", s.cfg.MaxSearchResults)

	params := url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", maxResults)},
		"fields": {semanticFields},
	}
	reqURL := semanticAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.ToolOutput{}, executor.Permanent("creating request: %v", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if s.cfg.SemanticScholarAPIKey != "" {
		req.Header.Set("x-api-key", s.cfg.SemanticScholarAPIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, s.client, req, 0)
	if err != nil {
		return types.ToolOutput{}, executor.Transient("Semantic Scholar API request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.ToolOutput{}, classifyHTTP("Semantic Scholar", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return types.ToolOutput{}, executor.Permanent("parsing Semantic Scholar response: %v", err)
	}

	var papers []types.Paper
	for _, paper := range sr.Data {
		p := types.Paper{
			Title:    paper.Title,
			Abstract: paper.Abstract,
			Source:   "semantic_scholar",
		}
		for _, a := range paper.Authors {
			p.Authors = append(p.Authors, a.Name)
		}
		if paper.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", paper.PublicationDate); parseErr == nil {
				p.Date = t
			}
		} else if paper.Year > 0 {
			p.Date = time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}

		// Prefer an arXiv ID, then DOI, then the S2 paper id, so the same
		// paper found by both search tools deduplicates in the merge.
		switch {
		case paper.ExternalIDs.ArXiv != "":
			p.ID = paper.ExternalIDs.ArXiv
			p.SourceURL = arxivAbsBase + "/" + paper.ExternalIDs.ArXiv
		case paper.ExternalIDs.DOI != "":
			p.ID = paper.ExternalIDs.DOI
			p.SourceURL = "https://doi.org/" + paper.ExternalIDs.DOI
		default:
			p.ID = paper.PaperID
		}
		if p.ID == "" {
			continue
		}
		papers = append(papers, p)
	}

	return types.ToolOutput{
		Papers:  papers,
		Summary: fmt.Sprintf("Semantic Scholar search %q: %d paper(s)", query, len(papers)),
	}, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI      string `json:"DOI"`
	ArXiv    string `json:"ArXiv"`
	CorpusID int    `json:"CorpusId"`
}
