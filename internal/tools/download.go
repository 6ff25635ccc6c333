// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	rawDir      = "raw"
	metadataDir = "metadata"

	// beatChunk is how many bytes are copied between heartbeats.
	beatChunk = 256 * 1024
)

func (s *Set) arxivDownloadTool() registry.Tool {
	return registry.Tool{
		Name:        "arxiv_download_paper",
		Description: "Download a paper PDF from arXiv and store it locally.",
		Args: map[string]registry.ArgSpec{
			"paper_id": {Description: "arXiv identifier (e.g. 2301.07041)", Required: true},
		},
		Timeout:   2 * time.Minute,
		Heartbeat: 20 * time.Second,
		Retry:     types.RetryPolicy{MaxAttempts: 3},
		Handler:   s.arxivDownload,
	}
}

// arxivDownload fetches one PDF to papersDir/raw/ and writes a metadata
// record next to it. Re-running with the same id is a no-op once the PDF is
// on disk, so a retried or replayed iteration downloads each paper once.
func (s *Set) arxivDownload(ctx context.Context, args map[string]any, beat func()) (types.ToolOutput, error) {
	paperID := strings.TrimSpace(stringArg(args, "paper_id"))
	if paperID == "" {
		return types.ToolOutput{}, executor.Permanent("empty paper_id")
	}

	slug := slugify(paperID)
	pdfPath := filepath.Join(s.cfg.PapersDir, rawDir, slug+".pdf")
	metaPath := filepath.Join(s.cfg.PapersDir, metadataDir, slug+".yaml")

	if _, err := os.Stat(pdfPath); err == nil {
		return types.ToolOutput{
			Downloaded: []string{paperID},
			Summary:    fmt.Sprintf("%s already downloaded", paperID),
		}, nil
	}

	for _, dir := range []string{
		filepath.Join(s.cfg.PapersDir, rawDir),
		filepath.Join(s.cfg.PapersDir, metadataDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.ToolOutput{}, executor.Permanent("creating directory %s: %v", dir, err)
		}
	}

	pdfURL := arxivPDFBase + "/" + paperID
	if err := s.downloadFile(ctx, pdfURL, pdfPath, beat); err != nil {
		return types.ToolOutput{}, err
	}

	paper := types.Paper{
		ID:        paperID,
		Source:    "arxiv",
		SourceURL: arxivAbsBase + "/" + paperID,
	}
	if err := s.fetchArxivMetadata(ctx, paperID, &paper); err != nil {
		fmt.Fprintf(s.w, "warning: fetching metadata for %s: %v\n", paperID, err)
	} else if err := writeMetadata(paper, metaPath); err != nil {
		fmt.Fprintf(s.w, "warning: writing metadata for %s: %v\n", paperID, err)
	}

	return types.ToolOutput{
		Downloaded: []string{paperID},
		Summary:    fmt.Sprintf("downloaded %s", paperID),
	}, nil
}

// downloadFile fetches url to destPath via a temporary file, renaming on
// success so a crashed download never leaves a partial PDF behind. The beat
// callback fires per copied chunk to keep the stall watchdog fed.
func (s *Set) downloadFile(ctx context.Context, url, destPath string, beat func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return executor.Permanent("creating request: %v", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := s.client.Do(req)
	if err != nil {
		return executor.Transient("download request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyHTTP("arXiv PDF", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return executor.Permanent("creating temp file: %v", err)
	}
	tmpPath := tmpFile.Name()

	copyErr := copyWithBeat(tmpFile, resp.Body, beat)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return executor.Transient("writing download: %v", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return executor.Permanent("closing temp file: %v", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return executor.Permanent("renaming temp file: %v", err)
	}
	return nil
}

func copyWithBeat(dst io.Writer, src io.Reader, beat func()) error {
	for {
		beat()
		_, err := io.CopyN(dst, src, beatChunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// fetchArxivMetadata retrieves title, abstract, and authors for a paper
// from the arXiv API. Errors carry the executor's transient/permanent
// classification so callers can retry or degrade as appropriate.
func (s *Set) fetchArxivMetadata(ctx context.Context, arxivID string, paper *types.Paper) error {
	apiURL := fmt.Sprintf("%s?id_list=%s", arxivAPIBase, arxivID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return executor.Permanent("creating request: %v", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return executor.Transient("arXiv API request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyHTTP("arXiv API", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return executor.Permanent("decoding arXiv API response: %v", err)
	}
	if len(feed.Entries) == 0 {
		return executor.Permanent("no entries found for arXiv ID %s", arxivID)
	}

	entry := feed.Entries[0]
	paper.Title = strings.TrimSpace(entry.Title)
	paper.Abstract = strings.TrimSpace(entry.Summary)
	for _, a := range entry.Authors {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
	}
	if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
		paper.Date = t
	}
	return nil
}

func writeMetadata(paper types.Paper, path string) error {
	data, err := yaml.Marshal(&paper)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// slugify makes an identifier filesystem-safe.
func slugify(id string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "\\", "_")
	return r.Replace(id)
}
