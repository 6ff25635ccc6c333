package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func TestArxivListPapersEmpty(t *testing.T) {
	s := testSet(t, http.DefaultClient)

	// PapersDir exists but raw/ was never created.
	out, err := s.arxivList(context.Background(), nil, func() {})
	if err != nil {
		t.Fatalf("arxivList: %v", err)
	}
	if out.Summary != "no papers downloaded yet" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestArxivListPapers(t *testing.T) {
	s := testSet(t, http.DefaultClient)

	rawPath := filepath.Join(s.cfg.PapersDir, rawDir)
	if err := os.MkdirAll(rawPath, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"2301.07041.pdf", "1706.03762.pdf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(rawPath, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := s.arxivList(context.Background(), nil, func() {})
	if err != nil {
		t.Fatalf("arxivList: %v", err)
	}
	// Sorted ids, non-PDF files ignored.
	want := "2 papers downloaded: 1706.03762, 2301.07041"
	if out.Summary != want {
		t.Errorf("Summary = %q, want %q", out.Summary, want)
	}
}

func TestArxivGetMetadata(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id_list"); got != "1706.03762" {
			t.Errorf("id_list = %q", got)
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sampleArxivSearchXML)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	s := testSet(t, ts.Client())
	out, err := s.arxivGetMetadata(context.Background(), map[string]any{"paper_id": "1706.03762"}, func() {})
	if err != nil {
		t.Fatalf("arxivGetMetadata: %v", err)
	}
	if len(out.Papers) != 1 {
		t.Fatalf("len(Papers) = %d, want 1", len(out.Papers))
	}

	p := out.Papers[0]
	if p.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", p.Title)
	}
	if len(p.Authors) != 2 {
		t.Errorf("len(Authors) = %d, want 2", len(p.Authors))
	}
	if p.Source != "arxiv" {
		t.Errorf("Source = %q", p.Source)
	}
	if !strings.Contains(out.Summary, "Attention Is All You Need") {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestArxivGetMetadataUnknownIDIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	s := testSet(t, ts.Client())
	_, err := s.arxivGetMetadata(context.Background(), map[string]any{"paper_id": "0000.00000"}, func() {})

	var toolErr *executor.ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != types.FailPermanent {
		t.Errorf("error = %v, want permanent classification for an empty feed", err)
	}
}

func TestArxivGetMetadataServerErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	s := testSet(t, ts.Client())
	_, err := s.arxivGetMetadata(context.Background(), map[string]any{"paper_id": "1706.03762"}, func() {})

	var toolErr *executor.ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != types.FailTransient {
		t.Errorf("error = %v, want transient classification for HTTP 503", err)
	}
}

func TestArxivGetMetadataEmptyID(t *testing.T) {
	s := testSet(t, http.DefaultClient)
	_, err := s.arxivGetMetadata(context.Background(), map[string]any{"paper_id": " "}, func() {})

	var toolErr *executor.ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != types.FailPermanent {
		t.Errorf("error = %v, want permanent classification", err)
	}
}
