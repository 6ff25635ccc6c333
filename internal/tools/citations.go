// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/executor"
	"github.com/pdiddy/research-orchestrator/internal/registry"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Citation regex patterns.
var (
	// numericCiteRe matches numeric citations like [1], [2], [12].
	numericCiteRe = regexp.MustCompile(`\[(\d+)\]`)

	// authorYearCiteRe matches author-year citations like
	// [Smith et al., 2020] or [Smith and Jones, 2019].
	authorYearCiteRe = regexp.MustCompile(`\[([A-Z][a-z]+(?:\s+(?:et\s+al\.|and\s+[A-Z][a-z]+))?(?:,\s*\d{4}))\]`)

	// bibEntryRe matches numbered bibliography entries like:
	// [1] Authors. Title. Venue, Year.
	bibEntryRe = regexp.MustCompile(`(?m)^\[(\d+)\]\s+(.+)$`)
)

func (s *Set) extractCitationsTool() registry.Tool {
	return registry.Tool{
		Name:        "extract_citations",
		Description: "Extract citation references from a paper's text.",
		Args: map[string]registry.ArgSpec{
			"paper_id": {Description: "Identifier of the paper the text belongs to", Required: true},
			"text":     {Description: "Paper text to scan for citations", Required: true},
		},
		Timeout: 30 * time.Second,
		Handler: s.extractCitations,
	}
}

// extractCitations scans text for inline citation references. Numeric
// references are resolved against a bibliography section when the text has
// one, so [12] becomes the cited work's title rather than a bare number.
// Only the body is scanned for inline references; the references section
// itself feeds the key-to-title map.
func (s *Set) extractCitations(_ context.Context, args map[string]any, _ func()) (types.ToolOutput, error) {
	paperID := stringArg(args, "paper_id")
	text := stringArg(args, "text")
	if paperID == "" || text == "" {
		return types.ToolOutput{}, executor.Permanent("paper_id and text are required")
	}

	body, refs := splitReferences(text)
	bib := parseBibliography(refs)
	citations := parseCitations(body, paperID, bib)

	return types.ToolOutput{
		Citations: citations,
		Analyses:  1,
		Summary:   fmt.Sprintf("extracted %d citation(s) from %s", len(citations), paperID),
	}, nil
}

// parseCitations finds inline citation references, deduplicated by their
// literal text. Handles numeric [N] and author-year [Author, Year] formats.
func parseCitations(text, paperID string, bib map[string]string) []types.Citation {
	seen := make(map[string]bool)
	var citations []types.Citation

	for _, match := range numericCiteRe.FindAllStringSubmatchIndex(text, -1) {
		key := text[match[2]:match[3]]
		fullMatch := text[match[0]:match[1]]
		if seen[fullMatch] {
			continue
		}
		seen[fullMatch] = true

		title := fullMatch
		if resolved, ok := bib[key]; ok {
			title = resolved
		}
		citations = append(citations, types.Citation{
			Title:       title,
			SourceText:  extractContext(text, match[0], match[1]),
			FromPaperID: paperID,
		})
	}

	for _, match := range authorYearCiteRe.FindAllStringSubmatchIndex(text, -1) {
		key := text[match[2]:match[3]]
		fullMatch := text[match[0]:match[1]]
		if seen[fullMatch] {
			continue
		}
		seen[fullMatch] = true
		citations = append(citations, types.Citation{
			Title:       key,
			SourceText:  extractContext(text, match[0], match[1]),
			FromPaperID: paperID,
		})
	}

	return citations
}

// extractContext returns a snippet of surrounding text around a citation.
// It takes up to 40 characters before and after the match boundaries.
func extractContext(text string, start, end int) string {
	const window = 40
	ctxStart := start - window
	if ctxStart < 0 {
		ctxStart = 0
	}
	ctxEnd := end + window
	if ctxEnd > len(text) {
		ctxEnd = len(text)
	}
	snippet := text[ctxStart:ctxEnd]
	// Trim to word boundaries.
	if ctxStart > 0 {
		if i := strings.IndexByte(snippet, ' '); i >= 0 && i < window {
			snippet = snippet[i+1:]
		}
	}
	if ctxEnd < len(text) {
		if i := strings.LastIndexByte(snippet, ' '); i >= 0 && i > len(snippet)-window {
			snippet = snippet[:i]
		}
	}
	return strings.TrimSpace(snippet)
}

// parseBibliography maps bibliography keys to entry titles. Returns an
// empty map when the references text is empty.
func parseBibliography(refs string) map[string]string {
	if refs == "" {
		return nil
	}
	bib := make(map[string]string)
	for _, m := range bibEntryRe.FindAllStringSubmatch(refs, -1) {
		key := m[1]
		raw := strings.TrimSpace(m[2])
		bib[key] = bibEntryTitle(raw)
	}
	return bib
}

// splitReferences separates the body from the text under a "References" or
// "Bibliography" heading. With no such heading, everything is body.
func splitReferences(content string) (body, refs string) {
	lines := strings.Split(content, "\n")
	var collecting bool
	var bodyLines, refLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if isHeading(trimmed) {
			heading := strings.ToLower(stripHeadingPrefix(trimmed))
			if strings.Contains(heading, "references") || strings.Contains(heading, "bibliography") {
				collecting = true
				continue
			}
			if collecting {
				collecting = false
			}
		}

		if collecting {
			refLines = append(refLines, line)
		} else {
			bodyLines = append(bodyLines, line)
		}
	}

	return strings.Join(bodyLines, "\n"), strings.Join(refLines, "\n")
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "#")
}

func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

// authorBlockRe matches an author section like "Smith, A. and Jones, B." at
// the start of a bibliography entry, so the title that follows can be
// separated from it.
var authorBlockRe = regexp.MustCompile(
	`^((?:[A-Z][a-z]+(?:,\s+[A-Z]\.?)?(?:,?\s+(?:and|&)\s+)?)+(?:\s*et\s+al\.)?)\s*[.]?\s+(.+)$`,
)

// bibEntryTitle extracts the title from a raw bibliography entry, skipping
// the leading author block when one is recognizable.
func bibEntryTitle(raw string) string {
	rest := raw
	if m := authorBlockRe.FindStringSubmatch(raw); m != nil {
		rest = m[2]
	}
	parts := splitOnPeriods(rest)
	if len(parts) > 0 {
		return strings.TrimSpace(parts[0])
	}
	return raw
}

// initialRe matches single-letter author initials like "A." or "B." so we
// can protect them from period-based splitting.
var initialRe = regexp.MustCompile(`\b([A-Z])\.`)

// splitOnPeriods splits a bibliography entry into segments at period
// boundaries, avoiding false splits on common abbreviations (et al., e.g.,
// i.e.) and single-letter initials (A., B., J.).
func splitOnPeriods(text string) []string {
	safe := strings.ReplaceAll(text, "et al.", "et al\x00")
	safe = strings.ReplaceAll(safe, "e.g.", "e\x00g\x00")
	safe = strings.ReplaceAll(safe, "i.e.", "i\x00e\x00")
	safe = initialRe.ReplaceAllString(safe, "${1}\x00")

	parts := strings.Split(safe, ". ")

	var result []string
	for _, p := range parts {
		p = strings.ReplaceAll(p, "et al\x00", "et al.")
		p = strings.ReplaceAll(p, "e\x00g\x00", "e.g.")
		p = strings.ReplaceAll(p, "i\x00e\x00", "i.e.")
		p = strings.ReplaceAll(p, "\x00", ".")
		p = strings.TrimRight(p, ".")
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
