// Package report renders a collected result set as a plain-text digest
// suitable for terminals and for feeding downstream language models.
package report

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/gocollect/internal/extract"
)

// snippetLimit bounds each rendered code snippet so a single page cannot
// dominate the digest.
const snippetLimit = 1500

// Digest formats the records gathered for query as a numbered plain-text
// report. An empty record set yields a single explanatory line rather than an
// empty string.
func Digest(query string, records []extract.Record) string {
	if len(records) == 0 {
		return fmt.Sprintf("No usable web sources were found for %q.\n", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web search digest for %q:\n\n", query)
	for i, rec := range records {
		title := rec.Title
		if strings.TrimSpace(title) == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "--- Source [%d]: %s ---\n", i+1, title)
		fmt.Fprintf(&b, "Link: %s\n", rec.SourceURL)
		fmt.Fprintf(&b, "Summary: %s\n", rec.Summary)

		if len(rec.KeyPoints) > 0 {
			b.WriteString("Key points:\n")
			for _, p := range rec.KeyPoints {
				fmt.Fprintf(&b, "  - %s\n", p)
			}
		}
		if len(rec.CodeSnippets) > 0 {
			b.WriteString("Code snippets:\n")
			for _, code := range rec.CodeSnippets {
				fmt.Fprintf(&b, "```\n%s\n```\n", clipSnippet(code))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// clipSnippet truncates code to snippetLimit runes, marking the cut.
func clipSnippet(code string) string {
	runes := []rune(code)
	if len(runes) <= snippetLimit {
		return code
	}
	return string(runes[:snippetLimit]) + "..."
}
