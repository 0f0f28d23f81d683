// Package normalize strips markup noise from fetched page content and
// enforces the minimum-viable-content threshold below which structured
// extraction is never attempted.
package normalize

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Kind identifies the shape of the raw text handed to the normalizer.
type Kind int

const (
	// KindMarkdown is reader-proxy output: markdown-like text.
	KindMarkdown Kind = iota
	// KindHTML is a direct-fetch response body.
	KindHTML
)

// ErrTooShort signals that the cleaned text is below the minimum-content
// threshold. It is an expected per-candidate outcome, not a failure.
var ErrTooShort = errors.New("content too short")

// imageEmbedRe matches markdown image syntax emitted by the reader proxy.
var imageEmbedRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

// Normalizer cleans raw content and rejects anything under MinChars runes.
type Normalizer struct {
	// MinChars is the minimum cleaned length to keep a page. Zero means the
	// default of 300.
	MinChars int
}

// Clean returns the cleaned text, or ErrTooShort when the result is below
// the minimum-content threshold.
func (n *Normalizer) Clean(raw string, kind Kind) (string, error) {
	var text string
	switch kind {
	case KindHTML:
		text = stripHTML(raw)
	default:
		text = stripImageEmbeds(raw)
	}
	text = collapseBlankLines(text)

	min := n.MinChars
	if min <= 0 {
		min = 300
	}
	if utf8.RuneCountInString(text) < min {
		return "", ErrTooShort
	}
	return text, nil
}

func stripImageEmbeds(s string) string {
	return imageEmbedRe.ReplaceAllString(s, "")
}

// stripHTML drops script/style blocks and comments, then all remaining tags,
// keeping text content with newlines around block-level elements.
func stripHTML(input string) string {
	node, err := html.Parse(strings.NewReader(input))
	if err != nil || node == nil {
		return ""
	}
	var b strings.Builder
	collectText(&b, node)
	return b.String()
}

func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "iframe":
			return
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "div", "pre", "tr":
			b.WriteString("\n")
		}
	}
	// Comment nodes are skipped implicitly: only text nodes emit content.
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "pre":
			b.WriteString("\n")
		}
	}
}

// collapseBlankLines trims each line, collapses internal whitespace runs, and
// keeps at most one consecutive blank line.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			if len(out) == 0 {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
