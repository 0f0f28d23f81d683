// Package blocklist rejects search candidates whose link points at a domain
// known to be unfetchable, before any network call is made.
package blocklist

import (
	"strings"
)

// List holds domain fragments matched by plain substring containment against
// a candidate link. Matching is purely lexical: no DNS, no side effects.
type List struct {
	fragments []string
}

// New builds a List from the configured fragments, dropping empties.
func New(fragments []string) *List {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, strings.ToLower(f))
	}
	return &List{fragments: out}
}

// Blocked reports whether the link must be rejected. A missing link is always
// rejected since nothing can be fetched for it.
func (l *List) Blocked(link string) bool {
	link = strings.ToLower(strings.TrimSpace(link))
	if link == "" {
		return true
	}
	for _, f := range l.fragments {
		if strings.Contains(link, f) {
			return true
		}
	}
	return false
}
