package search

import (
	"net/url"
	"strings"
)

// Dedupe canonicalizes candidate links, trims obvious tracking parameters,
// and drops exact duplicates while preserving rank order. Candidates whose
// link does not parse are kept untouched; the fetch layer rejects them with
// a proper error.
func Dedupe(candidates []Candidate) []Candidate {
	seen := map[string]struct{}{}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Link == "" {
			continue
		}
		u, err := url.Parse(c.Link)
		if err != nil {
			out = append(out, c)
			continue
		}
		normalizeURL(u)
		key := u.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		c.Link = key
		out = append(out, c)
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	// Remove common tracking params
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
