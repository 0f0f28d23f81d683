package search

import (
	"context"
)

// Candidate represents a single ranked search hit before any content is fetched.
type Candidate struct {
	Title   string
	Link    string
	Snippet string
}

// Provider is a minimal interface for search providers.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	Name() string
}
