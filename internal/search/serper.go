package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Serper implements Provider against the serper.dev Google search endpoint.
type Serper struct {
	APIKey     string
	BaseURL    string // defaults to https://google.serper.dev/search
	Region     string // gl parameter, e.g. "us"
	Language   string // hl parameter, e.g. "en"
	HTTPClient *http.Client
}

func (s *Serper) Name() string { return "serper" }

// Search posts the query and decodes the ranked organic results. A response
// that lacks the organic field yields an empty candidate list, not an error;
// transport failures and non-2xx statuses are returned to the caller so the
// pipeline can surface an upstream failure distinctly from "no results".
func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("missing serper api key")
	}
	if limit <= 0 {
		limit = 5
	}
	base := s.BaseURL
	if base == "" {
		base = "https://google.serper.dev/search"
	}
	payload, err := json.Marshal(serperRequest{
		Query:    query,
		Region:   s.Region,
		Language: s.Language,
		Num:      limit,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("serper status: %d", resp.StatusCode)
	}
	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}
	out := make([]Candidate, 0, len(sr.Organic))
	for _, r := range sr.Organic {
		if strings.TrimSpace(r.Link) == "" {
			continue
		}
		out = append(out, Candidate{
			Title:   strings.TrimSpace(r.Title),
			Link:    strings.TrimSpace(r.Link),
			Snippet: strings.TrimSpace(r.Snippet),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type serperRequest struct {
	Query    string `json:"q"`
	Region   string `json:"gl,omitempty"`
	Language string `json:"hl,omitempty"`
	Num      int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}
