// Package fetch retrieves raw page text for one candidate link using a
// two-tier strategy: a reader proxy first, then a direct browser-like GET.
// Both tiers carry bounded retries and per-attempt timeouts so no single
// candidate can stall a batch indefinitely.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Strategy records which tier produced the content.
type Strategy string

const (
	StrategyPrimary  Strategy = "primary"
	StrategyFallback Strategy = "fallback"
	StrategyNone     Strategy = "none"
)

// Result is the outcome of fetching one candidate link. Exhaustion of both
// tiers yields StrategyNone with empty content; that is a recognized terminal
// outcome, not an error.
type Result struct {
	Content  string
	Strategy Strategy
}

// Client wraps http.Client with the two-tier acquisition policy.
type Client struct {
	HTTPClient *http.Client

	// ReaderBaseURL prefixes target links for the reader-proxy tier,
	// e.g. "https://r.jina.ai/". Empty disables the primary tier.
	ReaderBaseURL string

	// UserAgent and Referer are sent on direct fetches to look like an
	// ordinary browser navigation.
	UserAgent string
	Referer   string

	// MaxPrimaryRetries bounds additional proxy attempts after the first,
	// taken only on 429/5xx or transport errors. Zero means the default of
	// 2; negative disables retries.
	MaxPrimaryRetries int
	// FallbackAttempts bounds total direct attempts. Default 2.
	FallbackAttempts int
	// MinRawChars is the minimum direct-fetch body length; shorter bodies
	// are treated as bot-challenge pages. Default 500.
	MinRawChars int

	// ConnectTimeout bounds dialing; ProxyTimeout and DirectTimeout bound
	// each attempt end to end. Defaults: 5s, 10s, 30s.
	ConnectTimeout time.Duration
	ProxyTimeout   time.Duration
	DirectTimeout  time.Duration

	// BackoffUnit scales the linear retry backoff (attempt number × unit).
	// Default 1s; tests shrink it.
	BackoffUnit time.Duration

	clientOnce sync.Once
	client     *http.Client
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Fetch runs the primary tier, then the fallback tier, and returns whichever
// produced content first. A malformed or non-HTTP link fails immediately.
func (c *Client) Fetch(ctx context.Context, link string) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || !isHTTPScheme(u) {
		return Result{Strategy: StrategyNone}, fmt.Errorf("unfetchable link: %q", link)
	}
	target := u.String()

	if c.ReaderBaseURL != "" {
		if content, ok := c.fetchPrimary(ctx, target); ok {
			return Result{Content: content, Strategy: StrategyPrimary}, nil
		}
	}
	if content, ok := c.fetchFallback(ctx, target); ok {
		return Result{Content: content, Strategy: StrategyFallback}, nil
	}
	return Result{Strategy: StrategyNone}, nil
}

// fetchPrimary requests the link through the reader proxy. Transient statuses
// (429, 5xx) and transport errors are retried with a linearly increasing
// backoff; any other non-200 abandons the tier immediately.
func (c *Client) fetchPrimary(ctx context.Context, link string) (string, bool) {
	retries := c.MaxPrimaryRetries
	if retries < 0 {
		retries = 0
	}
	if c.MaxPrimaryRetries == 0 {
		retries = 2
	}
	proxyURL := c.ReaderBaseURL + link
	for attempt := 1; attempt <= retries+1; attempt++ {
		status, body, _, err := c.do(ctx, proxyURL, c.proxyTimeout(), false)
		if err == nil && status == http.StatusOK {
			return string(body), true
		}
		transient := err != nil || status == http.StatusTooManyRequests || status >= 500
		if !transient {
			return "", false
		}
		if attempt <= retries {
			c.sleep(ctx, attempt)
		}
	}
	return "", false
}

// fetchFallback issues direct GETs with browser-like headers. A 403 is
// treated as non-retryable; bodies under MinRawChars look like bot-challenge
// pages and count as failed attempts.
func (c *Client) fetchFallback(ctx context.Context, link string) (string, bool) {
	attempts := c.FallbackAttempts
	if attempts <= 0 {
		attempts = 2
	}
	minRaw := c.MinRawChars
	if minRaw <= 0 {
		minRaw = 500
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		status, body, contentType, err := c.do(ctx, link, c.directTimeout(), true)
		if err == nil {
			if status == http.StatusForbidden {
				return "", false
			}
			if status == http.StatusOK {
				raw := decodeBody(body, contentType)
				if utf8.RuneCountInString(raw) >= minRaw {
					return raw, true
				}
			}
		}
		if attempt < attempts {
			c.sleep(ctx, attempt)
		}
	}
	return "", false
}

func (c *Client) do(ctx context.Context, rawURL string, timeout time.Duration, browser bool) (int, []byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, "", err
	}
	if browser {
		ua := c.UserAgent
		if ua == "" {
			ua = defaultUserAgent
		}
		req.Header.Set("User-Agent", ua)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		referer := c.Referer
		if referer == "" {
			referer = "https://www.google.com/"
		}
		req.Header.Set("Referer", referer)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, "", err
	}
	return resp.StatusCode, body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	c.clientOnce.Do(func() {
		connect := c.ConnectTimeout
		if connect <= 0 {
			connect = 5 * time.Second
		}
		c.client = &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
				TLSHandshakeTimeout: connect,
			},
		}
	})
	return c.client
}

func (c *Client) proxyTimeout() time.Duration {
	if c.ProxyTimeout > 0 {
		return c.ProxyTimeout
	}
	return 10 * time.Second
}

func (c *Client) directTimeout() time.Duration {
	if c.DirectTimeout > 0 {
		return c.DirectTimeout
	}
	return 30 * time.Second
}

// sleep applies the linear backoff for the given attempt number, waking early
// if the context is cancelled.
func (c *Client) sleep(ctx context.Context, attempt int) {
	unit := c.BackoffUnit
	if unit <= 0 {
		unit = time.Second
	}
	t := time.NewTimer(time.Duration(attempt) * unit)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// decodeBody corrects character-encoding mismatches using the encoding
// inferred from the response headers and body sniffing.
func decodeBody(body []byte, contentType string) string {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	if enc == nil {
		return string(body)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
