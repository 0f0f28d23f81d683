package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/blocklist"
	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/fetch"
	"github.com/hyperifyio/gocollect/internal/normalize"
	"github.com/hyperifyio/gocollect/internal/search"
)

type stubProvider struct {
	candidates []search.Candidate
	err        error
}

func (s *stubProvider) Search(_ context.Context, _ string, _ int) ([]search.Candidate, error) {
	return s.candidates, s.err
}

func (s *stubProvider) Name() string { return "stub" }

// stubLLM answers with the respond callback, keyed on the user message.
type stubLLM struct {
	mu      sync.Mutex
	calls   int
	respond func(user string) (string, error)
}

func (s *stubLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	user := req.Messages[len(req.Messages)-1].Content
	content, err := s.respond(user)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}, nil
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func validRecordJSON() (string, error) {
	return `{"valid":true,"title":"T","summary":"S","key_points":["k"],"code_snippets":[]}`, nil
}

func newCollector(provider search.Provider, llmStub *stubLLM, proxyBase string, blocked []string) *Collector {
	return &Collector{
		Provider:   provider,
		Blocklist:  blocklist.New(blocked),
		Fetcher:    &fetch.Client{ReaderBaseURL: proxyBase, BackoffUnit: time.Millisecond, ConnectTimeout: 2 * time.Second},
		Normalizer: &normalize.Normalizer{MinChars: 50},
		Extractor:  &extract.Extractor{Client: llmStub, Model: "test-model", Backoff: 1},
		Workers:    5,
	}
}

func longMarkdown() string { return strings.Repeat("useful words ", 40) }

func longHTML() string {
	return "<html><body><p>" + strings.Repeat("fallback content ", 40) + "</p></body></html>"
}

// Scenario: one candidate blocked, one served by the proxy, one rejected by
// the proxy with 403 and recovered through the direct fetch.
func TestCollect_MixedTiersAndBlocklist(t *testing.T) {
	var mu sync.Mutex
	var proxyRequests []string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		proxyRequests = append(proxyRequests, r.URL.String())
		mu.Unlock()
		switch {
		case strings.Contains(r.URL.String(), "/good"):
			_, _ = w.Write([]byte(longMarkdown()))
		case strings.Contains(r.URL.String(), "/forbidden"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer proxy.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(longHTML()))
	}))
	defer direct.Close()

	goodLink := "http://example.com/good"
	forbiddenLink := direct.URL + "/forbidden"
	provider := &stubProvider{candidates: []search.Candidate{
		{Title: "Blocked", Link: "https://www.youtube.com/watch?v=1"},
		{Title: "Good", Link: goodLink},
		{Title: "Forbidden", Link: forbiddenLink},
	}}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, proxy.URL+"/", []string{"youtube.com"})
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	got := map[string]bool{}
	for _, r := range records {
		got[r.SourceURL] = true
	}
	if !got[goodLink] || !got[forbiddenLink] {
		t.Fatalf("expected records traceable to both fetchable candidates, got %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, u := range proxyRequests {
		if strings.Contains(u, "youtube") {
			t.Fatalf("blocked candidate must never be fetched, saw %q", u)
		}
	}
}

func TestCollect_ShortContentNeverReachesExtractor(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("too little text"))
	}))
	defer proxy.Close()

	provider := &stubProvider{candidates: []search.Candidate{
		{Title: "Short", Link: "http://example.com/short"},
	}}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, proxy.URL+"/", nil)
	c.Normalizer = &normalize.Normalizer{} // default 300-char threshold
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if llmStub.callCount() != 0 {
		t.Fatalf("extractor must not be invoked for short content, got %d calls", llmStub.callCount())
	}
}

func TestCollect_SearchFailureIsSurfaced(t *testing.T) {
	provider := &stubProvider{err: errors.New("network down")}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, "http://127.0.0.1:0/", nil)
	records, err := c.Collect(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected search failure to be surfaced")
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result set on search failure, got %d", len(records))
	}
}

func TestCollect_EmptyCandidatesIsNotAnError(t *testing.T) {
	provider := &stubProvider{}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, "http://127.0.0.1:0/", nil)
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil result set, got %v", records)
	}
}

func TestCollect_UnusableVerdictDropped(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(longMarkdown()))
	}))
	defer proxy.Close()

	provider := &stubProvider{candidates: []search.Candidate{
		{Title: "Login wall", Link: "http://example.com/wall"},
	}}
	llmStub := &stubLLM{respond: func(string) (string, error) {
		return `{"valid":false,"title":"Login","summary":"","key_points":[],"code_snippets":[]}`, nil
	}}

	c := newCollector(provider, llmStub, proxy.URL+"/", nil)
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("valid=false must never surface, got %d records", len(records))
	}
	if llmStub.callCount() != 1 {
		t.Fatalf("valid=false must not be retried, got %d calls", llmStub.callCount())
	}
}

func TestCollect_PanicInOneTaskDoesNotAbortBatch(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(longMarkdown()))
	}))
	defer proxy.Close()

	provider := &stubProvider{candidates: []search.Candidate{
		{Title: "A", Link: "http://example.com/a"},
		{Title: "Boom", Link: "http://example.com/boom"},
		{Title: "B", Link: "http://example.com/b"},
	}}
	llmStub := &stubLLM{respond: func(user string) (string, error) {
		if strings.Contains(user, "/boom") {
			panic("extraction blew up")
		}
		return validRecordJSON()
	}}

	c := newCollector(provider, llmStub, proxy.URL+"/", nil)
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected surviving tasks to produce 2 records, got %d", len(records))
	}
}

func TestCollect_WorkerPoolBoundsConcurrency(t *testing.T) {
	var inFlight, maxObserved int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		curr := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxObserved)
			if curr <= prev || atomic.CompareAndSwapInt32(&maxObserved, prev, curr) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(longMarkdown()))
		atomic.AddInt32(&inFlight, -1)
	}))
	defer proxy.Close()

	candidates := make([]search.Candidate, 6)
	for i := range candidates {
		candidates[i] = search.Candidate{Title: "N", Link: fmt.Sprintf("http://example.com/page-%d", i)}
	}
	provider := &stubProvider{candidates: candidates}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, proxy.URL+"/", nil)
	c.Workers = 2
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected all candidates collected, got %d", len(records))
	}
	if got := atomic.LoadInt32(&maxObserved); got > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, observed %d", got)
	}
}

func TestCollect_ResultSetNeverExceedsCandidates(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(longMarkdown()))
	}))
	defer proxy.Close()

	provider := &stubProvider{candidates: []search.Candidate{
		{Title: "A", Link: "http://example.com/a"},
		{Title: "B", Link: "http://example.com/b"},
	}}
	llmStub := &stubLLM{respond: func(string) (string, error) { return validRecordJSON() }}

	c := newCollector(provider, llmStub, proxy.URL+"/", nil)
	records, err := c.Collect(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) > len(provider.candidates) {
		t.Fatalf("result set larger than candidate list: %d > %d", len(records), len(provider.candidates))
	}
	seen := map[string]int{}
	for _, r := range records {
		seen[r.SourceURL]++
	}
	for url, n := range seen {
		if n != 1 {
			t.Fatalf("source url %q appears %d times", url, n)
		}
	}
}
