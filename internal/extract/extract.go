// Package extract turns cleaned page text into a validated structured record
// by calling an OpenAI-compatible text-understanding service with a strict
// JSON-only contract.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/cache"
	"github.com/hyperifyio/gocollect/internal/llm"
)

// Record is the structured result for one page. Field names follow the wire
// schema the model is instructed to emit.
type Record struct {
	Valid        bool     `json:"valid"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	CodeSnippets []string `json:"code_snippets"`
	SourceURL    string   `json:"source_url"`
}

// ErrPageUnusable is returned when the model explicitly declares the page
// unusable (valid=false). It is never retried: the verdict is about the page,
// not the call.
var ErrPageUnusable = errors.New("page declared unusable by model")

const systemPrompt = `You are a tireless data extraction API.
Task: read the web page text supplied by the user and extract its information.

Notes:
1. The text may contain navigation menus, ads, or unrelated links. Ignore them and focus on the main body.
2. Even if the body is wrapped in heavy navigation, treat the page as valid as long as useful content can be found.

Strict output constraints:
1. Output only an RFC 8259 compliant JSON string.
2. Do not use Markdown code fences (never start with ` + "```json" + `).
3. If the page content is unusable (garbled text, a captcha, a login wall), set the "valid" field to false.

Output JSON template:
{
    "valid": true,
    "title": "page title",
    "summary": "summary of the core content in under 500 words",
    "key_points": ["key point 1", "key point 2", "key point 3"],
    "code_snippets": ["relevant code snippets, if any"],
    "source_url": "original link"
}`

// Extractor calls the model and parses its response into a Record.
type Extractor struct {
	Client llm.Client
	Model  string

	// MaxInputChars truncates page text before sending. Default 80000.
	MaxInputChars int
	// MaxRetries bounds additional attempts after the first on call or
	// parse failure. Default 2.
	MaxRetries int
	// Backoff is the pause between attempts. Default 1s; tests shrink it.
	Backoff time.Duration
	// Cache, when set, stores successful records keyed by model, link, and
	// content digest so unchanged pages skip the model call.
	Cache *cache.RecordCache
}

// Extract requests a structured record for the cleaned content of one page.
// On success the record always carries a source URL, defaulted from link when
// the model omits it.
func (e *Extractor) Extract(ctx context.Context, link, content string) (Record, error) {
	if e.Client == nil || strings.TrimSpace(e.Model) == "" {
		return Record{}, errors.New("extractor not configured")
	}
	key := cache.Key(e.Model, link, content)
	if e.Cache != nil {
		if b, ok, _ := e.Cache.Get(ctx, key); ok {
			var rec Record
			if err := json.Unmarshal(b, &rec); err == nil && rec.Valid {
				return rec, nil
			}
		}
	}
	attempts := e.MaxRetries
	if attempts < 0 {
		attempts = 0
	}
	if e.MaxRetries == 0 {
		attempts = 2
	}
	attempts++ // include the initial attempt

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rec, err := e.tryOnce(ctx, link, content)
		if err == nil {
			if !rec.Valid {
				return Record{}, ErrPageUnusable
			}
			if strings.TrimSpace(rec.SourceURL) == "" {
				rec.SourceURL = link
			}
			if e.Cache != nil {
				if b, err := json.Marshal(rec); err == nil {
					_ = e.Cache.Save(ctx, key, b)
				}
			}
			return rec, nil
		}
		lastErr = err
		if attempt < attempts {
			e.sleep(ctx)
		}
	}
	return Record{}, fmt.Errorf("extract after %d attempts: %w", attempts, lastErr)
}

func (e *Extractor) tryOnce(ctx context.Context, link, content string) (Record, error) {
	user := fmt.Sprintf("Source link: %s\n\nPage content:\n%s", link, truncate(content, e.maxInputChars()))
	resp, err := e.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		// Low temperature keeps the output format stable.
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		return Record{}, fmt.Errorf("extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Record{}, errors.New("no choices")
	}
	raw := CleanResponse(resp.Choices[0].Message.Content)
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("parse record json: %w", err)
	}
	return rec, nil
}

var (
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fenceRe = regexp.MustCompile("(?m)^```[a-zA-Z]*[ \t]*\r?\n?")
)

// CleanResponse strips reasoning-trace markers and code-fence wrappers that
// some models add despite the JSON-only instruction.
func CleanResponse(raw string) string {
	s := thinkRe.ReplaceAllString(raw, "")
	s = fenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (e *Extractor) maxInputChars() int {
	if e.MaxInputChars > 0 {
		return e.MaxInputChars
	}
	return 80_000
}

func (e *Extractor) sleep(ctx context.Context) {
	backoff := e.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
