package pipeline

import (
	"errors"
	"strings"
	"time"
)

// Config holds runtime configuration for one collector instance. Credentials,
// endpoints, the blocklist, pool size, and every timeout/retry constant are
// supplied here rather than hard-coded at call sites.
type Config struct {
	// Search
	SerperKey  string
	SerperURL  string // defaults to https://google.serper.dev/search
	Region     string // gl parameter
	Language   string // hl parameter
	MaxResults int    // candidates requested per query, default 5

	// Text-understanding service
	LLMBaseURL string // defaults to https://openrouter.ai/api/v1
	LLMAPIKey  string
	LLMModel   string

	// Fetching
	ReaderBaseURL     string // defaults to https://r.jina.ai/
	MaxPrimaryRetries int
	FallbackAttempts  int
	MinRawChars       int
	ConnectTimeout    time.Duration
	ProxyTimeout      time.Duration
	DirectTimeout     time.Duration
	RetryBackoff      time.Duration

	// Content
	Blocklist       []string // nil means DefaultBlocklist
	MinContentChars int

	// Extraction
	MaxInputChars     int
	MaxExtractRetries int
	ExtractBackoff    time.Duration

	// Extraction cache. Empty CacheDir disables caching.
	CacheDir    string
	CacheMaxAge time.Duration
	CacheClear  bool

	// Concurrency
	Workers int // fixed worker-pool size, default 5
}

// DefaultBlocklist lists domains known to yield unusable or disallowed
// content for text extraction.
func DefaultBlocklist() []string {
	return []string{
		"youtube.com",
		"facebook.com",
		"instagram.com",
		"tiktok.com",
		"twitter.com",
		"x.com",
	}
}

func (c Config) withDefaults() Config {
	if c.SerperURL == "" {
		c.SerperURL = "https://google.serper.dev/search"
	}
	if c.LLMBaseURL == "" {
		c.LLMBaseURL = "https://openrouter.ai/api/v1"
	}
	if c.ReaderBaseURL == "" {
		c.ReaderBaseURL = "https://r.jina.ai/"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.Blocklist == nil {
		c.Blocklist = DefaultBlocklist()
	}
	return c
}

// Validate checks the settings a live run cannot do without.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.SerperKey) == "" {
		return errors.New("config: search api key is required (or set SERPER_API_KEY)")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm model is required (or set LLM_MODEL)")
	}
	if cfg.MaxResults < 0 || cfg.Workers < 0 || cfg.MinContentChars < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
