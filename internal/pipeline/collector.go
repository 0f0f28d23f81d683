// Package pipeline runs the per-candidate acquisition pipeline
// (filter, fetch, normalize, extract) for all candidates of a query under a
// fixed-size worker pool, isolating failures so one candidate's error never
// aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/blocklist"
	"github.com/hyperifyio/gocollect/internal/cache"
	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/fetch"
	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/normalize"
	"github.com/hyperifyio/gocollect/internal/search"
)

// Collector wires the pipeline stages together. Fields are exported so tests
// can substitute individual stages.
type Collector struct {
	Provider   search.Provider
	Blocklist  *blocklist.List
	Fetcher    *fetch.Client
	Normalizer *normalize.Normalizer
	Extractor  *extract.Extractor
	// Workers is the fixed worker-pool size. Zero means 5.
	Workers int
	// MaxResults caps the candidates requested per query. Zero defers to the
	// provider's default.
	MaxResults int
}

// New assembles a Collector from configuration.
func New(cfg Config) *Collector {
	cfg = cfg.withDefaults()
	return &Collector{
		Provider: &search.Serper{
			APIKey:   cfg.SerperKey,
			BaseURL:  cfg.SerperURL,
			Region:   cfg.Region,
			Language: cfg.Language,
		},
		Blocklist: blocklist.New(cfg.Blocklist),
		Fetcher: &fetch.Client{
			ReaderBaseURL:     cfg.ReaderBaseURL,
			MaxPrimaryRetries: cfg.MaxPrimaryRetries,
			FallbackAttempts:  cfg.FallbackAttempts,
			MinRawChars:       cfg.MinRawChars,
			ConnectTimeout:    cfg.ConnectTimeout,
			ProxyTimeout:      cfg.ProxyTimeout,
			DirectTimeout:     cfg.DirectTimeout,
			BackoffUnit:       cfg.RetryBackoff,
		},
		Normalizer: &normalize.Normalizer{MinChars: cfg.MinContentChars},
		Extractor: &extract.Extractor{
			Client:        llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey),
			Model:         cfg.LLMModel,
			MaxInputChars: cfg.MaxInputChars,
			MaxRetries:    cfg.MaxExtractRetries,
			Backoff:       cfg.ExtractBackoff,
			Cache:         recordCache(cfg.CacheDir),
		},
		Workers:    cfg.Workers,
		MaxResults: cfg.MaxResults,
	}
}

func recordCache(dir string) *cache.RecordCache {
	if dir == "" {
		return nil
	}
	return &cache.RecordCache{Dir: dir}
}

// Collect obtains ranked candidates for the query and runs the per-candidate
// pipeline for each under the worker pool. It waits for every task; the
// result set holds whichever candidates produced a valid record, in
// completion order. Only a failed search call is surfaced as an error —
// distinctly from "no results found".
func (c *Collector) Collect(ctx context.Context, query string) ([]extract.Record, error) {
	candidates, err := c.Provider.Search(ctx, query, c.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	candidates = search.Dedupe(candidates)
	if len(candidates) == 0 {
		log.Info().Str("query", query).Msg("search returned no candidates")
		return []extract.Record{}, nil
	}
	log.Info().Str("query", query).Int("candidates", len(candidates)).Msg("search complete")

	workers := c.Workers
	if workers <= 0 {
		workers = 5
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan search.Candidate)
	results := make(chan extract.Record)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				if rec, ok := c.process(ctx, cand); ok {
					results <- rec
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, cand := range candidates {
			jobs <- cand
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	records := make([]extract.Record, 0, len(candidates))
	for rec := range results {
		records = append(records, rec)
	}
	return records, nil
}

// process runs one candidate through filter, fetch, normalize, extract.
// Every failure, including a panic, is absorbed here so sibling tasks keep
// running.
func (c *Collector) process(ctx context.Context, cand search.Candidate) (rec extract.Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("link", cand.Link).Msg("candidate task panicked; skipping")
			ok = false
		}
	}()

	if c.Blocklist != nil && c.Blocklist.Blocked(cand.Link) {
		log.Debug().Str("link", cand.Link).Msg("candidate blocked; skipping")
		return extract.Record{}, false
	}

	res, err := c.Fetcher.Fetch(ctx, cand.Link)
	if err != nil {
		log.Warn().Err(err).Str("link", cand.Link).Msg("fetch failed; skipping candidate")
		return extract.Record{}, false
	}
	if res.Strategy == fetch.StrategyNone {
		log.Debug().Str("link", cand.Link).Msg("both fetch tiers exhausted; skipping candidate")
		return extract.Record{}, false
	}

	kind := normalize.KindMarkdown
	if res.Strategy == fetch.StrategyFallback {
		kind = normalize.KindHTML
	}
	text, err := c.Normalizer.Clean(res.Content, kind)
	if err != nil {
		if errors.Is(err, normalize.ErrTooShort) {
			log.Debug().Str("link", cand.Link).Msg("content below minimum length; skipping candidate")
		} else {
			log.Warn().Err(err).Str("link", cand.Link).Msg("normalize failed; skipping candidate")
		}
		return extract.Record{}, false
	}

	record, err := c.Extractor.Extract(ctx, cand.Link, text)
	if err != nil {
		if errors.Is(err, extract.ErrPageUnusable) {
			log.Debug().Str("link", cand.Link).Msg("model declared page unusable; skipping candidate")
		} else {
			log.Warn().Err(err).Str("link", cand.Link).Msg("extraction failed; skipping candidate")
		}
		return extract.Record{}, false
	}
	log.Debug().Str("link", cand.Link).Str("strategy", string(res.Strategy)).Msg("candidate collected")
	return record, true
}
