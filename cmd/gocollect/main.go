package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/cache"
	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/pipeline"
	"github.com/hyperifyio/gocollect/internal/report"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath   string
		serperKey    string
		serperURL    string
		region       string
		language     string
		maxResults   int
		llmBaseURL   string
		llmModel     string
		llmKey       string
		readerBase   string
		blocklistCSV string
		workers      int
		cacheDir     string
		cacheMaxAge  time.Duration
		cacheClear   bool
		timeout      time.Duration
		asJSON       bool
		verbose      bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML or JSON configuration file")
	flag.StringVar(&serperKey, "search.key", os.Getenv("SERPER_API_KEY"), "Serper.dev API key")
	flag.StringVar(&serperURL, "search.url", os.Getenv("SERPER_URL"), "Serper search endpoint")
	flag.StringVar(&region, "search.region", "", "Region hint for search results (gl parameter)")
	flag.StringVar(&language, "search.lang", "", "Language hint for search results (hl parameter)")
	flag.IntVar(&maxResults, "search.num", 0, "Candidates requested per query (default 5)")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Model name for structured extraction")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for OpenAI-compatible server")
	flag.StringVar(&readerBase, "reader.base", os.Getenv("READER_BASE_URL"), "Reader proxy base URL")
	flag.StringVar(&blocklistCSV, "blocklist", "", "Comma-separated domain fragments to skip (empty uses the built-in list)")
	flag.IntVar(&workers, "workers", 0, "Worker pool size (default 5)")
	flag.StringVar(&cacheDir, "cache.dir", "", "Extraction cache directory (empty disables caching)")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the run")
	flag.BoolVar(&asJSON, "json", false, "Emit records as a JSON array instead of a plain-text digest")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: gocollect [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := pipeline.Config{
		SerperKey:  serperKey,
		SerperURL:  serperURL,
		Region:     region,
		Language:   language,
		MaxResults: maxResults,
		LLMBaseURL: llmBaseURL,
		LLMModel:   llmModel,
		LLMAPIKey:  llmKey,
		ReaderBaseURL: readerBase,
		CacheDir:      cacheDir,
		CacheMaxAge:   cacheMaxAge,
		CacheClear:    cacheClear,
		Workers:       workers,
	}
	if s := strings.TrimSpace(blocklistCSV); s != "" {
		parts := strings.Split(s, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := strings.TrimSpace(p); v != "" {
				list = append(list, v)
			}
		}
		cfg.Blocklist = list
	}

	// Flags win; the file supplies anything still unset.
	if strings.TrimSpace(configPath) != "" {
		fc, err := pipeline.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("read config file")
			os.Exit(2)
		}
		pipeline.ApplyFileConfig(&cfg, fc)
	}

	if err := pipeline.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}

	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("clear cache")
			}
		}
		if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("purge cache")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged expired cache entries")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if verbose {
		preflightModels(ctx, cfg)
	}

	records, err := pipeline.New(cfg).Collect(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("collection failed")
		os.Exit(1)
	}

	emit(query, records, asJSON)
}

// preflightModels checks connectivity to the model endpoint. Failures only
// warn; the extraction call reports its own errors.
func preflightModels(ctx context.Context, cfg pipeline.Config) {
	provider := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey)
	models, err := provider.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("model endpoint preflight failed")
		return
	}
	log.Debug().Int("models", len(models.Models)).Msg("model endpoint reachable")
}

func emit(query string, records []extract.Record, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			log.Error().Err(err).Msg("encode records")
			os.Exit(1)
		}
		return
	}
	fmt.Print(report.Digest(query, records))
}
