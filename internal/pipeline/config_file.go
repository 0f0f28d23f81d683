package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema. Nested sections
// map naturally to the CLI flags and environment variables.
type FileConfig struct {
	Search struct {
		Key      string `yaml:"key" json:"key"`
		URL      string `yaml:"url" json:"url"`
		Region   string `yaml:"region" json:"region"`
		Language string `yaml:"language" json:"language"`
		Num      int    `yaml:"num" json:"num"`
	} `yaml:"search" json:"search"`

	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Reader struct {
		BaseURL string `yaml:"base" json:"base"`
	} `yaml:"reader" json:"reader"`

	Blocklist []string `yaml:"blocklist" json:"blocklist"`

	// Retry counts. For primary and extract a value of -1 disables retries
	// (zero falls back to the built-in default of 2).
	Retry struct {
		Primary  int `yaml:"primary" json:"primary"`
		Fallback int `yaml:"fallback" json:"fallback"`
		Extract  int `yaml:"extract" json:"extract"`
	} `yaml:"retry" json:"retry"`

	Min struct {
		ContentChars int `yaml:"contentChars" json:"contentChars"`
		RawChars     int `yaml:"rawChars" json:"rawChars"`
	} `yaml:"min" json:"min"`

	Max struct {
		InputChars int `yaml:"inputChars" json:"inputChars"`
	} `yaml:"max" json:"max"`

	Timeout struct {
		Connect time.Duration `yaml:"connect" json:"connect"`
		Proxy   time.Duration `yaml:"proxy" json:"proxy"`
		Direct  time.Duration `yaml:"direct" json:"direct"`
	} `yaml:"timeout" json:"timeout"`

	Cache struct {
		Dir    string        `yaml:"dir" json:"dir"`
		MaxAge time.Duration `yaml:"maxAge" json:"maxAge"`
	} `yaml:"cache" json:"cache"`

	Workers int `yaml:"workers" json:"workers"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields
// that are currently unset/zero. Flags should already have been parsed; this
// lets the file supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.SerperKey == "" && fc.Search.Key != "" {
		cfg.SerperKey = fc.Search.Key
	}
	if cfg.SerperURL == "" && fc.Search.URL != "" {
		cfg.SerperURL = fc.Search.URL
	}
	if cfg.Region == "" && fc.Search.Region != "" {
		cfg.Region = fc.Search.Region
	}
	if cfg.Language == "" && fc.Search.Language != "" {
		cfg.Language = fc.Search.Language
	}
	if cfg.MaxResults == 0 && fc.Search.Num > 0 {
		cfg.MaxResults = fc.Search.Num
	}

	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}

	if cfg.ReaderBaseURL == "" && fc.Reader.BaseURL != "" {
		cfg.ReaderBaseURL = fc.Reader.BaseURL
	}
	if cfg.Blocklist == nil && fc.Blocklist != nil {
		cfg.Blocklist = append([]string{}, fc.Blocklist...)
	}

	if cfg.MaxPrimaryRetries == 0 && fc.Retry.Primary != 0 {
		cfg.MaxPrimaryRetries = fc.Retry.Primary
	}
	if cfg.FallbackAttempts == 0 && fc.Retry.Fallback > 0 {
		cfg.FallbackAttempts = fc.Retry.Fallback
	}
	if cfg.MaxExtractRetries == 0 && fc.Retry.Extract != 0 {
		cfg.MaxExtractRetries = fc.Retry.Extract
	}

	if cfg.MinContentChars == 0 && fc.Min.ContentChars > 0 {
		cfg.MinContentChars = fc.Min.ContentChars
	}
	if cfg.MinRawChars == 0 && fc.Min.RawChars > 0 {
		cfg.MinRawChars = fc.Min.RawChars
	}
	if cfg.MaxInputChars == 0 && fc.Max.InputChars > 0 {
		cfg.MaxInputChars = fc.Max.InputChars
	}

	if cfg.ConnectTimeout == 0 && fc.Timeout.Connect > 0 {
		cfg.ConnectTimeout = fc.Timeout.Connect
	}
	if cfg.ProxyTimeout == 0 && fc.Timeout.Proxy > 0 {
		cfg.ProxyTimeout = fc.Timeout.Proxy
	}
	if cfg.DirectTimeout == 0 && fc.Timeout.Direct > 0 {
		cfg.DirectTimeout = fc.Timeout.Direct
	}

	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}

	if cfg.Workers == 0 && fc.Workers > 0 {
		cfg.Workers = fc.Workers
	}
}
