package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds runtime configuration for the service and the one-shot CLI.
type Config struct {
	ListenAddr string

	// Structured search and extraction
	TavilyAPIKey string
	SearxURL     string
	SearxKey     string
	SearxUA      string
	SearchFile   string

	// Rendering providers
	ScrapingBeeAPIKey string
	ZenRowsAPIKey     string
	DebugHTMLPath     string
	SSLVerify         bool

	// Result cache: Redis when RedisURL is set, otherwise an on-disk cache
	// when CacheDir is set.
	RedisURL         string
	CacheDir         string
	CacheTTL         time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	// Persistence
	DatabaseDriver string
	DatabaseURL    string

	// Embeddings
	EmbedBaseURL string
	EmbedAPIKey  string
	EmbedModel   string

	// LLM judge (OpenRouter compatible)
	JudgeBaseURL string
	JudgeAPIKey  string
	JudgeModel   string

	// Workers and limits
	ScrapeWorkers      int
	EmbedWorkers       int
	ScrapeConcurrency  int
	MaxRetries         int
	RateLimitPerMinute int

	Verbose bool
}

// Defaults applied by ApplyDefaults.
const (
	DefaultListenAddr         = ":8000"
	DefaultDebugHTMLPath      = "debug_serp.html"
	DefaultScrapeWorkers      = 4
	DefaultEmbedWorkers       = 1
	DefaultMaxRetries         = 3
	DefaultRateLimitPerMinute = 10
	DefaultSearxUA            = "serpctx/1.0 (+https://github.com/hyperifyio/serpctx)"
)

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.SearxUA == "" {
		cfg.SearxUA = DefaultSearxUA
	}
	if cfg.ScrapeWorkers <= 0 {
		cfg.ScrapeWorkers = DefaultScrapeWorkers
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = DefaultEmbedWorkers
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DatabaseDriver == "" && cfg.DatabaseURL != "" {
		cfg.DatabaseDriver = "postgres"
	}
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative: %d", c.MaxRetries))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative: %d", c.RateLimitPerMinute))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache ttl must not be negative: %s", c.CacheTTL))
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "", "postgres", "postgresql", "pg", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DatabaseDriver))
	}
	if c.DatabaseDriver != "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database driver set without a database url"))
	}
	return errors.Join(errs...)
}
