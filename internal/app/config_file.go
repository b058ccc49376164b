package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	Listen string `yaml:"listen" json:"listen"`

	Tavily struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"tavily" json:"tavily"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
		UA  string `yaml:"ua" json:"ua"`
	} `yaml:"searx" json:"searx"`

	Search struct {
		File string `yaml:"file" json:"file"`
	} `yaml:"search" json:"search"`

	Render struct {
		ScrapingBeeKey string `yaml:"scrapingbeeKey" json:"scrapingbeeKey"`
		ZenRowsKey     string `yaml:"zenrowsKey" json:"zenrowsKey"`
		DebugHTML      string `yaml:"debugHTML" json:"debugHTML"`
	} `yaml:"render" json:"render"`

	Cache struct {
		Redis       string        `yaml:"redis" json:"redis"`
		Dir         string        `yaml:"dir" json:"dir"`
		TTL         time.Duration `yaml:"ttl" json:"ttl"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Database struct {
		Driver string `yaml:"driver" json:"driver"`
		URL    string `yaml:"url" json:"url"`
	} `yaml:"database" json:"database"`

	Embed struct {
		BaseURL string `yaml:"base" json:"base"`
		Key     string `yaml:"key" json:"key"`
		Model   string `yaml:"model" json:"model"`
	} `yaml:"embed" json:"embed"`

	Judge struct {
		BaseURL string `yaml:"base" json:"base"`
		Key     string `yaml:"key" json:"key"`
		Model   string `yaml:"model" json:"model"`
	} `yaml:"judge" json:"judge"`

	Workers struct {
		Scrape      int `yaml:"scrape" json:"scrape"`
		Embed       int `yaml:"embed" json:"embed"`
		Concurrency int `yaml:"concurrency" json:"concurrency"`
		MaxRetries  int `yaml:"maxRetries" json:"maxRetries"`
	} `yaml:"workers" json:"workers"`

	RateLimitPerMinute int  `yaml:"rateLimitPerMinute" json:"rateLimitPerMinute"`
	Verbose            bool `yaml:"verbose" json:"verbose"`
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

// ApplyFileConfig overlays values from fc into cfg for any fields that are
// currently unset. Flags should already have been parsed.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if *dst == 0 && v != 0 {
			*dst = v
		}
	}

	setString(&cfg.ListenAddr, fc.Listen)
	setString(&cfg.TavilyAPIKey, fc.Tavily.Key)
	setString(&cfg.SearxURL, fc.Searx.URL)
	setString(&cfg.SearxKey, fc.Searx.Key)
	if (cfg.SearxUA == "" || cfg.SearxUA == DefaultSearxUA) && fc.Searx.UA != "" {
		cfg.SearxUA = fc.Searx.UA
	}
	setString(&cfg.SearchFile, fc.Search.File)

	setString(&cfg.ScrapingBeeAPIKey, fc.Render.ScrapingBeeKey)
	setString(&cfg.ZenRowsAPIKey, fc.Render.ZenRowsKey)
	setString(&cfg.DebugHTMLPath, fc.Render.DebugHTML)

	setString(&cfg.RedisURL, fc.Cache.Redis)
	setString(&cfg.CacheDir, fc.Cache.Dir)
	if cfg.CacheTTL == 0 && fc.Cache.TTL > 0 {
		cfg.CacheTTL = fc.Cache.TTL
	}
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms

	setString(&cfg.DatabaseDriver, fc.Database.Driver)
	setString(&cfg.DatabaseURL, fc.Database.URL)

	setString(&cfg.EmbedBaseURL, fc.Embed.BaseURL)
	setString(&cfg.EmbedAPIKey, fc.Embed.Key)
	setString(&cfg.EmbedModel, fc.Embed.Model)

	setString(&cfg.JudgeBaseURL, fc.Judge.BaseURL)
	setString(&cfg.JudgeAPIKey, fc.Judge.Key)
	setString(&cfg.JudgeModel, fc.Judge.Model)

	setInt(&cfg.ScrapeWorkers, fc.Workers.Scrape)
	setInt(&cfg.EmbedWorkers, fc.Workers.Embed)
	setInt(&cfg.ScrapeConcurrency, fc.Workers.Concurrency)
	setInt(&cfg.MaxRetries, fc.Workers.MaxRetries)
	setInt(&cfg.RateLimitPerMinute, fc.RateLimitPerMinute)
	cfg.Verbose = cfg.Verbose || fc.Verbose
}
