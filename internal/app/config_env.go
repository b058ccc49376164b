package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envStrings lists each string setting with its environment keys in order of
// preference.
func envStrings(cfg *Config) []struct {
	dst  *string
	keys []string
} {
	return []struct {
		dst  *string
		keys []string
	}{
		{&cfg.ListenAddr, []string{"LISTEN_ADDR"}},
		{&cfg.TavilyAPIKey, []string{"TAVILY_API_KEY"}},
		{&cfg.SearxURL, []string{"SEARX_URL", "SEARXNG_URL"}},
		{&cfg.SearxKey, []string{"SEARX_KEY", "SEARXNG_KEY"}},
		{&cfg.SearchFile, []string{"SEARCH_FILE"}},
		{&cfg.ScrapingBeeAPIKey, []string{"SCRAPINGBEE_API_KEY"}},
		{&cfg.ZenRowsAPIKey, []string{"ZENROWS_API_KEY"}},
		{&cfg.DebugHTMLPath, []string{"DEBUG_HTML_PATH"}},
		{&cfg.RedisURL, []string{"REDIS_URL"}},
		{&cfg.CacheDir, []string{"CACHE_DIR"}},
		{&cfg.DatabaseDriver, []string{"DATABASE_DRIVER"}},
		{&cfg.DatabaseURL, []string{"DATABASE_URL"}},
		{&cfg.EmbedBaseURL, []string{"EMBED_BASE_URL"}},
		{&cfg.EmbedAPIKey, []string{"EMBED_API_KEY"}},
		{&cfg.EmbedModel, []string{"EMBED_MODEL"}},
		{&cfg.JudgeBaseURL, []string{"JUDGE_BASE_URL"}},
		{&cfg.JudgeAPIKey, []string{"OPENROUTER_API_KEY", "JUDGE_API_KEY"}},
		{&cfg.JudgeModel, []string{"JUDGE_MODEL"}},
	}
}

func firstEnv(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	for _, s := range envStrings(cfg) {
		if *s.dst == "" {
			*s.dst = firstEnv(s.keys)
		}
	}
	if cfg.CacheTTL == 0 {
		if d, ok := envDuration("CACHE_TTL"); ok {
			cfg.CacheTTL = d
		}
	}
	if cfg.RateLimitPerMinute == 0 {
		if n, ok := envInt("RATE_LIMIT_PER_MINUTE"); ok {
			cfg.RateLimitPerMinute = n
		}
	}
	if cfg.ScrapeWorkers == 0 {
		if n, ok := envInt("SCRAPE_WORKERS"); ok {
			cfg.ScrapeWorkers = n
		}
	}
	if cfg.EmbedWorkers == 0 {
		if n, ok := envInt("EMBED_WORKERS"); ok {
			cfg.EmbedWorkers = n
		}
	}
	setBool := func(dst *bool, key string) {
		if *dst {
			return
		}
		if v, ok := parseBool(os.Getenv(key)); ok && v {
			*dst = true
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// a config file while flags stay highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	for _, s := range envStrings(cfg) {
		if v := firstEnv(s.keys); v != "" {
			*s.dst = v
		}
	}
	if d, ok := envDuration("CACHE_TTL"); ok {
		cfg.CacheTTL = d
	}
	if n, ok := envInt("RATE_LIMIT_PER_MINUTE"); ok {
		cfg.RateLimitPerMinute = n
	}
	if n, ok := envInt("SCRAPE_WORKERS"); ok {
		cfg.ScrapeWorkers = n
	}
	if n, ok := envInt("EMBED_WORKERS"); ok {
		cfg.EmbedWorkers = n
	}
	setBool := func(dst *bool, key string) {
		if v, ok := parseBool(os.Getenv(key)); ok {
			*dst = v
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.SSLVerify, "SSL_VERIFY")
}

func envInt(key string) (int, bool) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envDuration accepts Go durations ("6h") or plain seconds ("21600").
func envDuration(key string) (time.Duration, bool) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
