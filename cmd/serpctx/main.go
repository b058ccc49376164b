package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/app"
	"github.com/hyperifyio/serpctx/internal/model"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		cfg         app.Config
		configPath  string
		envFiles    string
		sslVerify   bool
		showVersion bool
		task        model.Task
		mode        string
		format      string
	)

	flag.StringVar(&configPath, "config", os.Getenv("SERPCTX_CONFIG"), "Path to YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files loaded before reading the environment")
	flag.StringVar(&cfg.ListenAddr, "listen", "", "HTTP listen address (default :8000)")
	flag.StringVar(&cfg.TavilyAPIKey, "tavily.key", "", "Tavily API key")
	flag.StringVar(&cfg.SearxURL, "searx.url", "", "SearxNG base URL")
	flag.StringVar(&cfg.SearxKey, "searx.key", "", "SearxNG API key (optional)")
	flag.StringVar(&cfg.SearxUA, "searx.ua", "", "Custom User-Agent for SearxNG requests")
	flag.StringVar(&cfg.SearchFile, "search.file", "", "Path to JSON file for the offline file-based search provider")
	flag.StringVar(&cfg.ScrapingBeeAPIKey, "scrapingbee.key", "", "ScrapingBee API key")
	flag.StringVar(&cfg.ZenRowsAPIKey, "zenrows.key", "", "ZenRows API key")
	flag.StringVar(&cfg.DebugHTMLPath, "debug.html", "", "Where to save the last rendered search page (default debug_serp.html)")
	flag.BoolVar(&sslVerify, "ssl.verify", true, "Verify TLS certificates of upstream providers")
	flag.StringVar(&cfg.RedisURL, "redis.url", "", "Redis URL for the result cache and task status")
	flag.StringVar(&cfg.CacheDir, "cache.dir", "", "On-disk cache directory used when Redis is not configured")
	flag.DurationVar(&cfg.CacheTTL, "cache.ttl", 0, "Result cache TTL (default 6h)")
	flag.BoolVar(&cfg.CacheClear, "cache.clear", false, "Clear the cache directory on startup")
	flag.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.StringVar(&cfg.DatabaseDriver, "db.driver", "", "Database driver: postgres or sqlite")
	flag.StringVar(&cfg.DatabaseURL, "db.url", "", "Database DSN; results are persisted when set")
	flag.StringVar(&cfg.EmbedBaseURL, "embed.base", "", "OpenAI-compatible embeddings base URL")
	flag.StringVar(&cfg.EmbedAPIKey, "embed.key", "", "Embeddings API key")
	flag.StringVar(&cfg.EmbedModel, "embed.model", "", "Embeddings model name")
	flag.StringVar(&cfg.JudgeBaseURL, "judge.base", "", "OpenRouter-compatible base URL for the LLM judge")
	flag.StringVar(&cfg.JudgeAPIKey, "judge.key", "", "API key for the LLM judge")
	flag.StringVar(&cfg.JudgeModel, "judge.model", "", "Judge model name")
	flag.IntVar(&cfg.ScrapeWorkers, "workers.scrape", 0, "Scrape lane workers")
	flag.IntVar(&cfg.EmbedWorkers, "workers.embed", 0, "Embedding lane workers")
	flag.IntVar(&cfg.ScrapeConcurrency, "scrape.concurrency", 0, "Concurrent page fetches during enrichment")
	flag.IntVar(&cfg.MaxRetries, "max.retries", 0, "Retries of the scrape stage after provider exhaustion")
	flag.IntVar(&cfg.RateLimitPerMinute, "rate.perMinute", 0, "POST /search requests per client IP per minute; 0 disables")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&task.Query, "query", "", "Run one task in the foreground and print its output instead of serving")
	flag.StringVar(&task.Region, "region", "", "Region for -query")
	flag.StringVar(&task.Language, "lang", "", "Language for -query")
	flag.StringVar(&mode, "mode", "", "Mode for -query: search or scrape")
	flag.IntVar(&task.Limit, "limit", 0, "Result limit for -query")
	flag.StringVar(&format, "format", "", "Output format for -query: markdown, json or vector")
	flag.Parse()

	if showVersion {
		fmt.Println(app.VersionString())
		return
	}

	if err := app.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
		log.Warn().Err(err).Msg("dotenv load failed")
	}
	if !flagSet("ssl.verify") {
		if v := strings.TrimSpace(os.Getenv("SSL_VERIFY")); v != "" {
			sslVerify = !strings.EqualFold(v, "false") && v != "0"
		}
	}
	cfg.SSLVerify = sslVerify

	// Precedence: flags, then environment, then the config file.
	app.ApplyEnvToConfig(&cfg)
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if task.Query != "" {
		task.Mode = model.Mode(mode)
		task.OutputFormat = model.OutputFormat(format)
		if err := run(ctx, cfg, task, os.Stdout); err != nil {
			log.Error().Err(err).Msg("run failed")
			os.Exit(1)
		}
		return
	}
	if err := serve(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("serve failed")
		os.Exit(1)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func serve(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	log.Info().Str("version", app.VersionString()).Msg("starting")
	return a.Serve(ctx)
}

// run executes one task and writes the markdown, or the whole result as JSON
// when a structured format was requested.
func run(ctx context.Context, cfg app.Config, task model.Task, w io.Writer) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	res, err := a.Run(ctx, task)
	if err != nil {
		return err
	}
	task.Normalize()
	if task.OutputFormat == model.FormatMarkdown {
		_, err = io.WriteString(w, res.FormattedOutput+"\n")
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
