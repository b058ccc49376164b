// Package app wires configuration into the provider chain, the stage
// pipeline, the task broker and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/api"
	"github.com/hyperifyio/serpctx/internal/cache"
	"github.com/hyperifyio/serpctx/internal/embed"
	"github.com/hyperifyio/serpctx/internal/extract"
	"github.com/hyperifyio/serpctx/internal/fetch"
	"github.com/hyperifyio/serpctx/internal/judge"
	"github.com/hyperifyio/serpctx/internal/llm"
	"github.com/hyperifyio/serpctx/internal/model"
	"github.com/hyperifyio/serpctx/internal/pipeline"
	"github.com/hyperifyio/serpctx/internal/queue"
	"github.com/hyperifyio/serpctx/internal/search"
	"github.com/hyperifyio/serpctx/internal/store"
)

// App owns every long-lived collaborator.
type App struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	broker   *queue.Broker
	cache    cache.Store
	store    *store.Writer
}

// New builds the application. Optional backends that fail to initialize are
// logged and left out; only invalid configuration is an error.
func New(ctx context.Context, cfg Config) (*App, error) {
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	hc := newHighThroughputHTTPClient(cfg.SSLVerify)

	a := &App{cfg: cfg}
	var redisClient redis.UniversalClient
	switch {
	case cfg.RedisURL != "":
		rc, err := cache.NewRedisFromURL(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.cache, redisClient = rc, rc.Client()
	case cfg.CacheDir != "":
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		a.cache = &cache.File{Dir: cfg.CacheDir, TTL: cfg.CacheTTL, StrictPerms: cfg.CacheStrictPerms}
	default:
		a.cache = cache.Noop{}
	}

	if cfg.DatabaseURL != "" {
		w, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Str("driver", cfg.DatabaseDriver).Msg("database unavailable; results will not be persisted")
		} else {
			a.store = w
		}
	}

	a.pipeline = &pipeline.Pipeline{
		Fetcher:  newFetcher(cfg, hc),
		Parser:   extract.NewParser(),
		Cache:    a.cache,
		Embedder: newEmbedder(cfg, hc),
		Judge:    newJudge(cfg, hc),
	}
	if a.store != nil {
		a.pipeline.Store = a.store
	}

	var backend queue.Backend = queue.NewMemoryBackend()
	if redisClient != nil {
		backend = queue.NewRedisBackend(redisClient, queue.DefaultStatusTTL)
	}
	a.broker = queue.New(backend,
		queue.WithLane(pipeline.LaneScrapers, cfg.ScrapeWorkers),
		queue.WithLane(pipeline.LaneEmbeddings, cfg.EmbedWorkers),
	)
	retry := queue.DefaultRetryPolicy
	retry.MaxRetries = uint64(cfg.MaxRetries)
	if err := a.pipeline.Register(a.broker, retry); err != nil {
		return nil, err
	}
	return a, nil
}

func newFetcher(cfg Config, hc *http.Client) *fetch.Fetcher {
	tavily := &search.Tavily{APIKey: cfg.TavilyAPIKey, HTTPClient: hc}
	renderClient := &fetch.Client{HTTPClient: hc, PerRequestTimeout: 60 * time.Second, MaxAttempts: 1, AnyContentType: true}
	return &fetch.Fetcher{
		Searchers: []search.Provider{
			tavily,
			&search.SearxNG{BaseURL: cfg.SearxURL, APIKey: cfg.SearxKey, HTTPClient: hc, UserAgent: cfg.SearxUA},
			&search.FileProvider{Path: cfg.SearchFile},
		},
		Extractor: tavily,
		Renderers: []fetch.Renderer{
			&fetch.ScrapingBee{APIKey: cfg.ScrapingBeeAPIKey, Client: renderClient},
			&fetch.ZenRows{APIKey: cfg.ZenRowsAPIKey, Client: renderClient},
		},
		Direct:      &fetch.Direct{Client: &fetch.Client{HTTPClient: hc, PerRequestTimeout: 10 * time.Second, MaxAttempts: 2}},
		DebugPath:   cfg.DebugHTMLPath,
		Concurrency: cfg.ScrapeConcurrency,
	}
}

func newEmbedder(cfg Config, hc *http.Client) *embed.Service {
	if cfg.EmbedAPIKey == "" && cfg.EmbedBaseURL == "" {
		return embed.Unavailable()
	}
	return embed.New(llm.NewOpenAI(cfg.EmbedBaseURL, cfg.EmbedAPIKey, hc), cfg.EmbedModel)
}

// newJudge always returns a judge; without a key every verdict says so.
func newJudge(cfg Config, hc *http.Client) *judge.Judge {
	if cfg.JudgeAPIKey == "" {
		return judge.New(nil, cfg.JudgeModel)
	}
	base := cfg.JudgeBaseURL
	if base == "" {
		base = llm.DefaultOpenRouterURL
	}
	return judge.New(llm.NewOpenAI(base, cfg.JudgeAPIKey, hc), cfg.JudgeModel)
}

// Start launches the queue workers.
func (a *App) Start(ctx context.Context) {
	a.broker.Start(ctx)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return api.New(a.pipeline, a.broker, a.cfg.RateLimitPerMinute).Handler()
}

// Serve starts the workers and the HTTP server and blocks until ctx ends,
// then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	a.Start(ctx)
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.ListenAddr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	a.broker.Stop()
	return nil
}

// Run processes one task in the calling goroutine.
func (a *App) Run(ctx context.Context, task model.Task) (*model.Result, error) {
	return a.pipeline.Run(ctx, task)
}

// Close stops the workers and releases backends.
func (a *App) Close() error {
	a.broker.Stop()
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
