// Package pipeline turns a task into a formatted, cached result. The work is
// split into stages that run as chained queue tasks:
//
//	scrape   (scrapers lane)    cache check, fetch, parse, format, enrich
//	score    (scrapers lane)    optional LLM judgement
//	finalize (embeddings lane)  vectors, persistence, cache write
//
// Only scrape is retried. A cache hit in scrape ends the chain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/cache"
	"github.com/hyperifyio/serpctx/internal/extract"
	"github.com/hyperifyio/serpctx/internal/format"
	"github.com/hyperifyio/serpctx/internal/judge"
	"github.com/hyperifyio/serpctx/internal/metrics"
	"github.com/hyperifyio/serpctx/internal/model"
	"github.com/hyperifyio/serpctx/internal/queue"
)

// Task kinds and the lanes they run on.
const (
	KindScrape   = "scrape"
	KindScore    = "score"
	KindFinalize = "finalize"

	LaneScrapers   = "scrapers"
	LaneEmbeddings = "embeddings"
)

// Stages reported through task progress.
const (
	StageFetching   = "fetching"
	StageFormatting = "formatting"
	StageEnriching  = "enriching"
	StageScoring    = "scoring"
	StageEmbedding  = "embedding"
	StagePersisting = "persisting"
	StageCaching    = "caching"
)

const (
	// DefaultEnrichLimit is how many leading results get their full page fetched.
	DefaultEnrichLimit   = 10
	enrichedSnippetChars = 300
)

// ErrFetchFailed is wrapped when every provider in a chain failed.
var ErrFetchFailed = errors.New("all providers exhausted")

// Fetcher is the provider chain.
type Fetcher interface {
	FetchResults(ctx context.Context, query, region, language string, limit int) (model.Payload, bool)
	ScrapeURL(ctx context.Context, target string) (model.Payload, bool)
	ScrapeMany(ctx context.Context, targets []string) []*model.Payload
}

// Embedder returns one vector per text, or nil when vectors are unavailable.
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
}

// Persister appends result rows.
type Persister interface {
	SaveResults(ctx context.Context, query string, results []model.OrganicResult) error
}

// Judge rates relevance and credibility of a result set.
type Judge interface {
	Score(ctx context.Context, query string, results []model.OrganicResult) (relevance, credibility judge.Verdict)
}

// Pipeline holds the stage collaborators. Fetcher is required; every other
// field is optional.
type Pipeline struct {
	Fetcher  Fetcher
	Parser   *extract.Parser
	Cache    cache.Store
	Embedder Embedder
	Store    Persister
	Judge    Judge
	// EnrichLimit bounds deep-scrape fan-out. Zero means DefaultEnrichLimit;
	// negative disables enrichment.
	EnrichLimit int
}

// StageArgs carries a formatted result between stages.
type StageArgs struct {
	Task   model.Task   `json:"task"`
	Result model.Result `json:"result"`
}

// Register installs the stage handlers on b. The broker must declare
// LaneScrapers and LaneEmbeddings.
func (p *Pipeline) Register(b *queue.Broker, retry queue.RetryPolicy) error {
	if err := b.Register(KindScrape, LaneScrapers, p.handleScrape, retry); err != nil {
		return err
	}
	if err := b.Register(KindScore, LaneScrapers, p.handleScore, queue.RetryPolicy{}); err != nil {
		return err
	}
	return b.Register(KindFinalize, LaneEmbeddings, p.handleFinalize, queue.RetryPolicy{})
}

// Submit normalizes and validates task and enqueues its first stage.
func (p *Pipeline) Submit(ctx context.Context, b *queue.Broker, task model.Task) (string, error) {
	task.Normalize()
	if err := task.Validate(); err != nil {
		return "", err
	}
	return b.Submit(ctx, KindScrape, task)
}

// Run executes every stage in the calling goroutine without retries.
func (p *Pipeline) Run(ctx context.Context, task model.Task) (*model.Result, error) {
	task.Normalize()
	if err := task.Validate(); err != nil {
		return nil, err
	}
	res, err := p.Scrape(ctx, task, nil)
	if err != nil || res.Cached {
		return res, err
	}
	p.Score(ctx, res, nil)
	p.Finalize(ctx, task, res, nil)
	return res, nil
}

func (p *Pipeline) handleScrape(ctx context.Context, t *queue.Task) (queue.Outcome, error) {
	var task model.Task
	if err := t.Decode(&task); err != nil {
		return queue.Outcome{}, err
	}
	res, err := p.Scrape(ctx, task, t.Progress)
	if err != nil {
		return queue.Outcome{}, err
	}
	if res.Cached {
		return queue.Outcome{Result: res}, nil
	}
	next := KindFinalize
	if p.Judge != nil {
		next = KindScore
	}
	return queue.Outcome{Next: &queue.Step{Kind: next, Args: StageArgs{Task: task, Result: *res}}}, nil
}

func (p *Pipeline) handleScore(ctx context.Context, t *queue.Task) (queue.Outcome, error) {
	var args StageArgs
	if err := t.Decode(&args); err != nil {
		return queue.Outcome{}, err
	}
	p.Score(ctx, &args.Result, t.Progress)
	return queue.Outcome{Next: &queue.Step{Kind: KindFinalize, Args: args}}, nil
}

func (p *Pipeline) handleFinalize(ctx context.Context, t *queue.Task) (queue.Outcome, error) {
	var args StageArgs
	if err := t.Decode(&args); err != nil {
		return queue.Outcome{}, err
	}
	p.Finalize(ctx, args.Task, &args.Result, t.Progress)
	return queue.Outcome{Result: &args.Result}, nil
}

// Scrape checks the cache, then fetches, parses and formats. A cached result
// comes back with Cached set. Provider exhaustion is returned as a
// queue.RetryableError wrapping ErrFetchFailed.
func (p *Pipeline) Scrape(ctx context.Context, task model.Task, progress func(string)) (*model.Result, error) {
	report(progress, StageFetching)
	hit, ok := p.cache().Get(ctx, cacheKey(task))
	metrics.RecordCacheLookup(ok)
	if ok {
		log.Info().Str("query", task.Query).Msg("cache hit")
		hit.Cached = true
		return hit, nil
	}

	var parsed model.Parsed
	if task.Mode == model.ModeScrape {
		payload, ok := p.Fetcher.ScrapeURL(ctx, task.Query)
		if !ok {
			return nil, queue.Retryable(fmt.Errorf("scrape %s: %w", task.Query, ErrFetchFailed))
		}
		parsed = p.parser().ParseSinglePage(payload)
		if len(parsed.OrganicResults) > 0 && parsed.OrganicResults[0].URL == "" {
			parsed.OrganicResults[0].URL = task.Query
		}
	} else {
		payload, ok := p.Fetcher.FetchResults(ctx, task.Query, task.Region, task.Language, task.Limit)
		if !ok {
			return nil, queue.Retryable(fmt.Errorf("search %q: %w", task.Query, ErrFetchFailed))
		}
		parsed = p.parser().ParseSearchPayload(payload)
	}
	if task.Limit > 0 && len(parsed.OrganicResults) > task.Limit {
		parsed.OrganicResults = parsed.OrganicResults[:task.Limit]
	}

	report(progress, StageFormatting)
	res := format.Response(task.Query, parsed)

	if task.Mode == model.ModeSearch && len(res.OrganicResults) > 0 && p.EnrichLimit >= 0 {
		report(progress, StageEnriching)
		p.enrich(ctx, &res)
	}
	return &res, nil
}

// enrich fetches full page text for the leading results. Any failure leaves
// the result as it was.
func (p *Pipeline) enrich(ctx context.Context, res *model.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("query", res.Query).Msg("deep scrape enrichment failed")
		}
	}()
	limit := p.EnrichLimit
	if limit == 0 {
		limit = DefaultEnrichLimit
	}
	var targets []string
	var positions []int
	for i := range res.OrganicResults {
		if len(targets) == limit {
			break
		}
		if u := res.OrganicResults[i].URL; u != "" {
			targets = append(targets, u)
			positions = append(positions, i)
		}
	}
	if len(targets) == 0 {
		return
	}
	pages := p.Fetcher.ScrapeMany(ctx, targets)
	// Work on a copy so a panic halfway through leaves res untouched.
	enriched := make([]model.OrganicResult, len(res.OrganicResults))
	copy(enriched, res.OrganicResults)
	changed := 0
	for j, page := range pages {
		if page == nil || j >= len(positions) {
			continue
		}
		single := p.parser().ParseSinglePage(*page)
		if len(single.OrganicResults) == 0 {
			continue
		}
		text := single.OrganicResults[0].Snippet
		if strings.TrimSpace(text) == "" {
			continue
		}
		r := &enriched[positions[j]]
		r.FullContent = text
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(r.Snippet) {
			r.Snippet = shorten(text, enrichedSnippetChars)
		}
		changed++
	}
	if changed == 0 {
		return
	}
	res.OrganicResults = enriched
	format.Refresh(res)
	log.Info().Int("enriched", changed).Int("requested", len(targets)).Msg("deep scrape enrichment done")
}

// Score attaches the judge verdicts. Without a judge it does nothing.
func (p *Pipeline) Score(ctx context.Context, res *model.Result, progress func(string)) {
	if p.Judge == nil || len(res.OrganicResults) == 0 {
		return
	}
	report(progress, StageScoring)
	rel, cred := p.Judge.Score(ctx, res.Query, res.OrganicResults)
	res.RelevanceScore = &rel.Score
	res.RelevanceReasoning = reasoning(rel)
	res.CredibilityScore = &cred.Score
	res.CredibilityReasoning = reasoning(cred)
	log.Info().Str("query", res.Query).Float64("relevance", rel.Score).Float64("credibility", cred.Score).Msg("scoring complete")
}

// Finalize attaches vectors when requested, persists the rows and writes the
// cache. None of these steps can fail the task.
func (p *Pipeline) Finalize(ctx context.Context, task model.Task, res *model.Result, progress func(string)) {
	metrics.RecordTokens("embedding_input", res.TokenEstimate)
	if task.WantsVectors() && p.Embedder != nil && len(res.OrganicResults) > 0 {
		report(progress, StageEmbedding)
		attachEmbeddings(res, p.Embedder.Embed(ctx, res.Snippets()))
	}
	if p.Store != nil && len(res.OrganicResults) > 0 {
		report(progress, StagePersisting)
		if err := p.Store.SaveResults(ctx, res.Query, res.OrganicResults); err != nil {
			log.Error().Err(err).Str("query", res.Query).Msg("database save error")
		}
	}
	report(progress, StageCaching)
	p.cache().Set(ctx, cacheKey(task), res)
}

// attachEmbeddings sets vectors only when there is exactly one per result and
// all share a length.
func attachEmbeddings(res *model.Result, vectors [][]float32) {
	if len(vectors) == 0 {
		return
	}
	if len(vectors) != len(res.OrganicResults) {
		log.Warn().Int("vectors", len(vectors)).Int("results", len(res.OrganicResults)).Msg("embedding count mismatch; vectors dropped")
		return
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if dim == 0 || len(v) != dim {
			log.Warn().Msg("embedding dimensions differ; vectors dropped")
			return
		}
	}
	for i := range res.OrganicResults {
		res.OrganicResults[i].Embedding = vectors[i]
	}
}

func (p *Pipeline) cache() cache.Store {
	if p.Cache == nil {
		return cache.Noop{}
	}
	return p.Cache
}

var defaultParser = extract.NewParser()

func (p *Pipeline) parser() *extract.Parser {
	if p.Parser == nil {
		return defaultParser
	}
	return p.Parser
}

func cacheKey(t model.Task) string {
	return cache.Key(t.Query, t.Region, t.Language, t.Limit)
}

func report(progress func(string), stage string) {
	if progress != nil {
		progress(stage)
	}
}

func reasoning(v judge.Verdict) string {
	if v.Reasoning == "" {
		return "No reasoning provided."
	}
	return v.Reasoning
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
