package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/serpctx/internal/metrics"
	"github.com/hyperifyio/serpctx/internal/model"
	"github.com/hyperifyio/serpctx/internal/search"
)

// DefaultScrapeConcurrency bounds ScrapeMany fan-out.
const DefaultScrapeConcurrency = 10

// Fetcher walks the provider chains. Every provider failure is logged,
// counted and swallowed; only exhaustion of a chain is reported, as a false
// second return value.
type Fetcher struct {
	// Searchers are structured search providers tried first, in order.
	Searchers []search.Provider
	// Extractor is the structured single-page extraction provider. Optional.
	Extractor search.PageExtractor
	// Renderers return rendered HTML, tried in order after the structured
	// providers.
	Renderers []Renderer
	// Direct is the unauthenticated last resort. Optional.
	Direct Renderer
	// DebugPath receives the HTML used for a markup search, best-effort.
	DebugPath string
	// Concurrency bounds ScrapeMany. Zero means DefaultScrapeConcurrency.
	Concurrency int
}

// FetchResults returns the first usable search payload for the query.
func (f *Fetcher) FetchResults(ctx context.Context, query, region, language string, limit int) (model.Payload, bool) {
	opt := search.Options{Region: region, Language: language, Limit: limit}
	for _, p := range f.Searchers {
		var sp *model.StructuredPayload
		err := attempt(p.Name()+"_search", func() error {
			var err error
			sp, err = p.Search(ctx, query, opt)
			return err
		})
		if err == nil && sp != nil && len(sp.Items) > 0 {
			return model.StructuredResult(p.Name(), "", sp), true
		}
	}

	target := GoogleSearchURL(query, region, language, limit)
	html, provider, ok := f.render(ctx, target)
	if !ok {
		return model.Payload{}, false
	}
	f.writeDebug(html)
	return model.MarkupPayload(provider, "", html), true
}

// ScrapeURL returns the first non-empty, non-blocked content for one page.
func (f *Fetcher) ScrapeURL(ctx context.Context, target string) (model.Payload, bool) {
	if f.Extractor != nil {
		var sp *model.StructuredPayload
		err := attempt(f.Extractor.Name()+"_extract", func() error {
			var err error
			sp, err = f.Extractor.Extract(ctx, target)
			return err
		})
		if err == nil && sp != nil && len(sp.Items) > 0 {
			return model.StructuredResult(f.Extractor.Name(), target, sp), true
		}
	}
	html, provider, ok := f.render(ctx, target)
	if !ok {
		return model.Payload{}, false
	}
	return model.MarkupPayload(provider, target, html), true
}

// ScrapeMany scrapes targets concurrently. The result is aligned with
// targets; failed entries are nil.
func (f *Fetcher) ScrapeMany(ctx context.Context, targets []string) []*model.Payload {
	out := make([]*model.Payload, len(targets))
	limit := f.Concurrency
	if limit <= 0 {
		limit = DefaultScrapeConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, target := range targets {
		g.Go(func() error {
			if p, ok := f.ScrapeURL(ctx, target); ok {
				out[i] = &p
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (f *Fetcher) render(ctx context.Context, target string) (string, string, bool) {
	chain := f.Renderers
	if f.Direct != nil {
		chain = append(chain[:len(chain):len(chain)], f.Direct)
	}
	for _, r := range chain {
		var html string
		err := attempt(r.Name(), func() error {
			var err error
			html, err = r.Render(ctx, target)
			if err == nil && IsBlocked(html) {
				return ErrBlocked
			}
			return err
		})
		if err == nil {
			return html, r.Name(), true
		}
	}
	return "", "", false
}

func (f *Fetcher) writeDebug(html string) {
	if f.DebugPath == "" {
		return
	}
	if dir := filepath.Dir(f.DebugPath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(f.DebugPath, []byte(html), 0o644); err != nil {
		log.Warn().Err(err).Str("path", f.DebugPath).Msg("failed to save debug HTML")
		return
	}
	log.Debug().Str("path", f.DebugPath).Msg("saved debug HTML")
}

// attempt runs one provider call, counting and timing it. Unconfigured
// providers are skipped silently.
func attempt(provider string, call func() error) error {
	start := time.Now()
	err := call()
	if errors.Is(err, search.ErrUnavailable) {
		return err
	}
	status := classify(err)
	metrics.RecordScrape(provider, status, time.Since(start))
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Str("status", status).Msg("provider failed")
	} else {
		log.Debug().Str("provider", provider).Dur("elapsed", time.Since(start)).Msg("provider succeeded")
	}
	return err
}

func classify(err error) string {
	var se *search.StatusError
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, ErrBlocked):
		return metrics.StatusBlocked
	case errors.As(err, &se):
		return metrics.StatusError
	default:
		return metrics.StatusException
	}
}
