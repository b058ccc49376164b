// Command debugsearch runs one query through the provider chain and prints
// which provider answered and what the extractor made of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/extract"
	"github.com/hyperifyio/serpctx/internal/fetch"
	"github.com/hyperifyio/serpctx/internal/search"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	base := flag.String("searx.url", os.Getenv("SEARX_URL"), "SearxNG base URL")
	file := flag.String("search.file", os.Getenv("SEARCH_FILE"), "Offline search file")
	scrape := flag.Bool("scrape", false, "Treat the argument as a URL and scrape it")
	limit := flag.Int("limit", 5, "Result limit")
	flag.Parse()

	q := "What is love?"
	if flag.NArg() > 0 {
		q = flag.Arg(0)
	}
	client := &http.Client{Timeout: 20 * time.Second}
	tavily := &search.Tavily{APIKey: os.Getenv("TAVILY_API_KEY"), HTTPClient: client}
	f := &fetch.Fetcher{
		Searchers: []search.Provider{
			tavily,
			&search.SearxNG{BaseURL: *base, HTTPClient: client, UserAgent: "debugsearch/1.0"},
			&search.FileProvider{Path: *file},
		},
		Extractor: tavily,
		Renderers: []fetch.Renderer{
			&fetch.ScrapingBee{APIKey: os.Getenv("SCRAPINGBEE_API_KEY")},
			&fetch.ZenRows{APIKey: os.Getenv("ZENROWS_API_KEY")},
		},
		Direct:    &fetch.Direct{},
		DebugPath: os.Getenv("DEBUG_HTML_PATH"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	var (
		payloadOK bool
		provider  string
		overview  string
		results   []string
	)
	if *scrape {
		p, ok := f.ScrapeURL(ctx, q)
		payloadOK, provider = ok, p.Provider
		for _, r := range extract.ParseSinglePage(p).OrganicResults {
			results = append(results, fmt.Sprintf("%s %s (%d chars)", r.Title, r.URL, len(r.Snippet)))
		}
	} else {
		p, ok := f.FetchResults(ctx, q, "us", "en", *limit)
		payloadOK, provider = ok, p.Provider
		parsed := extract.ParseSearchPayload(p)
		overview = parsed.AIOverview
		for _, r := range parsed.OrganicResults {
			results = append(results, fmt.Sprintf("%s %s [%.2f]", r.Title, r.URL, r.CredibilityScore))
		}
	}
	if !payloadOK {
		fmt.Println("all providers exhausted")
		os.Exit(1)
	}
	fmt.Println("provider:", provider)
	if overview != "" {
		fmt.Println("overview:", overview)
	}
	for i, r := range results {
		fmt.Printf("%d. %s\n", i+1, r)
	}
}
