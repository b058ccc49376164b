package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/serpctx/internal/model"
)

// DefaultTavilyURL is the public Tavily API root.
const DefaultTavilyURL = "https://api.tavily.com"

// Tavily implements Provider and PageExtractor against the Tavily API.
type Tavily struct {
	APIKey     string
	BaseURL    string // defaults to DefaultTavilyURL
	HTTPClient *http.Client
	Timeout    time.Duration // per call; defaults to 30s
}

func (t *Tavily) Name() string { return "tavily" }

type tavilySearchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	IncludeImages bool   `json:"include_images"`
	MaxResults    int    `json:"max_results"`
}

type tavilyExtractRequest struct {
	APIKey        string   `json:"api_key"`
	URLs          []string `json:"urls"`
	IncludeImages bool     `json:"include_images"`
}

type tavilyExtractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		Content    string `json:"content"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

// Search runs an advanced-depth search with a direct answer.
func (t *Tavily) Search(ctx context.Context, query string, opt Options) (*model.StructuredPayload, error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = 10
	}
	var out model.StructuredPayload
	err := t.post(ctx, "/search", tavilySearchRequest{
		APIKey:        t.APIKey,
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: true,
		MaxResults:    limit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Extract returns the content of a single page. An empty results array is
// reported as an error so callers fall through to the next provider.
func (t *Tavily) Extract(ctx context.Context, pageURL string) (*model.StructuredPayload, error) {
	var resp tavilyExtractResponse
	if err := t.post(ctx, "/extract", tavilyExtractRequest{APIKey: t.APIKey, URLs: []string{pageURL}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("tavily extract: no results for %s", pageURL)
	}
	r := resp.Results[0]
	return &model.StructuredPayload{Items: []model.StructuredItem{{
		URL:        r.URL,
		Content:    r.Content,
		RawContent: r.RawContent,
	}}}, nil
}

func (t *Tavily) post(ctx context.Context, path string, body any, out any) error {
	if strings.TrimSpace(t.APIKey) == "" {
		return fmt.Errorf("tavily: %w", ErrUnavailable)
	}
	base := t.BaseURL
	if base == "" {
		base = DefaultTavilyURL
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tavily %s: %w: %s", path, &StatusError{Code: resp.StatusCode}, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
