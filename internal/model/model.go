package model

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects between a search-engine query and a single-URL scrape.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeScrape Mode = "scrape"
)

// OutputFormat is the representation the caller asked for.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatVector   OutputFormat = "vector"
	FormatJSON     OutputFormat = "json"
)

// MaxLimit caps how many organic results a single task may request.
const MaxLimit = 50

// ErrInvalidTask marks permanent input errors. They are rejected at the
// boundary and never enter the pipeline.
var ErrInvalidTask = errors.New("invalid task")

// Task is the unit of pipeline work. It is immutable once dispatched.
type Task struct {
	Query        string       `json:"query"`
	Region       string       `json:"region"`
	Language     string       `json:"language"`
	Mode         Mode         `json:"mode"`
	Limit        int          `json:"limit"`
	OutputFormat OutputFormat `json:"output_format"`
}

// Normalize fills defaults for unset optional fields and canonicalizes enum
// spellings. Query text is trimmed but otherwise left untouched.
func (t *Task) Normalize() {
	t.Query = strings.TrimSpace(t.Query)
	if strings.TrimSpace(t.Region) == "" {
		t.Region = "us"
	}
	if strings.TrimSpace(t.Language) == "" {
		t.Language = "en"
	}
	t.Mode = Mode(strings.ToLower(strings.TrimSpace(string(t.Mode))))
	if t.Mode == "" {
		t.Mode = ModeSearch
	}
	if t.Limit == 0 {
		t.Limit = 10
	}
	f := strings.ToLower(strings.TrimSpace(string(t.OutputFormat)))
	switch f {
	case "":
		t.OutputFormat = FormatMarkdown
	case "vectors":
		t.OutputFormat = FormatVector
	default:
		t.OutputFormat = OutputFormat(f)
	}
}

// Validate reports permanent input errors wrapped in ErrInvalidTask.
func (t Task) Validate() error {
	if t.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidTask)
	}
	switch t.Mode {
	case ModeSearch, ModeScrape:
	default:
		return fmt.Errorf("%w: unsupported mode %q", ErrInvalidTask, t.Mode)
	}
	switch t.OutputFormat {
	case FormatMarkdown, FormatVector, FormatJSON:
	default:
		return fmt.Errorf("%w: unsupported output format %q", ErrInvalidTask, t.OutputFormat)
	}
	if t.Limit < 1 || t.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidTask, MaxLimit)
	}
	return nil
}

// WantsVectors reports whether the embedding stage should run.
func (t Task) WantsVectors() bool { return t.OutputFormat == FormatVector }

// OrganicResult is one retrieved source.
type OrganicResult struct {
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Snippet          string    `json:"snippet"`
	CredibilityScore float64   `json:"score"`
	FullContent      string    `json:"full_content,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
}

// Parsed is the normalized extractor output.
type Parsed struct {
	AIOverview     string
	OrganicResults []OrganicResult
}

// Result accumulates pipeline output and is the response payload. The order
// of OrganicResults is rank order.
type Result struct {
	Query                string          `json:"query"`
	AIOverview           string          `json:"ai_overview,omitempty"`
	OrganicResults       []OrganicResult `json:"organic_results"`
	FormattedOutput      string          `json:"formatted_output"`
	TokenEstimate        int             `json:"token_estimate"`
	RelevanceScore       *float64        `json:"relevance_score,omitempty"`
	RelevanceReasoning   string          `json:"relevance_reasoning,omitempty"`
	CredibilityScore     *float64        `json:"credibility_score,omitempty"`
	CredibilityReasoning string          `json:"credibility_reasoning,omitempty"`
	Cached               bool            `json:"cached"`
}

// Snippets returns the snippet of every organic result in rank order.
func (r *Result) Snippets() []string {
	out := make([]string, len(r.OrganicResults))
	for i, res := range r.OrganicResults {
		out[i] = res.Snippet
	}
	return out
}
