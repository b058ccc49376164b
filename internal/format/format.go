// Package format turns parsed results into the final response: near-duplicate
// removal, credibility ordering, markdown rendering and a token estimate.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperifyio/serpctx/internal/budget"
	"github.com/hyperifyio/serpctx/internal/model"
)

// Response deduplicates the parsed results, orders them by credibility and
// renders the markdown document with its token estimate.
func Response(query string, parsed model.Parsed) model.Result {
	unique := Deduplicate(parsed.OrganicResults, DefaultThreshold)
	sorted := make([]model.OrganicResult, len(unique))
	copy(sorted, unique)
	SortByCredibility(sorted)

	md := Markdown(query, parsed.AIOverview, sorted)
	return model.Result{
		Query:           query,
		AIOverview:      parsed.AIOverview,
		OrganicResults:  sorted,
		FormattedOutput: md,
		TokenEstimate:   budget.EstimateTokens(md),
	}
}

// SortByCredibility orders results by score, highest first. Ties keep their
// relative order.
func SortByCredibility(results []model.OrganicResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CredibilityScore > results[j].CredibilityScore
	})
}

// Markdown renders the LLM-ready document.
func Markdown(query string, overview string, results []model.OrganicResult) string {
	lines := []string{fmt.Sprintf("# Search Results for: %s\n", query)}
	if strings.TrimSpace(overview) != "" {
		lines = append(lines, fmt.Sprintf("## AI Overview\n> %s\n", overview), "---\n")
	}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		heading := fmt.Sprintf("## %d. %s", i+1, title)
		if r.CredibilityScore > 0 {
			heading += fmt.Sprintf(" (Credibility: %.2f)", r.CredibilityScore)
		}
		lines = append(lines,
			heading,
			"URL: "+r.URL,
			fmt.Sprintf("Snippet: %s\n", r.Snippet),
		)
	}
	return strings.Join(lines, "\n")
}

// Refresh re-renders the markdown and token estimate of an already formatted
// result after its snippets changed. Order and membership are kept.
func Refresh(res *model.Result) {
	res.FormattedOutput = Markdown(res.Query, res.AIOverview, res.OrganicResults)
	res.TokenEstimate = budget.EstimateTokens(res.FormattedOutput)
}
