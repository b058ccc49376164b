// Package credibility maps a source URL to a coarse trust score by matching
// the URL against a domain tier table. New domains require table edits.
package credibility

import "strings"

// Default is the score for URLs that match no tier.
const Default = 0.5

type tier struct {
	score    float64
	patterns []string
}

// tiers are checked in order; the first substring match wins.
var tiers = []tier{
	{1.0, []string{"arxiv.org"}},
	{0.95, []string{".edu", ".gov", "nih.gov", "acm.org"}},
	{0.85, []string{
		"python.org",
		"developer.mozilla.org",
		"nvidia.com",
		"go.dev",
		"learn.microsoft.com",
		"docs.aws.amazon.com",
		"cloud.google.com",
		"rust-lang.org",
	}},
	{0.8, []string{"github.com", "github.io", "huggingface.co", "readthedocs.io"}},
	{0.75, []string{"stackoverflow.com", "kaggle.com"}},
	{0.4, []string{"medium.com", "businessinsider", "forbes.com"}},
	{0.3, []string{"linkedin.com"}},
}

// Score returns a trust score in [0,1]. Empty URLs score 0.
func Score(url string) float64 {
	u := strings.ToLower(strings.TrimSpace(url))
	if u == "" {
		return 0
	}
	for _, t := range tiers {
		for _, p := range t.patterns {
			if strings.Contains(u, p) {
				return t.score
			}
		}
	}
	return Default
}
