package format

import (
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"

	"github.com/hyperifyio/serpctx/internal/model"
)

// DefaultThreshold is the cosine similarity above which a later result is
// considered a near-duplicate of an earlier one.
const DefaultThreshold = 0.85

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// vectorizeSnippets is swapped in tests to exercise the fail-safe path.
var vectorizeSnippets = tfidf

// Deduplicate keeps a result only when its snippet's cosine similarity to
// every already-kept result is at most threshold. Results are visited in
// order so earlier ones win. Any internal failure returns the input list
// unchanged.
func Deduplicate(results []model.OrganicResult, threshold float64) (kept []model.OrganicResult) {
	if len(results) <= 1 {
		return results
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	snippets := make([]string, len(results))
	blank := true
	for i, r := range results {
		snippets[i] = r.Snippet
		if strings.TrimSpace(r.Snippet) != "" {
			blank = false
		}
	}
	if blank {
		return results
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Int("results", len(results)).Msg("deduplication failed; keeping all results")
			kept = results
		}
	}()

	vectors := vectorizeSnippets(snippets)
	if len(vectors) != len(results) {
		log.Error().Int("vectors", len(vectors)).Int("results", len(results)).Msg("deduplication failed; keeping all results")
		return results
	}
	keptIdx := make([]int, 0, len(results))
	for i := range results {
		duplicate := false
		for _, j := range keptIdx {
			if cosine(vectors[i], vectors[j]) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			keptIdx = append(keptIdx, i)
		}
	}
	kept = make([]model.OrganicResult, 0, len(keptIdx))
	for _, i := range keptIdx {
		kept = append(kept, results[i])
	}
	return kept
}

type sparseVector map[string]float64

// tfidf builds L2-normalized TF-IDF vectors using smoothed idf:
// idf(t) = ln((1+n)/(1+df(t))) + 1.
func tfidf(docs []string) []sparseVector {
	fold := cases.Fold()
	counts := make([]map[string]int, len(docs))
	df := map[string]int{}
	for i, d := range docs {
		tf := map[string]int{}
		for _, tok := range tokenPattern.FindAllString(fold.String(d), -1) {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		counts[i] = tf
	}
	n := float64(len(docs))
	out := make([]sparseVector, len(docs))
	for i, tf := range counts {
		vec := make(sparseVector, len(tf))
		var norm float64
		for tok, c := range tf {
			w := float64(c) * (math.Log((1+n)/(1+float64(df[tok]))) + 1)
			vec[tok] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for tok := range vec {
				vec[tok] /= norm
			}
		}
		out[i] = vec
	}
	return out
}

// cosine assumes both vectors are already L2-normalized.
func cosine(a, b sparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for tok, w := range a {
		dot += w * b[tok]
	}
	return dot
}
