package budget

import (
	"math"
	"strings"
)

// TokensPerWord is the fixed word-to-token multiplier used for estimates.
// It approximates common BPE tokenizers on English prose; it is not a real
// tokenizer.
const TokensPerWord = 1.3

// EstimateTokensFromWords converts a word count into an estimated token count.
func EstimateTokensFromWords(words int) int {
	if words <= 0 {
		return 0
	}
	return int(math.Round(float64(words) * TokensPerWord))
}

// EstimateTokens returns the estimated token count of a string, counting
// whitespace-separated words.
func EstimateTokens(s string) int {
	return EstimateTokensFromWords(len(strings.Fields(s)))
}

// EstimatePromptTokens estimates the total tokens for a prompt composed of
// a system message, a user message, and zero or more excerpts.
func EstimatePromptTokens(system string, user string, excerpts []string) int {
	total := EstimateTokens(system) + EstimateTokens(user)
	for _, ex := range excerpts {
		total += EstimateTokens(ex)
	}
	return total
}

// ModelContextTokens returns an estimated maximum context window for a given
// model name. Unknown models fall back to a conservative default.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return 8192
	}
	// OpenRouter style names carry a provider prefix and optional tag suffix.
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	switch {
	case strings.HasSuffix(name, "128k"):
		return 128_000
	case strings.HasSuffix(name, "32k"):
		return 32_768
	case strings.Contains(name, "-mini"):
		return 128_000
	}
	return 8192
}

// RemainingContext computes the remaining input token budget given a model,
// a reservation for output generation, and the estimated prompt tokens.
// The result is never negative.
func RemainingContext(modelName string, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

var knownModelMax = map[string]int{
	"gpt-4o":                 128_000,
	"gpt-4o-mini":            128_000,
	"gpt-3.5-turbo":          16_384,
	"llama-3-8b-instruct":    8_192,
	"llama-3.1-8b-instruct":  128_000,
	"llama-3.1-70b-instruct": 128_000,
	"mistral-7b-instruct":    32_768,
}
