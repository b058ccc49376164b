// Package judge asks a chat model to rate a result set for relevance and
// source credibility. It is an optional enrichment: every failure degrades to
// a zero-score verdict with a short reason instead of an error.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/serpctx/internal/budget"
	"github.com/hyperifyio/serpctx/internal/llm"
	"github.com/hyperifyio/serpctx/internal/metrics"
	"github.com/hyperifyio/serpctx/internal/model"
)

// DefaultModel is the OpenRouter model used when none is configured.
const DefaultModel = "meta-llama/llama-3-8b-instruct:free"

// Verdict is a judge score in [0,1] with a one-sentence reason.
type Verdict struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Judge calls the chat model. The zero value is not usable; use New.
type Judge struct {
	Client llm.ChatClient
	Model  string
	// Retries is the number of extra attempts after a 429.
	Retries int
	// BaseDelay is the linear backoff unit between attempts.
	BaseDelay time.Duration
	// MaxTokens caps the completion size.
	MaxTokens int
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

// New returns a Judge. A nil client makes every verdict "Missing API Key".
func New(client llm.ChatClient, modelName string) *Judge {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Judge{Client: client, Model: modelName, Retries: 2, BaseDelay: 5 * time.Second, MaxTokens: 1000, Sleep: time.Sleep}
}

// Relevance rates how well the snippets answer the query.
func (j *Judge) Relevance(ctx context.Context, query string, snippets []string) Verdict {
	system := "You are a helpful assistant that evaluates search relevance. Output ONLY valid JSON."
	snippets = j.fitExcerpts(system, query, snippets)
	listed, _ := json.MarshalIndent(snippets, "", "  ")
	user := fmt.Sprintf(`Task: Rate the semantic RELEVANCE of the search results to the User Query.

User Query: %q

Results:
%s

Instructions:
1. Rate from 0.0 (Irrelevant) to 1.0 (Highly Relevant).
2. Provide a 1-sentence reasoning.
3. Output JSON: { "score": <float>, "reasoning": "<string>" }`, query, listed)
	return j.call(ctx, system, user)
}

// Credibility rates how trustworthy the sources are for the query.
func (j *Judge) Credibility(ctx context.Context, query string, results []model.OrganicResult) Verdict {
	system := "You are an expert information quality judge. Output ONLY valid JSON."
	sources := make([]string, 0, len(results))
	for i, r := range results {
		sources = append(sources, fmt.Sprintf("Source %d:\nURL: %s\nSnippet: %s\n", i+1, orNA(r.URL), orNA(r.Snippet)))
	}
	sources = j.fitExcerpts(system, query, sources)
	user := fmt.Sprintf(`Task: Evaluate the CREDIBILITY of these sources for the query.

User Query: %q

Sources:
%s

Instructions:
1. Analyze URLs (domain authority) and content.
2. Rate from 0.0 (Low trust) to 1.0 (High trust/Academic/Government).
3. Provide 1-sentence reasoning.
4. Output JSON: { "score": <float>, "reasoning": "<string>" }`, query, strings.Join(sources, "\n"))
	return j.call(ctx, system, user)
}

// Score runs both judgements concurrently and waits for both.
func (j *Judge) Score(ctx context.Context, query string, results []model.OrganicResult) (relevance, credibility Verdict) {
	snippets := make([]string, len(results))
	for i, r := range results {
		snippets[i] = r.Snippet
	}
	var g errgroup.Group
	g.Go(func() error {
		relevance = j.Relevance(ctx, query, snippets)
		return nil
	})
	g.Go(func() error {
		credibility = j.Credibility(ctx, query, results)
		return nil
	})
	_ = g.Wait()
	return relevance, credibility
}

// fitExcerpts drops trailing excerpts until the prompt fits the model window
// with room for the completion.
func (j *Judge) fitExcerpts(system, query string, excerpts []string) []string {
	for len(excerpts) > 1 && budget.RemainingContext(j.Model, j.MaxTokens, budget.EstimatePromptTokens(system, query, excerpts)+200) == 0 {
		excerpts = excerpts[:len(excerpts)-1]
	}
	return excerpts
}

func (j *Judge) call(ctx context.Context, system, user string) Verdict {
	if j == nil || j.Client == nil {
		return Verdict{Reasoning: "Missing API Key"}
	}
	req := openai.ChatCompletionRequest{
		Model: j.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      j.MaxTokens,
	}
	sleep := j.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for attempt := 0; ; attempt++ {
		resp, err := j.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			metrics.RecordTokens("judge", resp.Usage.TotalTokens)
			if len(resp.Choices) == 0 {
				return Verdict{Reasoning: "Parse Error"}
			}
			return parseVerdict(resp.Choices[0].Message.Content)
		}
		code := llm.StatusCode(err)
		if code != http.StatusTooManyRequests {
			log.Error().Err(err).Int("status", code).Msg("judge request failed")
			if code != 0 {
				return Verdict{Reasoning: fmt.Sprintf("API Error %d", code)}
			}
			return Verdict{Reasoning: "Request Error"}
		}
		if attempt >= j.Retries {
			return Verdict{Reasoning: "Max retries exceeded"}
		}
		wait := j.BaseDelay * time.Duration(attempt+1)
		log.Warn().Dur("wait", wait).Int("attempt", attempt+1).Msg("judge rate limited; retrying")
		sleep(wait)
	}
}

// parseVerdict accepts bare JSON or JSON wrapped in a markdown code fence.
func parseVerdict(content string) Verdict {
	content = stripFence(content)
	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		log.Error().Str("content", content).Msg("judge returned invalid JSON")
		return Verdict{Reasoning: "Parse Error"}
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	return v
}

func stripFence(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s = after
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s = after
	} else {
		return strings.TrimSpace(s)
	}
	if before, _, ok := strings.Cut(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
