package judge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/serpctx/internal/model"
)

type reply struct {
	content string
	err     error
}

type fakeChat struct {
	mu       sync.Mutex
	replies  []reply
	requests []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	r := reply{content: `{"score": 0.5, "reasoning": "default"}`}
	if len(f.replies) > 0 {
		r, f.replies = f.replies[0], f.replies[1:]
	}
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: r.content}}},
		Usage:   openai.Usage{TotalTokens: 42},
	}, nil
}

func newTestJudge(c *fakeChat, slept *[]time.Duration) *Judge {
	j := New(c, "")
	j.BaseDelay = time.Millisecond
	j.Sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return j
}

func TestMissingClient(t *testing.T) {
	j := New(nil, "")
	v := j.Relevance(context.Background(), "q", []string{"a"})
	assert.Equal(t, Verdict{Reasoning: "Missing API Key"}, v)
}

func TestRelevance_ParsesFencedJSON(t *testing.T) {
	c := &fakeChat{replies: []reply{{content: "```json\n{\"score\": 0.9, \"reasoning\": \"on topic\"}\n```"}}}
	var slept []time.Duration
	v := newTestJudge(c, &slept).Relevance(context.Background(), "python", []string{"Python docs"})

	assert.Equal(t, 0.9, v.Score)
	assert.Equal(t, "on topic", v.Reasoning)
	require.Len(t, c.requests, 1)
	req := c.requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, 1000, req.MaxTokens)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, `"python"`)
	assert.Contains(t, req.Messages[1].Content, "Python docs")
}

func TestParseError(t *testing.T) {
	c := &fakeChat{replies: []reply{{content: "I think it is fine"}}}
	var slept []time.Duration
	v := newTestJudge(c, &slept).Relevance(context.Background(), "q", nil)
	assert.Equal(t, Verdict{Reasoning: "Parse Error"}, v)
}

func TestScoreIsClamped(t *testing.T) {
	assert.Equal(t, 1.0, parseVerdict(`{"score": 7, "reasoning": "x"}`).Score)
	assert.Equal(t, 0.0, parseVerdict(`{"score": -1, "reasoning": "x"}`).Score)
}

func TestRetriesOnRateLimit(t *testing.T) {
	limited := &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
	c := &fakeChat{replies: []reply{{err: limited}, {err: limited}, {content: `{"score": 0.7, "reasoning": "ok"}`}}}
	var slept []time.Duration
	v := newTestJudge(c, &slept).Credibility(context.Background(), "q", []model.OrganicResult{{URL: "https://arxiv.org/abs/1"}})

	assert.Equal(t, 0.7, v.Score)
	assert.Len(t, c.requests, 3)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, slept)
}

func TestRateLimitExhausted(t *testing.T) {
	limited := &openai.APIError{HTTPStatusCode: 429}
	c := &fakeChat{replies: []reply{{err: limited}, {err: limited}, {err: limited}, {err: limited}}}
	var slept []time.Duration
	v := newTestJudge(c, &slept).Relevance(context.Background(), "q", []string{"a"})

	assert.Equal(t, Verdict{Reasoning: "Max retries exceeded"}, v)
	assert.Len(t, c.requests, 3)
	assert.Len(t, slept, 2)
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	c := &fakeChat{replies: []reply{{err: &openai.APIError{HTTPStatusCode: 500}}}}
	var slept []time.Duration
	v := newTestJudge(c, &slept).Relevance(context.Background(), "q", []string{"a"})
	assert.Equal(t, "API Error 500", v.Reasoning)
	assert.Empty(t, slept)

	c = &fakeChat{replies: []reply{{err: errors.New("connection refused")}}}
	v = newTestJudge(c, &slept).Relevance(context.Background(), "q", []string{"a"})
	assert.Equal(t, "Request Error", v.Reasoning)
	assert.Len(t, c.requests, 1)
}

func TestCredibilityPromptListsSources(t *testing.T) {
	c := &fakeChat{}
	var slept []time.Duration
	newTestJudge(c, &slept).Credibility(context.Background(), "q", []model.OrganicResult{
		{URL: "https://a.test", Snippet: "first"},
		{},
	})
	body := c.requests[0].Messages[1].Content
	assert.Contains(t, body, "Source 1:\nURL: https://a.test\nSnippet: first")
	assert.Contains(t, body, "Source 2:\nURL: N/A\nSnippet: N/A")
}

func TestScore_RunsBoth(t *testing.T) {
	c := &fakeChat{}
	var slept []time.Duration
	rel, cred := newTestJudge(c, &slept).Score(context.Background(), "q", []model.OrganicResult{{Snippet: "s", URL: "https://x.test"}})
	assert.Equal(t, 0.5, rel.Score)
	assert.Equal(t, 0.5, cred.Score)
	require.Len(t, c.requests, 2)
	systems := []string{c.requests[0].Messages[0].Content, c.requests[1].Messages[0].Content}
	joined := strings.Join(systems, "|")
	assert.Contains(t, joined, "relevance")
	assert.Contains(t, joined, "quality judge")
}

func TestFitExcerptsTrimsToWindow(t *testing.T) {
	j := New(&fakeChat{}, "")
	huge := strings.Repeat("word ", 6000)
	got := j.fitExcerpts("sys", "q", []string{"small", huge, huge})
	assert.Equal(t, []string{"small"}, got)
}
