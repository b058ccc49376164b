// Package llm adapts OpenAI-compatible backends (OpenAI, OpenRouter, local
// servers) to the narrow interfaces the embedder and the judge depend on.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenRouterURL is the OpenAI-compatible root of OpenRouter.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// ChatClient is the minimal interface needed to call a chat model.
// It mirrors CreateChatCompletion so any OpenAI-compatible backend can be adapted.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmbeddingClient turns texts into vectors.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider adapts *openai.Client to the ChatClient/EmbeddingClient interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

// NewOpenAI builds a provider for baseURL. An empty baseURL targets OpenAI.
func NewOpenAI(baseURL, apiKey string, hc *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return p.Inner.CreateEmbeddings(ctx, conv)
}

// StatusCode extracts the HTTP status from a go-openai error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
