// Package embed generates vector embeddings through an OpenAI-compatible
// embeddings endpoint. The backend is probed lazily once; if the probe fails
// the service reports itself unavailable and every call yields no vectors.
package embed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/serpctx/internal/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// DefaultBatchSize bounds how many texts go into one request.
const DefaultBatchSize = 64

// State is the capability state of the embedder.
type State int

const (
	StateUnknown State = iota
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var errNoBackend = errors.New("no embedding backend configured")

// Service is the embedding capability. Construct with New.
type Service struct {
	client    llm.EmbeddingClient
	model     string
	batchSize int
	timeout   time.Duration

	once  sync.Once
	state State
	err   error
}

// Option customizes a Service.
type Option func(*Service)

// WithBatchSize sets the number of texts per request.
func WithBatchSize(n int) Option { return func(s *Service) { s.batchSize = n } }

// WithTimeout bounds each embeddings request.
func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

// New returns a Service. A nil client yields a permanently unavailable service.
func New(client llm.EmbeddingClient, model string, opts ...Option) *Service {
	if model == "" {
		model = DefaultModel
	}
	s := &Service{client: client, model: model, batchSize: DefaultBatchSize, timeout: 60 * time.Second}
	for _, o := range opts {
		o(s)
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	return s
}

// Unavailable returns a service that never produces vectors.
func Unavailable() *Service { return New(nil, "") }

func (s *Service) init(ctx context.Context) {
	s.once.Do(func() {
		if s.client == nil {
			s.state, s.err = StateUnavailable, errNoBackend
			log.Warn().Msg("embedding backend not configured; vector output disabled")
			return
		}
		if _, err := s.request(ctx, []string{"ping"}); err != nil {
			s.state, s.err = StateUnavailable, err
			log.Error().Err(err).Str("model", s.model).Msg("embedding model failed to load; vector output disabled")
			return
		}
		s.state = StateReady
		log.Info().Str("model", s.model).Msg("embedding model ready")
	})
}

// State initializes the service if needed and reports its state.
func (s *Service) State(ctx context.Context) State {
	s.init(ctx)
	return s.state
}

// Err returns the initialization failure, if any.
func (s *Service) Err() error { return s.err }

// Embed returns one vector per text, in input order. It returns nil when the
// service is unavailable or any batch fails; it never returns an error.
func (s *Service) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	if s.State(ctx) != StateReady {
		return nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		vecs, err := s.request(ctx, texts[start:end])
		if err != nil {
			log.Error().Err(err).Int("texts", len(texts)).Msg("error generating embeddings")
			return nil
		}
		out = append(out, vecs...)
	}
	return out
}

func (s *Service) request(ctx context.Context, texts []string) ([][]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("embedding count does not match input count")
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
