package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperifyio/serpctx/internal/model"
)

// ErrUnavailable is returned by providers that are not configured, for
// example when no API key is set. Callers skip to the next provider.
var ErrUnavailable = errors.New("provider unavailable")

// StatusError reports a non-2xx response from a provider or page.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// Options carries the locale hints and result limit for one search.
type Options struct {
	Region   string
	Language string
	Limit    int
}

// Provider is a minimal interface for structured search providers.
type Provider interface {
	Search(ctx context.Context, query string, opt Options) (*model.StructuredPayload, error)
	Name() string
}

// PageExtractor fetches the readable content of a single URL.
type PageExtractor interface {
	Extract(ctx context.Context, url string) (*model.StructuredPayload, error)
	Name() string
}
