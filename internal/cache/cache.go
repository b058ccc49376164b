// Package cache stores final search results under a fingerprint of the
// request. Every store degrades to a miss or a no-op on backend failure;
// callers never see cache errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hyperifyio/serpctx/internal/model"
)

const (
	// KeyPrefix namespaces result entries in shared stores.
	KeyPrefix = "serpctx:result:"
	// DefaultTTL is how long a result stays fresh.
	DefaultTTL = 6 * time.Hour
)

// Key fingerprints the cache-relevant request fields. Field order and
// presence are significant; requests differing only in limit do not share
// an entry.
func Key(query, region, language string, limit int) string {
	// Length prefixes keep field boundaries unambiguous: ("a:b", "c") and
	// ("a", "b:c") must not share a fingerprint.
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%d:%s:%d:%s:%d", len(query), query, len(region), region, len(language), language, limit)))
	return KeyPrefix + hex.EncodeToString(h[:])
}

// Store is implemented by every result cache backend.
type Store interface {
	Get(ctx context.Context, key string) (*model.Result, bool)
	Set(ctx context.Context, key string, res *model.Result)
	Close() error
}

// Noop never stores anything. It is used when no backend is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*model.Result, bool) { return nil, false }
func (Noop) Set(context.Context, string, *model.Result)        {}
func (Noop) Close() error                                      { return nil }

// cacheable reports whether a result is worth storing. Empty fetches are
// never cached.
func cacheable(res *model.Result) bool {
	return res != nil && len(res.OrganicResults) > 0
}
