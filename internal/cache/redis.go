package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpctx/internal/model"
)

// Redis is a Store backed by a Redis server using GET and SETEX.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps an existing client. A non-positive ttl means DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisFromURL parses a redis:// URL. Connectivity is not checked here;
// an unreachable server only turns lookups into misses.
func NewRedisFromURL(rawURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), ttl), nil
}

// Get returns the stored result, or false on miss or any backend error.
func (c *Redis) Get(ctx context.Context, key string) (*model.Result, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	var res model.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return nil, false
	}
	return &res, true
}

// Set stores a non-empty result with the configured TTL. Failures are logged
// and dropped.
func (c *Redis) Set(ctx context.Context, key string, res *model.Result) {
	if !cacheable(res) {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.client.SetEx(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Client exposes the underlying connection for components that share it.
func (c *Redis) Client() redis.UniversalClient { return c.client }

func (c *Redis) Close() error { return c.client.Close() }
