package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/serpctx/internal/model"
)

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisFromURL("redis://"+mr.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_RoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	key := Key("python", "us", "en", 10)
	want := sampleResult()

	c.Set(ctx, key, want)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, DefaultTTL, mr.TTL(key))

	_, ok = c.Get(ctx, Key("python", "us", "en", 5))
	assert.False(t, ok)
}

func TestRedis_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	key := Key("q", "us", "en", 1)

	c.Set(context.Background(), key, sampleResult())
	mr.FastForward(2 * time.Minute)
	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
}

func TestRedis_SkipsEmptyResults(t *testing.T) {
	c, mr := newRedisCache(t)
	key := Key("nothing", "us", "en", 10)
	c.Set(context.Background(), key, &model.Result{Query: "nothing"})
	c.Set(context.Background(), key, nil)
	assert.False(t, mr.Exists(key))
}

func TestRedis_UndecodableEntryIsMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set("k", "not json"))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedis_DegradesWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond}), 0)
	mr.Close()

	ctx := context.Background()
	key := Key("python", "us", "en", 10)
	assert.NotPanics(t, func() { c.Set(ctx, key, sampleResult()) })
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestNewRedisFromURL_Invalid(t *testing.T) {
	_, err := NewRedisFromURL("http://not-redis", 0)
	assert.Error(t, err)
}
