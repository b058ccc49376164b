package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend persists task status.
type Backend interface {
	Save(ctx context.Context, st Status) error
	Load(ctx context.Context, id string) (Status, error)
}

// MemoryBackend keeps status in process memory.
type MemoryBackend struct {
	mu sync.RWMutex
	m  map[string]Status
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{m: map[string]Status{}}
}

func (b *MemoryBackend) Save(_ context.Context, st Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[st.ID] = st
	return nil
}

func (b *MemoryBackend) Load(_ context.Context, id string) (Status, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.m[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return st, nil
}

const (
	// StatusKeyPrefix namespaces task status keys in Redis.
	StatusKeyPrefix = "serpctx:task:"
	// DefaultStatusTTL bounds how long finished and abandoned statuses linger.
	DefaultStatusTTL = 24 * time.Hour
)

// RedisBackend stores status as JSON with a TTL so that API replicas can
// answer polls for tasks run by other processes.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisBackend(client redis.UniversalClient, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Save(ctx context.Context, st Status) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := b.client.Set(ctx, StatusKeyPrefix+st.ID, raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Load(ctx context.Context, id string) (Status, error) {
	raw, err := b.client.Get(ctx, StatusKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, ErrNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("redis get: %w", err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
