package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "storefront"

type cmdable interface {
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
}

// RedisStorage keeps carts in Redis so several BFF replicas share sessions.
type RedisStorage struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
}

// NewRedisStorage connects to url and verifies connectivity.
// A zero ttl keeps carts until they are overwritten.
func NewRedisStorage(ctx context.Context, url string, ttl time.Duration) (*RedisStorage, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStorage{store: raw, raw: raw, ttl: ttl}, nil
}

// Key returns the namespaced redis key for a cart key.
func (s *RedisStorage) Key(key string) string {
	return strings.Join([]string{keyNamespace, key}, ":")
}

func (s *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoCart
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save writes the cart and refreshes its TTL.
func (s *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := s.store.Set(ctx, s.Key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStorage) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}
