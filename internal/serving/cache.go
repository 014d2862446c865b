package serving

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aidin1998/modelserver/internal/capability"
)

// Cache stores encoded trained-path predictions.
type Cache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte) error         { return nil }

// RedisCache keeps predictions in Redis with a fixed expiration.
type RedisCache struct {
	client     *redis.Client
	expiration time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache stores entries in client with the given expiration.
func NewRedisCache(client *redis.Client, expiration time.Duration) *RedisCache {
	return &RedisCache{client: client, expiration: expiration}
}

// DialRedisCache connects to a redis:// URL.
func DialRedisCache(url string, expiration time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return NewRedisCache(redis.NewClient(opts), expiration), nil
}

// Get returns the cached value; a missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, c.expiration).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cacheKey is modelserver:predict:{kind}:{version}:{sha256(input)}.
func cacheKey(kind capability.Kind, version string, input []byte) string {
	sum := sha256.Sum256(input)
	return fmt.Sprintf("modelserver:predict:%s:%s:%s", kind, version, hex.EncodeToString(sum[:]))
}
