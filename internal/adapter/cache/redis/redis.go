// Package redis caches the code to target URL mapping in front of the link
// store. Only the immutable target is cached; click counters always live in
// the store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "tinylink:link:"
	defaultTTL       = time.Hour
)

// ErrCacheMiss is returned when the code has no cached target.
var ErrCacheMiss = errors.New("cache miss")

type LinkCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

type Option func(*LinkCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *LinkCache) {
		c.ttl = ttl
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(c *LinkCache) {
		c.keyPrefix = prefix
	}
}

func NewLinkCache(client redis.UniversalClient, opts ...Option) *LinkCache {
	c := &LinkCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *LinkCache) key(code string) string {
	return c.keyPrefix + code
}

func (c *LinkCache) GetTarget(ctx context.Context, code string) (string, error) {
	const op = "adapter.cache.redis.LinkCache.GetTarget"

	target, err := c.client.Get(ctx, c.key(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return "", fmt.Errorf("%s: failed to get cached target: %w", op, err)
	}

	return target, nil
}

func (c *LinkCache) SetTarget(ctx context.Context, code, targetURL string) error {
	const op = "adapter.cache.redis.LinkCache.SetTarget"

	if err := c.client.Set(ctx, c.key(code), targetURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to cache target: %w", op, err)
	}

	return nil
}

func (c *LinkCache) Evict(ctx context.Context, code string) error {
	const op = "adapter.cache.redis.LinkCache.Evict"

	if err := c.client.Del(ctx, c.key(code)).Err(); err != nil {
		return fmt.Errorf("%s: failed to evict cached target: %w", op, err)
	}

	return nil
}
