package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

const (
	assessmentKey = "sixfinger:assessment:%s:%d"
	generationKey = "sixfinger:assessment-gen:%s"
)

// Breaker settings for the Redis cache.
const (
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
)

var _ Cache = (*RedisCache)(nil)

// RedisCache stores assessments in Redis as JSON with a TTL.
// Calls go through a circuit breaker that opens after consecutive failures.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewRedisCache creates a cache over client. Breaker state changes are
// logged to logger.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	settings := gobreaker.Settings{
		Name:        "redis-risk-cache",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		// A miss is a normal answer, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Get returns the cached assessment for hash, if any, and the generation a
// fresh assessment must be stored under.
func (c *RedisCache) Get(ctx context.Context, hash string) (*Assessment, int64, bool, error) {
	var gen int64
	v, err := c.breaker.Execute(func() (interface{}, error) {
		g, err := c.client.Get(ctx, genKey(hash)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		gen = g
		return c.client.Get(ctx, key(hash, gen)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get: %w", err)
	}

	var a Assessment
	if err := json.Unmarshal(v.([]byte), &a); err != nil {
		return nil, 0, false, fmt.Errorf("decode cached assessment: %w", err)
	}
	return &a, gen, true, nil
}

// Set caches a under generation gen for the configured TTL. An entry written
// after the generation has moved on is never read.
func (c *RedisCache) Set(ctx context.Context, a *Assessment, gen int64) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(a.Hash, gen), data, c.ttl)
			pipe.Expire(ctx, genKey(a.Hash), 2*c.ttl)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate advances the generation of hash, orphaning every cached entry.
// The generation key outlives the entries stored under it.
func (c *RedisCache) Invalidate(ctx context.Context, hash string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, genKey(hash))
			pipe.Expire(ctx, genKey(hash), 2*c.ttl)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity, bypassing the breaker.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(hash string, gen int64) string {
	return fmt.Sprintf(assessmentKey, hash, gen)
}

func genKey(hash string) string {
	return fmt.Sprintf(generationKey, hash)
}
