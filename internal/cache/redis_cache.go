package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teamhub/assessment-engine/internal/utils"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

type redisCache struct {
	client *redis.Client
	logger utils.Logger
	prefix string
}

func NewRedisCache(client *redis.Client, logger utils.Logger, prefix string) CacheService {
	return &redisCache{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (r *redisCache) key(k string) string {
	return r.prefix + k
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.logger.Warn("Cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		r.logger.Warn("Cache get failed", "key", key, "error", err)
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *redisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, r.key(pattern), 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// noopCache is used when redis is not configured
type noopCache struct{}

func NewNoopCache() CacheService {
	return noopCache{}
}

func (noopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCache) Get(context.Context, string, interface{}) error                { return ErrCacheMiss }
func (noopCache) Delete(context.Context, string) error                          { return nil }
func (noopCache) DeletePattern(context.Context, string) error                   { return nil }

// TestPaperKey is the cache key of the learner-facing payload of a test.
func TestPaperKey(testID uint) string {
	return fmt.Sprintf("test:%d:paper", testID)
}
