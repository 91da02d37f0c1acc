package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "analysis:"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// ResponseCache keeps backend text keyed by the exact payload that produced it.
type ResponseCache struct {
	redis redisClient
	ttl   time.Duration
}

func NewResponseCache(ctx context.Context, redisURL string, ttl time.Duration) (*ResponseCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return newResponseCache(client, ttl), nil
}

func newResponseCache(client redisClient, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{redis: client, ttl: ttl}
}

// Key derives the cache key for a mode and payload.
func Key(mode models.Mode, p prompt.Payload) string {
	hash := sha256.Sum256([]byte(string(mode) + "\x00" + p.Combined()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, mode, hash)
}

// Get reports a miss as ("", false, nil).
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get: %w", err)
	}
	return raw, true, nil
}

func (c *ResponseCache) Put(ctx context.Context, key, raw string) error {
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (c *ResponseCache) Close() error {
	return c.redis.Close()
}
