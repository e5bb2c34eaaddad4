package daraja

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache holds the OAuth access token between verification calls. The
// cache is injected so the expiry policy is explicit and shared across
// process instances when backed by redis.
type TokenCache interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string, ttl time.Duration)
}

// MemoryTokenCache is a process-local cache with explicit expiry.
type MemoryTokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiry) {
		return "", false
	}
	return c.token, true
}

func (c *MemoryTokenCache) Set(ctx context.Context, token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiry = time.Now().Add(ttl)
}

const redisTokenKey = "daraja:oauth_token"

// RedisTokenCache shares the token across instances, expiring via TTL.
type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, bool) {
	token, err := c.client.Get(ctx, redisTokenKey).Result()
	if err != nil {
		return "", false
	}
	return token, token != ""
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) {
	c.client.Set(ctx, redisTokenKey, token, ttl)
}
