package llm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fhir-dataset-forge/internal/domain"
)

// ResponseCache stores successful provider responses in Redis so identical
// prompts are not billed twice.
type ResponseCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewResponseCache connects to Redis and verifies the connection.
func NewResponseCache(config domain.CacheConfig) (*ResponseCache, error) {
	opts, err := redisOptions(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ResponseCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

func redisOptions(config domain.CacheConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	return opts, nil
}

// CachedResponse wraps a provider response with cache metadata.
type CachedResponse struct {
	Response  Response  `json:"response"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a cached response for a generation request. Corrupted or
// expired entries are evicted and reported as a miss.
func (c *ResponseCache) Get(ctx context.Context, provider, model, prompt, systemPrompt string, maxTokens int, temperature float64) (Response, bool, error) {
	key := generationKey(provider, model, prompt, systemPrompt, maxTokens, temperature)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return Response{}, false, nil // Cache miss
	}
	if err != nil {
		return Response{}, false, fmt.Errorf("failed to get cached response: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return Response{}, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return Response{}, false, nil
	}

	return cached.Response, true, nil
}

// Set caches a successful response under the request's key.
func (c *ResponseCache) Set(ctx context.Context, provider, model, prompt, systemPrompt string, maxTokens int, temperature float64, resp Response, ttl time.Duration) error {
	if !resp.Success {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := generationKey(provider, model, prompt, systemPrompt, maxTokens, temperature)

	cached := CachedResponse{
		Response:  resp,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Ping checks if the Redis connection is alive.
func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ResponseCache) Close() error {
	return c.redis.Close()
}

// generationKey creates a standardized cache key for a generation request.
func generationKey(provider, model, prompt, systemPrompt string, maxTokens int, temperature float64) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%.2f", provider, model, systemPrompt, prompt, maxTokens, temperature)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("llm:generation:%x", hash[:16])
}
