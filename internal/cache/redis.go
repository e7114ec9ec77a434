package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the connection settings for RedisClient.
type RedisConfig struct {
	URL      string
	PoolSize int
}

// RedisClient is a Client backed by Redis.
type RedisClient struct {
	client *redis.Client
	logger zerolog.Logger
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient parses the URL, connects and pings the server before returning.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", opts.Addr).Msg("Connected to Redis.")
	return NewRedisClientFrom(rdb, logger), nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(rdb *redis.Client, logger zerolog.Logger) *RedisClient {
	return &RedisClient{
		client: rdb,
		logger: logger.With().Str("component", "RedisClient").Logger(),
	}
}

// Get returns the stored bytes, or ErrMiss when the key is absent or expired.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	c.logger.Debug().Str("key", key).Msg("Redis cache hit.")
	return data, nil
}

// Set stores value under key. A ttl of zero keeps the key until it is deleted.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *RedisClient) Close() error {
	c.logger.Info().Msg("Closing Redis client connection...")
	return c.client.Close()
}
