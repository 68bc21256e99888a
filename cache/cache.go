// Package cache provides a small Redis-backed JSON cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client with JSON helpers.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to the Redis server at rawURL (redis://[:password@]host:port/db) and pings it.
func New(ctx context.Context, rawURL string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	if logger == nil {
		logger = slog.Default()
	}
	c := &Redis{
		client: redis.NewClient(opts),
		logger: logger.With(slog.String("component", "cache")),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	c.logger.Info("Redis cache initialized", slog.String("addr", opts.Addr))
	return c, nil
}

// Ping checks that Redis answers.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Set stores value as JSON under key.
func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Del removes keys.
func (c *Redis) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Get loads the JSON value stored under key. found is false on a miss.
func Get[T any](ctx context.Context, c *Redis, key string) (value T, found bool, err error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}

	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Debug("Dropping undecodable cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return value, false, nil
	}
	return value, true, nil
}
