package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantage-run/optigate/config"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

func (r *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(pingCtx).Err()
}

// Push appends value unchanged to a list, trimming it to keep at
// most maxLen entries (drop-oldest).
func (r *Client) Push(ctx context.Context, key, value string, maxLen int64) error {
	if err := r.c.RPush(ctx, key, value).Err(); err != nil {
		return err
	}
	return r.c.LTrim(ctx, key, -maxLen, -1).Err()
}

// All returns every entry currently stored under key, oldest first.
func (r *Client) All(ctx context.Context, key string) ([]string, error) {
	return r.c.LRange(ctx, key, 0, -1).Result()
}

// Len returns the number of entries stored under key.
func (r *Client) Len(ctx context.Context, key string) (int64, error) {
	return r.c.LLen(ctx, key).Result()
}

func (r *Client) Close() error {
	return r.c.Close()
}
