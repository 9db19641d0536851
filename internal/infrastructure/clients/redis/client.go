package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/servicemarket/pkg/config"
)

const defaultPingTimeout = 5 * time.Second

// Client wraps a go-redis client together with the namespace its cache keys live under
type Client struct {
	client    *redis.Client
	keyPrefix string
}

// NewClient connects to Redis with the pool and timeouts from cfg
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	return &Client{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(client *redis.Client, keyPrefix string) *Client {
	return &Client{client: client, keyPrefix: keyPrefix}
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Key namespaces a cache key
func (c *Client) Key(key string) string {
	return c.keyPrefix + key
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

