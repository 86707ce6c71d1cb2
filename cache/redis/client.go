// Package redis implements cache.Cache on Redis so calculation results can be
// shared between processes.
package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calcsite/calculator-sdk-go/cache"
	"github.com/calcsite/calculator-sdk-go/cache/internal/tracking"
)

const defaultDialTimeout = 5 * time.Second

// Client implements cache.Cache using Redis as the backend.
type Client struct {
	client *redis.Client
	config *Config
	closed atomic.Bool
}

var _ cache.Cache = (*Client)(nil)

// NewClient validates cfg, connects and pings the server.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, cache.NewConnectionError("ping", cfg.Address(), err)
	}

	return &Client{client: client, config: cfg}, nil
}

func (c *Client) key(k string) string {
	return c.config.KeyPrefix + k
}

// Get returns cache.ErrNotFound on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	result, err := c.client.Get(ctx, c.key(key)).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		tracking.RecordCacheOperation(ctx, tracking.BackendRedis, tracking.OpGet, duration, false, nil)
		return nil, cache.ErrNotFound
	}
	tracking.RecordCacheOperation(ctx, tracking.BackendRedis, tracking.OpGet, duration, err == nil, err)
	if err != nil {
		return nil, cache.NewOperationError("get", key, err)
	}
	return result, nil
}

// Set stores value with the given TTL; zero means no expiration.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	start := time.Now()
	err := c.client.Set(ctx, c.key(key), value, ttl).Err()
	tracking.RecordCacheOperation(ctx, tracking.BackendRedis, tracking.OpSet, time.Since(start), false, err)

	if err != nil {
		return cache.NewOperationError("set", key, err)
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Del(ctx, c.key(key)).Err()
	tracking.RecordCacheOperation(ctx, tracking.BackendRedis, tracking.OpDelete, time.Since(start), false, err)

	if err != nil {
		return cache.NewOperationError("delete", key, err)
	}
	return nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	tracking.RecordCacheOperation(ctx, tracking.BackendRedis, tracking.OpHealth, time.Since(start), false, err)

	if err != nil {
		return cache.NewConnectionError("ping", c.config.Address(), err)
	}
	return nil
}

// Stats reports connection pool counters.
func (c *Client) Stats() (map[string]any, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	pool := c.client.PoolStats()
	return map[string]any{
		"backend":          tracking.BackendRedis,
		"address":          c.config.Address(),
		"pool_hits":        pool.Hits,
		"pool_misses":      pool.Misses,
		"pool_timeouts":    pool.Timeouts,
		"pool_total_conns": pool.TotalConns,
		"pool_idle_conns":  pool.IdleConns,
		"pool_stale_conns": pool.StaleConns,
	}, nil
}

// Close releases the connection pool. A second call returns cache.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	return c.client.Close()
}
