//go:build integration

// Package containers starts throwaway backing services for integration tests.
// Tests are skipped when no Docker daemon is reachable.
package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/calcsite/calculator-sdk-go/config"
)

const (
	defaultRedisImage   = "redis:7-alpine"
	defaultRedisStartup = 60 * time.Second
)

// Redis is a running Redis container.
type Redis struct {
	container *redis.RedisContainer
	host      string
	port      int
}

// StartRedis starts a Redis container and terminates it when the test ends.
func StartRedis(ctx context.Context, t *testing.T) *Redis {
	t.Helper()

	if !isDockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
	}

	c, err := redis.Run(ctx, defaultRedisImage,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(defaultRedisStartup),
		),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	r := &Redis{container: c}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate redis container: %v", err)
		}
	})

	if r.host, err = c.Host(ctx); err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get redis port: %v", err)
	}
	r.port = mapped.Int()

	t.Logf("Redis container started at %s", r.Addr())
	return r
}

// Host returns the container host.
func (r *Redis) Host() string { return r.host }

// Port returns the mapped Redis port.
func (r *Redis) Port() int { return r.port }

// Addr returns host:port.
func (r *Redis) Addr() string { return fmt.Sprintf("%s:%d", r.host, r.port) }

// CacheConfig returns client settings pointing at the container.
func (r *Redis) CacheConfig() config.RedisConfig {
	cfg := config.Default("").Cache.Redis
	cfg.Host = r.host
	cfg.Port = r.port
	return cfg
}
