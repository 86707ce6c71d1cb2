//go:build integration

package calculator

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calcsite/calculator-sdk-go/config"
	"github.com/calcsite/calculator-sdk-go/testing/containers"
)

func TestRedisCacheAgainstRealServer(t *testing.T) {
	ctx := context.Background()
	redis := containers.StartRedis(ctx, t)
	srv := newFakeServer(t)

	cfg := testConfig(srv.URL())
	cfg.Cache.Type = config.CacheRedis
	cfg.Cache.Redis = redis.CacheConfig()

	first, _ := newTestClient(t, cfg)
	_, err := first.Calculate(ctx, mortgageInput())
	require.NoError(t, err)

	// A second client shares the entry through Redis.
	second, _ := newTestClient(t, cfg)
	res, err := second.Calculate(ctx, mortgageInput())
	require.NoError(t, err)

	assert.True(t, res.Metadata.Cached)
	assert.Equal(t, 1, srv.Count(http.MethodPost, PathCalculate))
	assert.NoError(t, second.Health(ctx))
}
