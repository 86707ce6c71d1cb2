package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/calcsite/calculator-sdk-go/cache"
)

// MockCache provides a testify-based mock implementation of cache.Cache.
// It is meant for asserting cache interactions and injecting backend failures;
// use cache/memory when real storage semantics are needed.
//
// Example usage:
//
//	mockCache := &mocks.MockCache{}
//	mockCache.On("Get", mock.Anything, "calc:abc").Return(nil, cache.ErrNotFound)
//	mockCache.On("Set", mock.Anything, "calc:abc", mock.Anything, time.Hour).Return(nil)
type MockCache struct {
	mock.Mock
}

var _ cache.Cache = (*MockCache)(nil)

// Get implements cache.Cache
func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

// Set implements cache.Cache
func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

// Delete implements cache.Cache
func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// Health implements cache.Cache
func (m *MockCache) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Stats implements cache.Cache
func (m *MockCache) Stats() (map[string]any, error) {
	args := m.Called()
	var stats map[string]any
	if v := args.Get(0); v != nil {
		stats = v.(map[string]any)
	}
	return stats, args.Error(1)
}

// Close implements cache.Cache
func (m *MockCache) Close() error {
	return m.Called().Error(0)
}
