package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMeterProvider(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	ResetForTesting()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		ResetForTesting()
	})

	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != cacheMeterName {
			continue
		}
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterTotal(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordCacheOperationDuration(t *testing.T) {
	reader := setupTestMeterProvider(t)

	RecordCacheOperation(context.Background(), BackendRedis, OpSet, 5*time.Millisecond, false, nil)

	metrics := collect(t, reader)
	m, ok := metrics[metricCacheOperationDuration]
	require.True(t, ok)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	attrs := hist.DataPoints[0].Attributes
	backend, _ := attrs.Value(attribute.Key(attrBackend))
	op, _ := attrs.Value(attribute.Key(attrOperation))
	assert.Equal(t, BackendRedis, backend.AsString())
	assert.Equal(t, OpSet, op.AsString())
	_, hasHit := attrs.Value(attribute.Key(attrHit))
	assert.False(t, hasHit, "only lookups carry hit status")

	_, hasHitCounter := metrics[metricCacheHit]
	assert.False(t, hasHitCounter)
}

func TestRecordCacheHitMiss(t *testing.T) {
	reader := setupTestMeterProvider(t)

	ctx := context.Background()
	RecordCacheOperation(ctx, BackendMemory, OpGet, time.Microsecond, true, nil)
	RecordCacheOperation(ctx, BackendMemory, OpGet, time.Microsecond, true, nil)
	RecordCacheOperation(ctx, BackendMemory, OpGet, time.Microsecond, false, nil)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), counterTotal(t, metrics[metricCacheHit]))
	assert.Equal(t, int64(1), counterTotal(t, metrics[metricCacheMiss]))
}

func TestRecordCacheOperationErrorType(t *testing.T) {
	reader := setupTestMeterProvider(t)

	RecordCacheOperation(context.Background(), BackendRedis, OpGet, time.Millisecond, false, context.DeadlineExceeded)

	hist := collect(t, reader)[metricCacheOperationDuration].Data.(metricdata.Histogram[float64])
	errType, ok := hist.DataPoints[0].Attributes.Value(attribute.Key(attrErrorType))
	require.True(t, ok)
	assert.Equal(t, "timeout", errType.AsString())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "canceled", classifyError(context.Canceled))
	assert.Equal(t, "error", classifyError(errors.New("redis: connection pool exhausted")))
}

func TestInitializationState(t *testing.T) {
	setupTestMeterProvider(t)
	assert.False(t, IsInitialized())

	RecordCacheOperation(context.Background(), BackendMemory, OpDelete, time.Millisecond, false, nil)
	assert.True(t, IsInitialized())

	ResetForTesting()
	assert.False(t, IsInitialized())
}
