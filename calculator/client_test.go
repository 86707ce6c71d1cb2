package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/calcsite/calculator-sdk-go/cache"
	"github.com/calcsite/calculator-sdk-go/cache/memory"
	"github.com/calcsite/calculator-sdk-go/config"
	"github.com/calcsite/calculator-sdk-go/diagnostics"
	"github.com/calcsite/calculator-sdk-go/executor"
	"github.com/calcsite/calculator-sdk-go/httpclient"
	"github.com/calcsite/calculator-sdk-go/logger"
	"github.com/calcsite/calculator-sdk-go/testing/fakeapi"
	"github.com/calcsite/calculator-sdk-go/testing/mocks"
	"github.com/calcsite/calculator-sdk-go/validation"
)

const testAPIKey = "test-key"

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testConfig(baseURL string) config.ClientConfig {
	cfg := config.Default(testAPIKey)
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newFakeServer(t *testing.T) *fakeapi.Server {
	t.Helper()
	srv := fakeapi.New(testAPIKey)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, cfg config.ClientConfig, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	sleeper := &sleepRecorder{}
	base := []Option{WithLogger(logger.Nop()), WithSleep(sleeper.Sleep)}
	c, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, sleeper
}

func mortgageInput() CalculationInput {
	return CalculationInput{
		CalculatorID: "mortgage",
		Inputs:       map[string]any{"principal": 300000, "rate": 3.5, "term": 30},
	}
}

func TestListCalculatorsDropsNilFilters(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	list, err := c.ListCalculators(context.Background(), map[string]any{"category": "finance", "limit": nil})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, PathCalculators, reqs[0].Path)
	assert.Equal(t, "category=finance", reqs[0].RawQuery)

	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Calculators, 2)
	assert.Equal(t, "mortgage", list.Calculators[0].ID)
}

func TestListCalculatorsWithoutFilters(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	raw, err := c.ListCalculatorsRaw(context.Background(), map[string]any{"limit": nil})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"calculators"`)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].RawQuery)
}

func TestListCalculatorsTypedFilters(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	featured := true
	list, err := c.ListCalculators(context.Background(), ListFilters{Featured: &featured, Limit: 1}.Map())
	require.NoError(t, err)

	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Calculators, 1)
	assert.Equal(t, "featured=true&limit=1", srv.Requests()[0].RawQuery)
}

func TestCalculateSendsAuthenticatedRequest(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	res, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)

	assert.InDelta(t, 1347.13, res.Result, 0.001)
	assert.False(t, res.Metadata.Cached)
	assert.Equal(t, "USD", res.Metadata.Currency)
	assert.Equal(t, 2, res.Metadata.Precision)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, PathCalculate, reqs[0].Path)
	assert.Equal(t, "Bearer "+testAPIKey, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "CalculatorSDK-Go/2.0.0", reqs[0].Header.Get("User-Agent"))
	assert.NotEmpty(t, reqs[0].Header.Get("X-Request-ID"))
	assert.JSONEq(t, `{"calculatorId":"mortgage","inputs":{"principal":300000,"rate":3.5,"term":30}}`, string(reqs[0].Body))
}

func TestCalculateRetriesServerErrors(t *testing.T) {
	srv := newFakeServer(t)
	srv.FailNext(PathCalculate,
		fakeapi.Failure{Status: 500, Body: `{"error":"boom"}`},
		fakeapi.Failure{Status: 500, Body: `{"error":"boom"}`},
	)

	cfg := testConfig(srv.URL())
	cfg.MaxRetries = 2
	c, sleeper := newTestClient(t, cfg)

	res, err := c.Calculate(context.Background(), CalculationInput{
		CalculatorID: "percentage",
		Inputs:       map[string]any{"value": 200, "percent": 21},
	})
	require.NoError(t, err)
	assert.InDelta(t, 42, res.Result, 0.001)
	assert.Equal(t, 3, srv.Count(http.MethodPost, PathCalculate))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())

	ids := map[string]bool{}
	for _, r := range srv.Requests() {
		ids[r.Header.Get("X-Request-ID")] = true
	}
	assert.Len(t, ids, 1)
}

func TestCalculateUpstreamErrorAfterSingleAttempt(t *testing.T) {
	srv := newFakeServer(t)
	srv.FailNext(PathCalculate, fakeapi.Failure{Status: 503, Body: `{"error":"rate limited"}`})

	cfg := testConfig(srv.URL())
	cfg.MaxRetries = 0
	c, sleeper := newTestClient(t, cfg)

	_, err := c.Calculate(context.Background(), mortgageInput())
	require.Error(t, err)

	var ce *executor.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 503, ce.StatusCode)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, srv.Count(http.MethodPost, PathCalculate))
	assert.Empty(t, sleeper.Delays())
}

func TestListCalculatorsTimesOutOnEveryAttempt(t *testing.T) {
	srv := newFakeServer(t)
	srv.FailNext(PathCalculators, fakeapi.Hang(), fakeapi.Hang())

	cfg := testConfig(srv.URL())
	cfg.MaxRetries = 1
	cfg.Timeout = 100 * time.Millisecond
	c, sleeper := newTestClient(t, cfg)

	_, err := c.ListCalculators(context.Background(), nil)
	require.Error(t, err)

	var ce *executor.ClientError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, executor.ErrTransport)
	assert.True(t, ce.Timeout())
	assert.Equal(t, 2, ce.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.Delays())
	assert.Eventually(t, func() bool { return srv.Count(http.MethodGet, PathCalculators) == 2 }, time.Second, 10*time.Millisecond)
}

func TestCalculateUsesCache(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	first, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)
	assert.False(t, first.Metadata.Cached)

	second, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Result, second.Result)

	assert.Equal(t, 1, srv.Count(http.MethodPost, PathCalculate))
}

func TestCalculateWithoutCache(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.URL())
	cfg.CacheEnabled = false
	c, _ := newTestClient(t, cfg)

	for i := 0; i < 2; i++ {
		res, err := c.Calculate(context.Background(), mortgageInput())
		require.NoError(t, err)
		assert.False(t, res.Metadata.Cached)
	}
	assert.Equal(t, 2, srv.Count(http.MethodPost, PathCalculate))
	assert.NoError(t, c.Health(context.Background()))
}

func TestCalculateRaw(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestClient(t, testConfig(srv.URL()))

	raw, err := c.CalculateRaw(context.Background(), CalculationInput{
		CalculatorID: "percentage",
		Inputs:       map[string]any{"value": 50, "percent": 50},
		Format:       FormatDetailed,
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"formatted":"USD 25.00"`)
}

func TestCalculateValidatesInput(t *testing.T) {
	tests := []struct {
		name  string
		input CalculationInput
		field string
	}{
		{name: "missing_id", input: CalculationInput{Inputs: map[string]any{}}, field: "calculatorId"},
		{name: "bad_id", input: CalculationInput{CalculatorID: "Mortgage!", Inputs: map[string]any{}}, field: "calculatorId"},
		{name: "missing_inputs", input: CalculationInput{CalculatorID: "sum"}, field: "inputs"},
		{name: "bad_format", input: CalculationInput{CalculatorID: "sum", Inputs: map[string]any{}, Format: "fancy"}, field: "format"},
		{name: "precision", input: CalculationInput{CalculatorID: "sum", Inputs: map[string]any{}, Precision: 16}, field: "precision"},
		{name: "currency", input: CalculationInput{CalculatorID: "sum", Inputs: map[string]any{}, Currency: "dollars"}, field: "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mocks.MockTransport{}
			c, _ := newTestClient(t, testConfig("https://api.test"), WithTransport(transport))

			_, err := c.Calculate(context.Background(), tt.input)

			var ve *validation.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, ve.HasField(tt.field), "errors: %v", ve.Errors)
			transport.AssertNotCalled(t, "Do", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCalculateDeduplicatesConcurrentCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	transport := &mocks.MockTransport{}
	transport.On("Do", mock.Anything, http.MethodPost, mock.Anything).
		Run(func(mock.Arguments) {
			once.Do(func() { close(started) })
			<-release
		}).
		Return(mocks.JSONResponse(200, `{"result":7,"metadata":{"precision":2}}`), nil)

	c, _ := newTestClient(t, testConfig("https://api.test"), WithTransport(transport))

	const callers = 8
	input := CalculationInput{CalculatorID: "sum", Inputs: map[string]any{"a": 3, "b": 4}}

	var wg sync.WaitGroup
	results := make([]*CalculationResult, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Calculate(context.Background(), input)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Calculate(context.Background(), input)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, float64(7), results[i].Result)
	}
	transport.AssertNumberOfCalls(t, "Do", 1)
}

// blockingTransport holds every request until release is closed or the
// request context ends.
type blockingTransport struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingTransport) Do(ctx context.Context, _ string, _ *httpclient.Request) (*httpclient.Response, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return mocks.JSONResponse(200, `{"result":7,"metadata":{"precision":2}}`), nil
	}
}

func TestCalculateSharedCallSurvivesCallerCancel(t *testing.T) {
	transport := newBlockingTransport()
	c, _ := newTestClient(t, testConfig("https://api.test"), WithTransport(transport))
	input := CalculationInput{CalculatorID: "sum", Inputs: map[string]any{"a": 3, "b": 4}}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Calculate(ctxA, input)
		errA <- err
	}()
	<-transport.started

	ctxB, cancelB := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelB()
	type outcome struct {
		res *CalculationResult
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := c.Calculate(ctxB, input)
		doneB <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	err := <-errA
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var ce *executor.ClientError
	assert.ErrorAs(t, err, &ce)

	close(transport.release)
	b := <-doneB
	require.NoError(t, b.err)
	assert.Equal(t, float64(7), b.res.Result)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestCalculateWithoutCacheRunsEachCall(t *testing.T) {
	transport := newBlockingTransport()
	cfg := testConfig("https://api.test")
	cfg.CacheEnabled = false
	cfg.MaxRetries = 0
	c, _ := newTestClient(t, cfg, WithTransport(transport))
	input := CalculationInput{CalculatorID: "sum", Inputs: map[string]any{"a": 3, "b": 4}}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Calculate(ctxA, input)
		errA <- err
	}()
	<-transport.started

	var wg sync.WaitGroup
	var resB *CalculationResult
	var errB error
	wg.Add(1)
	go func() {
		defer wg.Done()
		resB, errB = c.Calculate(context.Background(), input)
	}()
	require.Eventually(t, func() bool { return transport.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(transport.release)
	wg.Wait()
	require.NoError(t, errB)
	assert.Equal(t, float64(7), resB.Result)
}

func TestCalculateUnencodableInputs(t *testing.T) {
	for _, cached := range []bool{true, false} {
		t.Run(fmt.Sprintf("cache_%t", cached), func(t *testing.T) {
			transport := &mocks.MockTransport{}
			cfg := testConfig("https://api.test")
			cfg.CacheEnabled = cached
			c, _ := newTestClient(t, cfg, WithTransport(transport))

			_, err := c.Calculate(context.Background(), CalculationInput{
				CalculatorID: "sum",
				Inputs:       map[string]any{"a": math.NaN()},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, executor.ErrInvalidRequest)
			var ce *executor.ClientError
			assert.ErrorAs(t, err, &ce)
			transport.AssertNotCalled(t, "Do", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCalculateLargeRetryCount(t *testing.T) {
	transport := &mocks.MockTransport{}
	transport.On("Do", mock.Anything, http.MethodPost, mock.Anything).
		Return(mocks.JSONResponse(500, `{"error":"down"}`), nil)

	cfg := testConfig("https://api.test")
	cfg.CacheEnabled = false
	cfg.MaxRetries = 25
	c, sleeper := newTestClient(t, cfg, WithTransport(transport))

	_, err := c.Calculate(context.Background(), mortgageInput())
	require.Error(t, err)

	var ce *executor.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 26, ce.Attempts)
	assert.Len(t, sleeper.Delays(), 25)
	transport.AssertNumberOfCalls(t, "Do", 26)
}

func TestCalculateFatalStatusWithTransientPolicy(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.URL())
	cfg.APIKey = "wrong-key"
	c, sleeper := newTestClient(t, cfg, WithRetryPolicy(executor.RetryPolicy{Retryable: executor.RetryTransientOnly}))

	_, err := c.Calculate(context.Background(), mortgageInput())

	assert.ErrorIs(t, err, executor.ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 1, srv.Count(http.MethodPost, PathCalculate))
	assert.Empty(t, sleeper.Delays())
}

func TestDebugEventsReachSink(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.URL())
	cfg.Debug = true
	rec := diagnostics.NewRecorder()
	c, _ := newTestClient(t, cfg, WithSink(rec))

	_, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)
	_, err = c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)

	assert.Equal(t, []diagnostics.Event{
		diagnostics.EventRequest, diagnostics.EventResponse, diagnostics.EventCacheHit,
	}, rec.Events())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default("")
	_, err := New(cfg, WithLogger(logger.Nop()))
	require.Error(t, err)

	var ve *validation.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRedisCacheBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newFakeServer(t)

	cfg := testConfig(srv.URL())
	cfg.Cache.Type = config.CacheRedis
	cfg.Cache.Redis.Host = mr.Host()
	cfg.Cache.Redis.Port = mr.Server().Addr().Port
	c, _ := newTestClient(t, cfg)

	_, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)
	res, err := c.Calculate(context.Background(), mortgageInput())
	require.NoError(t, err)
	assert.True(t, res.Metadata.Cached)
	assert.Equal(t, 1, srv.Count(http.MethodPost, PathCalculate))

	key, err := CacheKey(mortgageInput())
	require.NoError(t, err)
	assert.True(t, mr.Exists("calculator:"+key))
	assert.NoError(t, c.Health(context.Background()))

	ttl := mr.TTL("calculator:" + key)
	assert.Equal(t, config.DefaultCacheTTL, ttl)
}

func TestRedisCacheUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := testConfig("https://api.test")
	cfg.Cache.Type = config.CacheRedis
	cfg.Cache.Redis.Host = "127.0.0.1"
	cfg.Cache.Redis.Port = port
	cfg.Cache.Redis.DialTimeout = 200 * time.Millisecond

	_, err = New(cfg, WithLogger(logger.Nop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create redis cache")

	var connErr *cache.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestCloseOwnership(t *testing.T) {
	external := memory.New(memory.WithCleanupInterval(0))
	defer external.Close()

	c, err := New(testConfig("https://api.test"), WithLogger(logger.Nop()), WithCache(external))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.NoError(t, external.Health(context.Background()))

	owned, err := New(testConfig("https://api.test"), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, owned.Close())
	assert.ErrorIs(t, owned.Health(context.Background()), cache.ErrClosed)
}

func TestNewFromConfig(t *testing.T) {
	srv := newFakeServer(t)
	t.Setenv("CALCULATOR_APIKEY", testAPIKey)
	t.Setenv("CALCULATOR_BASEURL", srv.URL())
	t.Setenv("CALCULATOR_CACHEENABLED", "false")
	t.Setenv("CALCULATOR_LOG_LEVEL", "error")

	c, err := NewFromConfig("", WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	cfg := c.Config()
	assert.Equal(t, srv.URL(), cfg.BaseURL)
	assert.False(t, cfg.CacheEnabled)

	list, err := c.ListCalculators(context.Background(), map[string]any{"search": "mortgage"})
	require.NoError(t, err)
	require.Len(t, list.Calculators, 1)
}

func TestNewFromConfigMissingKey(t *testing.T) {
	t.Setenv("CALCULATOR_APIKEY", "")
	_, err := NewFromConfig("")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "apikey"))
}

func TestTransportErrorFromRealClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig("http://" + addr)
	cfg.MaxRetries = 1
	c, sleeper := newTestClient(t, cfg)

	_, err = c.ListCalculators(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrTransport)
	assert.True(t, httpclient.IsErrorType(err, httpclient.NetworkError))
	assert.False(t, errors.Is(err, executor.ErrNotFound))
	assert.Len(t, sleeper.Delays(), 1)
}
