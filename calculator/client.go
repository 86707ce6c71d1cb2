// Package calculator is the public entry point of the SDK. A Client lists the
// available calculators and runs calculations against the Calculator API,
// delegating retries, caching and diagnostics to the executor.
package calculator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/calcsite/calculator-sdk-go/cache"
	"github.com/calcsite/calculator-sdk-go/cache/memory"
	rediscache "github.com/calcsite/calculator-sdk-go/cache/redis"
	"github.com/calcsite/calculator-sdk-go/config"
	"github.com/calcsite/calculator-sdk-go/diagnostics"
	"github.com/calcsite/calculator-sdk-go/executor"
	"github.com/calcsite/calculator-sdk-go/httpclient"
	"github.com/calcsite/calculator-sdk-go/logger"
	"github.com/calcsite/calculator-sdk-go/validation"
)

// API paths
const (
	PathCalculators = "/calculators"
	PathCalculate   = "/calculate"
)

const payloadLogBytes = 2048

// Client talks to the Calculator API. It is safe for concurrent use.
type Client struct {
	cfg       config.ClientConfig
	exec      *executor.Executor
	log       logger.Logger
	validator *validation.Validator

	cache     cache.Cache
	ownsCache bool

	group     singleflight.Group
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	transport executor.Transport
	logger    logger.Logger
	cache     cache.Cache
	sink      diagnostics.Sink
	policy    *executor.RetryPolicy
	sleep     executor.SleepFunc
}

// Option configures a Client.
type Option func(*options)

// WithTransport replaces the HTTP transport.
func WithTransport(t executor.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCache supplies the result cache. The caller keeps ownership and must close it.
// It only takes effect when caching is enabled in the configuration.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithSink sends debug events to s instead of the logger.
func WithSink(s diagnostics.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithRetryPolicy sets the backoff and status classification.
func WithRetryPolicy(p executor.RetryPolicy) Option {
	return func(o *options) { o.policy = &p }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn executor.SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

// New validates cfg and builds a client. cfg is copied.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.LogLevel(), cfg.Log.Pretty)
	}

	transport := o.transport
	if transport == nil {
		transport = newTransport(cfg, log)
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		validator: validation.New(),
	}

	execOpts := []executor.Option{executor.WithLogger(log)}
	if o.sink != nil {
		execOpts = append(execOpts, executor.WithSink(o.sink))
	}
	if o.policy != nil {
		execOpts = append(execOpts, executor.WithRetryPolicy(*o.policy))
	}
	if o.sleep != nil {
		execOpts = append(execOpts, executor.WithSleep(o.sleep))
	}
	if cfg.Rate.Limit > 0 {
		execOpts = append(execOpts, executor.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Rate.Limit), cfg.Rate.Burst)))
	}

	if cfg.CacheEnabled {
		store := o.cache
		if store == nil {
			var err error
			if store, err = newCache(cfg); err != nil {
				return nil, fmt.Errorf("failed to create %s cache: %w", cfg.Cache.Type, err)
			}
			c.ownsCache = true
		}
		c.cache = store
		execOpts = append(execOpts, executor.WithCache(store, cfg.Cache.TTL))
	}

	exec, err := executor.New(cfg, transport, execOpts...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.exec = exec

	log.Debug().
		Str("base_url", cfg.BaseURL).
		Int("max_retries", cfg.MaxRetries).
		Bool("cache_enabled", cfg.CacheEnabled).
		Str("cache_type", cfg.Cache.Type).
		Msg("Calculator client created")

	return c, nil
}

// NewFromConfig loads the configuration from the YAML file at path and the
// CALCULATOR_* environment, then builds a client.
func NewFromConfig(path string, opts ...Option) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(*cfg, opts...)
}

func newTransport(cfg config.ClientConfig, log logger.Logger) httpclient.Client {
	return httpclient.NewBuilder(log).
		WithTimeout(cfg.Timeout).
		WithPayloadLogging(cfg.Debug, payloadLogBytes).
		WithRequestInterceptor(httpclient.NewRequestIDInterceptor()).
		Build()
}

func newCache(cfg config.ClientConfig) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case config.CacheRedis:
		r := cfg.Cache.Redis
		client, err := rediscache.NewClient(&rediscache.Config{
			Host:         r.Host,
			Port:         r.Port,
			Password:     r.Password,
			Database:     r.Database,
			PoolSize:     r.PoolSize,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
			KeyPrefix:    r.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return memory.New(), nil
	}
}

// Config returns a copy of the client configuration.
func (c *Client) Config() config.ClientConfig {
	return c.cfg
}

// ListCalculators returns the calculators matching filters. Nil filter values are ignored.
func (c *Client) ListCalculators(ctx context.Context, filters map[string]any) (*CalculatorList, error) {
	raw, err := c.ListCalculatorsRaw(ctx, filters)
	if err != nil {
		return nil, err
	}

	var list CalculatorList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode calculator list: %w", err)
	}
	return &list, nil
}

// ListCalculatorsRaw is ListCalculators without decoding.
func (c *Client) ListCalculatorsRaw(ctx context.Context, filters map[string]any) (json.RawMessage, error) {
	path := PathCalculators
	if q := EncodeFilters(filters); q != "" {
		path += "?" + q
	}

	res, err := c.exec.Execute(ctx, executor.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Calculate runs a calculation. When caching is enabled, repeated inputs are
// served from the cache with Metadata.Cached set.
func (c *Client) Calculate(ctx context.Context, input CalculationInput) (*CalculationResult, error) {
	res, err := c.calculate(ctx, input)
	if err != nil {
		return nil, err
	}

	var out CalculationResult
	if err := res.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode calculation result: %w", err)
	}
	if res.Cached {
		out.Metadata.Cached = true
	}
	return &out, nil
}

// CalculateRaw is Calculate without decoding.
func (c *Client) CalculateRaw(ctx context.Context, input CalculationInput) (json.RawMessage, error) {
	res, err := c.calculate(ctx, input)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(res.Body), nil
}

// calculate validates input and runs the request. With a cache configured,
// identical concurrent calculations share one executor call that outlives any
// single caller; each caller still returns as soon as its own ctx ends.
func (c *Client) calculate(ctx context.Context, input CalculationInput) (*executor.Result, error) {
	if err := c.validator.Validate(input); err != nil {
		return nil, err
	}

	req := executor.Request{Method: http.MethodPost, Path: PathCalculate, Body: input}
	if c.cache == nil {
		return c.exec.Execute(ctx, req)
	}

	key, err := CacheKey(input)
	if err != nil {
		return nil, executor.NewInvalidRequestError("failed to build cache key", err)
	}
	req.CacheKey = key

	ch := c.group.DoChan(key, func() (any, error) {
		return c.exec.Execute(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		return nil, executor.NewAbortError(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*executor.Result), nil
	}
}

// Health checks the result cache, if any.
func (c *Client) Health(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Health(ctx)
}

// Close releases the cache created by New. A cache passed through WithCache is left open.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.ownsCache && c.cache != nil {
			if err := c.cache.Close(); err != nil && !errors.Is(err, cache.ErrClosed) {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}
