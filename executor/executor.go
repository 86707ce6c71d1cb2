// Package executor turns one logical Calculator API call into one or more HTTP
// attempts. It attaches authentication headers, classifies every attempt as an
// Outcome, retries with exponential backoff and reports exactly one terminal
// result per call.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/calcsite/calculator-sdk-go/cache"
	"github.com/calcsite/calculator-sdk-go/config"
	"github.com/calcsite/calculator-sdk-go/diagnostics"
	"github.com/calcsite/calculator-sdk-go/httpclient"
	"github.com/calcsite/calculator-sdk-go/internal/tracking"
	"github.com/calcsite/calculator-sdk-go/logger"
	"github.com/calcsite/calculator-sdk-go/trace"
)

// Transport performs exactly one HTTP exchange. It returns a Response for every
// completed exchange regardless of status and an error only when none arrived.
type Transport interface {
	Do(ctx context.Context, method string, req *httpclient.Request) (*httpclient.Response, error)
}

var _ Transport = (httpclient.Client)(nil)

// Request describes one logical call.
type Request struct {
	Method string
	// Path is appended verbatim to the base URL, query string included.
	Path string
	// Body is JSON-encoded once per call. It is ignored for GET.
	Body any
	// CacheKey opts the call into the result cache when one is configured.
	CacheKey string
}

// Result is the parsed body of the successful attempt.
type Result struct {
	Body       json.RawMessage
	StatusCode int
	// Attempts is 0 when the result came from the cache.
	Attempts int
	Cached   bool
}

// Decode unmarshals the body into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// cachedResponse is the CBOR record stored in the result cache.
type cachedResponse struct {
	Body       []byte    `cbor:"1,keyasint"`
	StatusCode int       `cbor:"2,keyasint"`
	StoredAt   time.Time `cbor:"3,keyasint"`
}

// Executor runs logical calls. It is safe for concurrent use.
type Executor struct {
	cfg       config.ClientConfig
	transport Transport
	policy    RetryPolicy
	sleep     SleepFunc
	sink      diagnostics.Sink
	logger    logger.Logger
	limiter   *rate.Limiter
	cache     cache.Cache
	cacheTTL  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryPolicy replaces the retry policy. A zero BaseDelay keeps the configured one.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) {
		if p.BaseDelay == 0 {
			p.BaseDelay = e.policy.BaseDelay
		}
		e.policy = p
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithSink sets where debug events go. The default writes them to the logger.
func WithSink(s diagnostics.Sink) Option {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger used for warnings and the default sink.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRateLimiter makes every attempt wait for a token first.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithCache enables the result cache for requests carrying a CacheKey.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(e *Executor) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// New creates an Executor. cfg is copied; transport is required. A zero
// RetryBaseDelay falls back to config.DefaultRetryBaseDelay.
func New(cfg config.ClientConfig, transport Transport, opts ...Option) (*Executor, error) {
	if transport == nil {
		return nil, errors.New("executor: transport is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("executor: max retries must be at least 0, got %d", cfg.MaxRetries)
	}

	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = config.DefaultRetryBaseDelay
	}

	e := &Executor{
		cfg:       cfg,
		transport: transport,
		policy:    RetryPolicy{BaseDelay: baseDelay},
		sleep:     Sleep,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = diagnostics.NewLoggerSink(e.logger)
	}
	return e, nil
}

// Execute runs req until an attempt succeeds, a fatal outcome occurs, the
// attempts run out or ctx ends. A failure is always a *ClientError describing
// the last attempt.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Path == "" {
		return nil, NewInvalidRequestError("request path is required", nil)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	body, err := encodeBody(req)
	if err != nil {
		return nil, NewInvalidRequestError("failed to encode request body", err)
	}

	url := e.cfg.BaseURL + req.Path
	ctx, requestID := trace.EnsureRequestID(ctx)
	ctx, call := tracking.StartCall(ctx, req.Method, req.Path)

	if res, ok := e.lookup(ctx, req.CacheKey, url); ok {
		call.End(ctx, tracking.OutcomeCached, res.StatusCode, 0, nil)
		return res, nil
	}

	httpReq := &httpclient.Request{
		URL:     url,
		Headers: e.headers(requestID),
		Body:    body,
		Timeout: e.cfg.Timeout,
	}

	var last *ClientError
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if e.cfg.Debug {
			fields := diagnostics.Fields{"method": req.Method, "url": url, "attempt": attempt, "request_id": requestID}
			if len(body) > 0 {
				fields["body"] = json.RawMessage(body)
			}
			e.sink.Emit(diagnostics.EventRequest, fields)
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, e.abort(ctx, call, last, err, attempt)
			}
		}

		resp, err := e.transport.Do(ctx, req.Method, httpReq)
		outcome := e.classify(resp, err)
		call.Attempt(ctx, attempt, outcome.StatusCode, outcome.Kind.String())

		switch outcome.Kind {
		case OutcomeSuccess:
			if e.cfg.Debug {
				e.sink.Emit(diagnostics.EventResponse, diagnostics.Fields{
					"status": outcome.StatusCode, "body": outcome.Body, "attempt": attempt, "request_id": requestID,
				})
			}
			e.store(ctx, req.CacheKey, outcome)
			call.End(ctx, tracking.OutcomeSuccess, outcome.StatusCode, attempt+1, nil)
			return &Result{Body: outcome.Body, StatusCode: outcome.StatusCode, Attempts: attempt + 1}, nil
		case OutcomeFatal:
			last = outcome.Err
			last.Attempts = attempt + 1
			call.End(ctx, tracking.OutcomeFatal, last.StatusCode, last.Attempts, last)
			return nil, last
		}

		last = outcome.Err
		last.Attempts = attempt + 1

		if ctx.Err() != nil {
			return nil, e.abort(ctx, call, last, ctx.Err(), last.Attempts)
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.policy.Delay(attempt)
		call.Retry(ctx, attempt+1, delay)
		if e.cfg.Debug {
			e.sink.Emit(diagnostics.EventRetry, diagnostics.Fields{
				"attempt": attempt + 1, "delay": delay.String(), "error": last.Error(), "request_id": requestID,
			})
		}
		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.abort(ctx, call, last, err, last.Attempts)
		}
	}

	call.End(ctx, tracking.OutcomeError, last.StatusCode, last.Attempts, last)
	return nil, last
}

// classify turns one transport result into an Outcome.
func (e *Executor) classify(resp *httpclient.Response, err error) Outcome {
	if err != nil {
		return Retryable(newTransportError(err))
	}
	if !resp.IsSuccess() {
		ce := newStatusError(resp)
		if e.policy.retryable(resp.StatusCode) {
			return Retryable(ce)
		}
		return Fatal(ce)
	}

	var body json.RawMessage
	if err := resp.JSON(&body); err != nil {
		return Retryable(&ClientError{
			Message:    "invalid response body",
			StatusCode: resp.StatusCode,
			cause:      err,
		})
	}
	return Success(resp.StatusCode, body)
}

// abort ends the call after ctx was canceled or the limiter refused to wait.
// The cause is joined into the last attempt's error so both stay matchable.
func (e *Executor) abort(ctx context.Context, call *tracking.Call, last *ClientError, cause error, attempts int) *ClientError {
	if last == nil {
		last = NewAbortError(cause)
	} else {
		last.cause = errors.Join(cause, last.cause)
	}
	last.Attempts = attempts
	call.End(ctx, tracking.OutcomeError, last.StatusCode, last.Attempts, last)
	return last
}

func (e *Executor) headers(requestID string) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + e.cfg.APIKey,
		"Content-Type":         "application/json",
		"Accept":               "application/json",
		"User-Agent":           e.cfg.UserAgent(),
		trace.HeaderXRequestID: requestID,
	}
}

func encodeBody(req Request) ([]byte, error) {
	if req.Body == nil || req.Method == http.MethodGet {
		return nil, nil
	}
	if raw, ok := req.Body.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("body is not valid JSON")
		}
		return raw, nil
	}
	return json.Marshal(req.Body)
}

func (e *Executor) lookup(ctx context.Context, key, url string) (*Result, bool) {
	if e.cache == nil || key == "" {
		return nil, false
	}

	entry, err := cache.GetValue[cachedResponse](ctx, e.cache, key)
	if err != nil {
		if !cache.IsMiss(err) {
			e.logger.Warn().Err(err).Str("cache_key", key).Msg("Cache lookup failed")
		}
		return nil, false
	}

	if e.cfg.Debug {
		e.sink.Emit(diagnostics.EventCacheHit, diagnostics.Fields{
			"url": url, "cache_key": key, "age": time.Since(entry.StoredAt).String(),
		})
	}
	return &Result{Body: json.RawMessage(entry.Body), StatusCode: entry.StatusCode, Cached: true}, true
}

func (e *Executor) store(ctx context.Context, key string, outcome Outcome) {
	if e.cache == nil || key == "" {
		return
	}

	entry := cachedResponse{Body: outcome.Body, StatusCode: outcome.StatusCode, StoredAt: time.Now().UTC()}
	if err := cache.SetValue(ctx, e.cache, key, entry, e.cacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("cache_key", key).Msg("Cache store failed")
	}
}
