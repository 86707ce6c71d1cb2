package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/calcsite/calculator-sdk-go/logger"
	"github.com/calcsite/calculator-sdk-go/trace"
)

const (
	defaultTimeout            = 30 * time.Second
	defaultMaxPayloadLogBytes = 1024
)

// Builder assembles a Client.
type Builder struct {
	logger logger.Logger
	config *Config
}

// NewBuilder creates a builder with default settings.
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		logger: log,
		config: &Config{
			Timeout:            defaultTimeout,
			DefaultHeaders:     make(map[string]string),
			MaxPayloadLogBytes: defaultMaxPayloadLogBytes,
		},
	}
}

// WithTimeout sets the default per-request timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithDefaultHeader adds a header sent with every request unless the request overrides it.
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor appends a request interceptor.
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor appends a response interceptor.
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithPayloadLogging enables debug logging of headers and bodies, truncated to maxBytes.
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithTransport sets the base round tripper.
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// Build creates the client.
func (b *Builder) Build() Client {
	cfg := *b.config
	cfg.DefaultHeaders = make(map[string]string, len(b.config.DefaultHeaders))
	for k, v := range b.config.DefaultHeaders {
		cfg.DefaultHeaders[k] = v
	}
	cfg.RequestInterceptors = append([]RequestInterceptor(nil), b.config.RequestInterceptors...)
	cfg.ResponseInterceptors = append([]ResponseInterceptor(nil), b.config.ResponseInterceptors...)

	base := cfg.Transport
	if base == nil {
		base = nethttp.DefaultTransport
	}

	return &client{
		httpClient: &nethttp.Client{
			Transport: otelhttp.NewTransport(base),
		},
		logger: b.logger,
		config: &cfg,
	}
}

type client struct {
	httpClient *nethttp.Client
	logger     logger.Logger
	config     *Config
	calls      atomic.Int64
}

func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do performs exactly one HTTP exchange. A completed exchange yields a Response
// whatever its status; only failures without a response return an error.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if req == nil || req.URL == "" {
		return nil, NewValidationError("request URL is required", "url")
	}

	timeout := c.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader = nethttp.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid request: %v", err), "url")
	}

	for k, v := range c.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}

	requestID := httpReq.Header.Get(trace.HeaderXRequestID)
	c.logRequest(httpReq, req.Body, requestID)

	callCount := c.calls.Add(1)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		elapsed := time.Since(start)
		c.logger.Debug().
			Err(err).
			Str("method", method).
			Str("url", req.URL).
			Str("request_id", requestID).
			Dur("elapsed", elapsed).
			Msg("REST client request failed")

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError(fmt.Sprintf("%s %s", method, req.URL), timeout)
		}
		return nil, NewNetworkError(fmt.Sprintf("%s %s", method, req.URL), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError("reading response body", timeout)
		}
		return nil, NewNetworkError("failed to read response body", err)
	}

	for _, interceptor := range c.config.ResponseInterceptors {
		if err := interceptor(ctx, httpReq, resp); err != nil {
			return nil, NewInterceptorError("response interceptor failed", "response", err)
		}
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		Stats: Stats{
			ElapsedTime: time.Since(start),
			CallCount:   callCount,
		},
	}

	c.logResponse(response, requestID)
	return response, nil
}
