// Package httpclient is the single-attempt HTTP transport used by the SDK.
// It builds requests, applies default headers and interceptors, logs the
// exchange and returns a Response for every completed round trip regardless
// of status. Retrying is left to the caller.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/calcsite/calculator-sdk-go/trace"
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents an HTTP request with all necessary data
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout bounds this request only. Zero uses the client default.
	Timeout time.Duration
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	// CallCount is the sequence number of this call on the issuing client.
	CallCount int64
}

// ErrEmptyBody is returned by Response.JSON when there is nothing to decode.
var ErrEmptyBody = errors.New("empty response body")

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return IsSuccessStatus(r.StatusCode)
}

// Reason returns the standard reason phrase for the status code.
func (r *Response) Reason() string {
	return nethttp.StatusText(r.StatusCode)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}

// Err returns an HTTP error for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return NewHTTPError(r.Reason(), r.StatusCode, r.Body)
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the REST client configuration
type Config struct {
	Timeout              time.Duration
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	DefaultHeaders       map[string]string
	// Transport is the base round tripper; it is wrapped with otelhttp instrumentation.
	Transport nethttp.RoundTripper
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
}

// NewRequestIDInterceptor creates a request interceptor that sets the
// X-Request-ID header from the context, generating one when absent.
func NewRequestIDInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(trace.HeaderXRequestID) != "" {
			return nil
		}
		_, id := trace.EnsureRequestID(ctx)
		req.Header.Set(trace.HeaderXRequestID, id)
		return nil
	}
}
