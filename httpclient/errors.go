package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes transport errors.
type ErrorType int

const (
	NetworkError ErrorType = iota
	TimeoutError
	HTTPError
	ValidationError
	InterceptorError
)

func (t ErrorType) String() string {
	switch t {
	case NetworkError:
		return "network"
	case TimeoutError:
		return "timeout"
	case HTTPError:
		return "http"
	case ValidationError:
		return "validation"
	case InterceptorError:
		return "interceptor"
	default:
		return "unknown"
	}
}

// Error is implemented by every error the transport returns.
type Error interface {
	error
	Type() ErrorType
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError creates an error for a failed exchange with no response.
func NewNetworkError(message string, err error) Error {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message string
	timeout time.Duration
}

// NewTimeoutError creates an error for a request that exceeded its deadline.
// It matches context.DeadlineExceeded with errors.Is.
func NewTimeoutError(message string, timeout time.Duration) Error {
	return &timeoutError{message: message, timeout: timeout}
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %s)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return context.DeadlineExceeded }

// Timeout returns the configured timeout that was exceeded.
func (e *timeoutError) Timeout() time.Duration { return e.timeout }

type httpError struct {
	message    string
	statusCode int
	body       []byte
}

// NewHTTPError creates an error for a non-2xx response.
func NewHTTPError(message string, statusCode int, body []byte) Error {
	return &httpError{message: message, statusCode: statusCode, body: body}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: %s (status: %d)", e.message, e.statusCode)
}

func (e *httpError) Type() ErrorType { return HTTPError }
func (e *httpError) StatusCode() int { return e.statusCode }
func (e *httpError) Body() []byte    { return e.body }

type validationError struct {
	message string
	field   string
}

// NewValidationError creates an error for a request that could not be built.
func NewValidationError(message, field string) Error {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

type interceptorError struct {
	message string
	stage   string
	err     error
}

// NewInterceptorError creates an error for a failing request or response interceptor.
func NewInterceptorError(message, stage string, err error) Error {
	return &interceptorError{message: message, stage: stage, err: err}
}

func (e *interceptorError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("interceptor error: %s (stage: %s): %v", e.message, e.stage, e.err)
	}
	return fmt.Sprintf("interceptor error: %s (stage: %s)", e.message, e.stage)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }
func (e *interceptorError) Unwrap() error   { return e.err }

// IsErrorType reports whether err, or any error it wraps, is a transport error of type t.
func IsErrorType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	for err != nil {
		if ce, ok := err.(Error); ok && ce.Type() == t {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsHTTPStatusError reports whether err is an HTTP error with the given status code.
func IsHTTPStatusError(err error, statusCode int) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.statusCode == statusCode
	}
	return false
}

// IsSuccessStatus reports whether statusCode is in the 2xx range.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
