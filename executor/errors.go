package executor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/calcsite/calculator-sdk-go/httpclient"
)

// Sentinel errors matched by ClientError through errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrTransport      = errors.New("transport failure")
	ErrInvalidRequest = errors.New("invalid request")
)

// ClientError is the single terminal error of a logical call. It describes the
// last attempt only; earlier failures are dropped.
type ClientError struct {
	// Message is the upstream error text, the reason phrase or a local description.
	Message string
	// StatusCode is 0 when no response was received.
	StatusCode int
	// UpstreamMessage is the "error" field of the response body, if any.
	UpstreamMessage string
	// Attempts is the number of HTTP attempts made for the call.
	Attempts int

	cause     error
	transport bool
	invalid   bool
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("calculator api error %d: %s", e.StatusCode, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("calculator api: %s: %v", e.Message, e.cause)
	}
	return "calculator api: " + e.Message
}

// Unwrap returns the underlying transport, decode or context error.
func (e *ClientError) Unwrap() error { return e.cause }

// Is matches the package sentinels by status code or failure kind.
func (e *ClientError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrTransport:
		return e.transport
	case ErrInvalidRequest:
		return e.invalid
	}
	return false
}

// Timeout reports whether the last attempt failed on a deadline.
func (e *ClientError) Timeout() bool {
	return httpclient.IsErrorType(e.cause, httpclient.TimeoutError)
}

// NewInvalidRequestError reports a request that could not be built. No attempt is made.
func NewInvalidRequestError(message string, cause error) *ClientError {
	return &ClientError{Message: message, cause: cause, invalid: true}
}

// NewAbortError reports a call abandoned by its caller before any result arrived.
func NewAbortError(cause error) *ClientError {
	return &ClientError{Message: "request aborted", cause: cause}
}

func newTransportError(cause error) *ClientError {
	return &ClientError{Message: "request failed", cause: cause, transport: true}
}

// newStatusError builds the error for a non-2xx response. The message comes from
// the body's "error" field and falls back to the reason phrase.
func newStatusError(resp *httpclient.Response) *ClientError {
	upstream := upstreamMessage(resp)
	message := upstream
	if message == "" {
		message = resp.Reason()
	}
	if message == "" {
		message = "unexpected status"
	}
	return &ClientError{
		Message:         message,
		StatusCode:      resp.StatusCode,
		UpstreamMessage: upstream,
		cause:           httpclient.NewHTTPError(message, resp.StatusCode, resp.Body),
	}
}

func upstreamMessage(resp *httpclient.Response) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := resp.JSON(&payload); err != nil {
		return ""
	}
	switch v := payload.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return fmt.Sprint(payload.Error)
}
