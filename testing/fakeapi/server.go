// Package fakeapi runs an in-process Calculator API for tests and examples.
// Failures can be queued per path to exercise retries, and every request is
// recorded for later assertions.
package fakeapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

const serviceName = "calculator-fakeapi"

// Failure is a scripted response served instead of the real handler.
type Failure struct {
	// Status is the response code. Zero holds the request until the client gives up.
	Status int
	// Body is sent as application/json.
	Body string
	// Delay holds the request before responding. It ends early when the client goes away.
	Delay time.Duration
}

// Hang returns a failure that never answers, simulating a timeout.
func Hang() Failure {
	return Failure{}
}

// RecordedRequest is a request as received by the server.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Server is a fake Calculator API listening on a local port.
type Server struct {
	apiKey string
	echo   *echo.Echo
	srv    *httptest.Server

	mu          sync.Mutex
	calculators []Calculator
	failures    map[string][]Failure
	requests    []RecordedRequest
}

// Option configures a Server.
type Option func(*Server)

// WithCalculators replaces the default catalog.
func WithCalculators(calcs []Calculator) Option {
	return func(s *Server) {
		s.calculators = append([]Calculator(nil), calcs...)
	}
}

// New starts a server that accepts apiKey as bearer token.
func New(apiKey string, opts ...Option) *Server {
	s := &Server{
		apiKey:      apiKey,
		calculators: DefaultCalculators(),
		failures:    make(map[string][]Failure),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware(serviceName))
	e.Use(s.record)
	e.Use(s.authenticate)
	e.Use(s.injectFailures)

	e.GET("/calculators", s.listCalculators)
	e.POST("/calculate", s.calculate)

	s.echo = e
	s.srv = httptest.NewServer(e)
	return s
}

// URL returns the base URL to configure clients with.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// Handler exposes the echo instance for in-process use.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// FailNext queues failures for path. They are served in order before the real handler runs again.
func (s *Server) FailNext(path string, failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], failures...)
}

// Requests returns a snapshot of every request received.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Count returns how many requests hit method and path.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Reset clears recorded requests and pending failures.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.failures = make(map[string][]Failure)
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:   req.Method,
			Path:     req.URL.Path,
			RawQuery: req.URL.RawQuery,
			Header:   req.Header.Clone(),
			Body:     body,
		})
		s.mu.Unlock()

		return next(c)
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || token != s.apiKey {
			return c.JSON(http.StatusUnauthorized, errorBody("invalid api key"))
		}
		return next(c)
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		f, ok := s.popFailure(c.Request().URL.Path)
		if !ok {
			return next(c)
		}

		if f.Status == 0 {
			<-c.Request().Context().Done()
			return nil
		}
		if f.Delay > 0 {
			timer := time.NewTimer(f.Delay)
			defer timer.Stop()
			select {
			case <-c.Request().Context().Done():
				return nil
			case <-timer.C:
			}
		}
		return c.Blob(f.Status, echo.MIMEApplicationJSON, []byte(f.Body))
	}
}

func (s *Server) popFailure(path string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.failures[path]
	if len(queue) == 0 {
		return Failure{}, false
	}
	s.failures[path] = queue[1:]
	return queue[0], true
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
