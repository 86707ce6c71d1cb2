// Package tracking records OpenTelemetry metrics and spans for logical API
// calls made through the executor and for each HTTP attempt inside them.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "calculator-sdk/executor"

	metricCallDuration = "calculator.client.call.duration" // Histogram in seconds
	metricAttempts     = "calculator.client.attempts"
	metricRetries      = "calculator.client.retries"

	attrMethod     = "http.request.method"
	attrPath       = "url.path"
	attrStatusCode = "http.response.status_code"
	attrOutcome    = "calculator.outcome"
	attrAttempt    = "calculator.attempt"
	attrAttempts   = "calculator.attempts"
	attrDelay      = "calculator.retry.delay_ms"
)

// Outcome labels
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
	OutcomeCached    = "cached"
	OutcomeError     = "error"
)

var (
	meter         metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	callDuration   metric.Float64Histogram
	attemptCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize executor metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if meter != nil {
		return
	}

	meter = otel.Meter(instrumentationName)

	var err error
	callDuration, err = meter.Float64Histogram(
		metricCallDuration,
		metric.WithDescription("Duration of logical calculator API calls including retries"),
		metric.WithUnit("s"),
	)
	logMetricError(metricCallDuration, err)

	attemptCounter, err = meter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of HTTP attempts made"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)

	retryCounter, err = meter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of retries scheduled after a failed attempt"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)

	metricsInited = true
}

// Call tracks one logical API call.
type Call struct {
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

// StartCall opens a client span for method and path and returns the context carrying it.
func StartCall(ctx context.Context, method, path string) (context.Context, *Call) {
	meterOnce.Do(initMeter)

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
	}
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "calculator "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &Call{span: span, start: time.Now(), attrs: attrs}
}

// Attempt records the outcome of one HTTP attempt. statusCode is 0 when no response arrived.
func (c *Call) Attempt(ctx context.Context, attempt, statusCode int, outcome string) {
	attrs := append(c.baseAttrs(), attribute.String(attrOutcome, outcome))
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, statusCode))
	}
	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	eventAttrs := []attribute.KeyValue{
		attribute.Int(attrAttempt, attempt),
		attribute.String(attrOutcome, outcome),
	}
	if statusCode > 0 {
		eventAttrs = append(eventAttrs, attribute.Int(attrStatusCode, statusCode))
	}
	c.span.AddEvent("attempt", trace.WithAttributes(eventAttrs...))
}

// Retry records a scheduled backoff before the next attempt.
func (c *Call) Retry(ctx context.Context, attempt int, delay time.Duration) {
	if retryCounter != nil {
		retryCounter.Add(ctx, 1, metric.WithAttributes(c.baseAttrs()...))
	}
	c.span.AddEvent("retry", trace.WithAttributes(
		attribute.Int(attrAttempt, attempt),
		attribute.Int64(attrDelay, delay.Milliseconds()),
	))
}

// End closes the call. err is the terminal error, or nil on success.
func (c *Call) End(ctx context.Context, outcome string, statusCode, attempts int, err error) {
	attrs := append(c.baseAttrs(), attribute.String(attrOutcome, outcome))
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, statusCode))
	}
	if callDuration != nil {
		callDuration.Record(ctx, time.Since(c.start).Seconds(), metric.WithAttributes(attrs...))
	}

	c.span.SetAttributes(attribute.Int(attrAttempts, attempts), attribute.String(attrOutcome, outcome))
	if statusCode > 0 {
		c.span.SetAttributes(attribute.Int(attrStatusCode, statusCode))
	}
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	} else {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
}

func (c *Call) baseAttrs() []attribute.KeyValue {
	return append([]attribute.KeyValue(nil), c.attrs...)
}

// IsInitialized reports whether executor metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter = nil
	callDuration = nil
	attemptCounter = nil
	retryCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
