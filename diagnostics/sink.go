// Package diagnostics delivers the executor's debug events (request,
// response, retry, cache hit) to a pluggable sink.
package diagnostics

import (
	"slices"
	"sync"

	"github.com/calcsite/calculator-sdk-go/logger"
)

// Event names a diagnostic event.
type Event string

const (
	EventRequest  Event = "request"
	EventResponse Event = "response"
	EventRetry    Event = "retry"
	EventCacheHit Event = "cache_hit"
)

// Fields carries the event payload.
type Fields map[string]any

// Sink receives diagnostic events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(event Event, fields Fields)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event Event, fields Fields)

// Emit calls f.
func (f SinkFunc) Emit(event Event, fields Fields) { f(event, fields) }

type nopSink struct{}

func (nopSink) Emit(Event, Fields) {}

// Nop returns a sink that discards every event.
func Nop() Sink { return nopSink{} }

type loggerSink struct {
	log logger.Logger
}

// NewLoggerSink returns a sink writing each event as a debug log entry.
func NewLoggerSink(log logger.Logger) Sink {
	if log == nil {
		log = logger.Nop()
	}
	return &loggerSink{log: log}
}

func (s *loggerSink) Emit(event Event, fields Fields) {
	ev := s.log.Debug().Str("event", string(event))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		ev = ev.Interface(k, fields[k])
	}

	ev.Msgf("calculator api %s", event)
}

// Record is one captured event.
type Record struct {
	Event  Event
	Fields Fields
}

// Recorder keeps every event in memory. It is meant for tests.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit stores the event.
func (r *Recorder) Emit(event Event, fields Fields) {
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Event: event, Fields: copied})
}

// Records returns a snapshot of the captured events.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Events returns the captured event names in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Event
	}
	return out
}

// Filter returns the captured events named event.
func (r *Recorder) Filter(event Event) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Event == event {
			out = append(out, rec)
		}
	}
	return out
}

// Reset discards every captured event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
