package executor

import "encoding/json"

// OutcomeKind classifies a single attempt.
type OutcomeKind int

const (
	// OutcomeSuccess ends the call with a parsed body.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryable schedules another attempt while attempts remain.
	OutcomeRetryable
	// OutcomeFatal ends the call at once.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one attempt. Body is set for OutcomeSuccess and Err otherwise.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       json.RawMessage
	Err        *ClientError
}

// Success wraps a parsed body.
func Success(status int, body json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, StatusCode: status, Body: body}
}

// Retryable wraps a failure that may be retried.
func Retryable(err *ClientError) Outcome {
	return Outcome{Kind: OutcomeRetryable, StatusCode: err.StatusCode, Err: err}
}

// Fatal wraps a failure that stops the call.
func Fatal(err *ClientError) Outcome {
	return Outcome{Kind: OutcomeFatal, StatusCode: err.StatusCode, Err: err}
}
