// Package activity defines the failure/retry contract shared by every
// external-call wrapper in the pipeline. An activity never returns a raw
// error across the boundary: it returns a classified Failure, and the
// orchestrator's retry policy acts on the classification alone.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind identifies why an activity failed.
type FailureKind string

const (
	KindTransient   FailureKind = "TRANSIENT"
	KindRateLimited FailureKind = "RATE_LIMITED"
	KindClientInput FailureKind = "CLIENT_INPUT"
	KindIntegrity   FailureKind = "INTEGRITY"
	KindInjected    FailureKind = "INJECTED_TEST"
	KindExhausted   FailureKind = "RETRY_EXHAUSTED"
)

// Failure is the classified outcome of a failed activity call.
// Retryable is the single signal the retry policy consults.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Retryable bool        `json:"retryable"`
	Message   string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("activity failure (%s, retryable=%t): %s", f.Kind, f.Retryable, f.Message)
}

// Transient builds a retryable failure for network/timeout conditions.
func Transient(msg string) *Failure {
	return &Failure{Kind: KindTransient, Retryable: true, Message: msg}
}

// RateLimited builds a retryable failure for upstream throttling.
func RateLimited(msg string) *Failure {
	return &Failure{Kind: KindRateLimited, Retryable: true, Message: msg}
}

// ClientInput builds a non-retryable failure for malformed or unsupported input.
func ClientInput(msg string) *Failure {
	return &Failure{Kind: KindClientInput, Retryable: false, Message: msg}
}

// Integrity builds a non-retryable failure for corrupt or undecodable artifacts.
func Integrity(msg string) *Failure {
	return &Failure{Kind: KindIntegrity, Retryable: false, Message: msg}
}

// Injected builds the non-retryable failure reported when the fault-injection
// flag is consumed.
func Injected() *Failure {
	return &Failure{Kind: KindInjected, Retryable: false, Message: "injected test failure"}
}

// AsFailure extracts the Failure classification from an error chain, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable classification.
// Unclassified errors are not retryable; classification happens exactly
// once at the activity boundary.
func IsRetryable(err error) bool {
	if f, ok := AsFailure(err); ok {
		return f.Retryable
	}
	return false
}

// Classify turns a transport-level error into a Failure. Already-classified
// errors pass through untouched.
func Classify(err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("deadline exceeded: " + err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient("network error: " + err.Error())
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Integrity("undecodable payload: " + err.Error())
	}
	// Unknown transport errors (connection resets, DNS, broken pipes) are
	// treated as transient; the attempt bound keeps them from looping forever.
	return Transient(err.Error())
}

// ClassifyStatus maps an upstream HTTP-equivalent status code to a Failure.
// Returns nil for success statuses.
func ClassifyStatus(status int, msg string) *Failure {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return RateLimited(fmt.Sprintf("upstream 429: %s", msg))
	case status >= 400 && status < 500:
		return ClientInput(fmt.Sprintf("upstream %d: %s", status, msg))
	default:
		return Transient(fmt.Sprintf("upstream %d: %s", status, msg))
	}
}
