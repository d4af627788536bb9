package activity

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Policy bounds how a retryable activity failure is re-dispatched:
// exponential backoff with jitter up to MaxAttempts. Exhausting the budget
// converts the failure into a non-retryable terminal one.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger

	// OnRetry, when set, observes each re-dispatch (used for metrics).
	OnRetry func(name string, attempt int)
}

// DefaultPolicy matches the pipeline default: 4 attempts, 500ms base,
// capped at 8s per wait.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Execute runs fn, re-dispatching on retryable classifications. The caller's
// inputs are captured in fn and repeated exactly on every attempt. The
// returned error, if any, is always a *Failure with Retryable=false, so the
// orchestrator can treat any error from Execute as terminal.
func (p Policy) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last *Failure
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = Classify(err)
		if !last.Retryable {
			return last
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(name, attempt)
		}
		if p.Logger != nil {
			p.Logger.Warn("retrying activity",
				"activity", name, "attempt", attempt, "kind", string(last.Kind), "error", last.Message)
		}
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return &Failure{
				Kind:      last.Kind,
				Retryable: false,
				Message:   "cancelled while backing off: " + ctx.Err().Error(),
			}
		}
	}
	return &Failure{
		Kind:      KindExhausted,
		Retryable: false,
		Message:   "retry budget exhausted after " + last.Message,
	}
}

func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Up to 25% jitter to spread concurrent re-dispatches.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
