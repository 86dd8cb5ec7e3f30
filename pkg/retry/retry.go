// Package retry implements the generic attempt-and-backoff loop the
// crawl engine uses for HTTP fetch retries.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/fledgehq/fledge/pkg/classify"
)

// Retryable is implemented by errors that know whether retrying could
// help. Errors that don't implement it are treated as non-retryable.
type Retryable interface {
	IsRetryable() bool
}

// Param controls one retry loop.
type Param struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delays[i] is the wait before attempt i+2 (Delays[0] before the
	// second attempt, Delays[1] before the third, ...). If fewer delays
	// are given than attempts need, the last delay repeats.
	Delays []time.Duration
	// RetryAfter, if non-nil, overrides the computed delay for the next
	// attempt (used to honor a response's Retry-After header).
	RetryAfter func(attempt int) (time.Duration, bool)
}

// Error reports that all attempts were exhausted.
type Error struct {
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry: exhausted %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

func (e *Error) Severity() classify.Severity { return classify.SeverityRecoverable }

// Do runs fn until it succeeds, returns a non-retryable error, or attempts
// are exhausted. It sleeps between attempts according to Param, honoring
// ctx cancellation during the sleep.
func Do[T any](ctx context.Context, p Param, fn func(attempt int) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, attempt, err
		}
		if attempt == attempts {
			break
		}

		delay := p.delayFor(attempt)
		if p.RetryAfter != nil {
			if override, ok := p.RetryAfter(attempt); ok {
				delay = override
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, attempt, ctx.Err()
		}
	}

	return zero, attempts, &Error{Attempts: attempts, Last: lastErr}
}

func (p Param) delayFor(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Delays) {
		idx = len(p.Delays) - 1
	}
	return p.Delays[idx]
}

func isRetryable(err error) bool {
	if r, ok := err.(Retryable); ok {
		return r.IsRetryable()
	}
	return false
}
