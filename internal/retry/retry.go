// Package retry provides a bounded constant-delay retry wrapper for
// idempotent provider calls. It must never be applied to calls with billable
// side effects; submissions are made exactly once.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 3 * time.Second
)

// Operation is a fallible call producing a value of type T.
type Operation[T any] func(ctx context.Context) (T, error)

// Do invokes op up to attempts times, sleeping delay between failures. The
// delay is constant. On exhaustion the last failure is returned verbatim,
// annotated with the attempt count. Waiting respects ctx cancellation.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, op Operation[T]) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
