package shared

import (
	"context"
	"fmt"
)

// Retry calls fn until it succeeds, returns an error retriable rejects, or maxAttempts calls have
// been made. The attempt number starts at 1. The last error is returned when attempts run out.
func Retry[T any](ctx context.Context, maxAttempts int, retriable func(error) bool, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !retriable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
