package retry

import (
	"context"
	"fmt"
)

// Do runs fn up to attempts times. Only errors for which retryable returns true
// trigger another attempt; anything else is returned immediately.
func Do(ctx context.Context, attempts int, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
