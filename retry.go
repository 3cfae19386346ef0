package guardowl

import (
	"context"
	"log/slog"
)

// withRetries runs fn up to attempts times, returning the first success.
// The last error is returned after exhaustion. Context cancellation stops
// further attempts immediately.
func withRetries[T any](ctx context.Context, attempts int, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < attempts {
			logger.Warn("retrying after failure",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.String("error", err.Error()),
			)
		}
	}

	return zero, lastErr
}
