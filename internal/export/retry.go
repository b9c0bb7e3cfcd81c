package export

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/spacetraveling/internal/cms"
)

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// withRetry calls fn until it succeeds, fails with a non-retryable error, or
// MaxRetries attempts have been made.
func withRetry[T any](ctx context.Context, log *slog.Logger, backoff func(int) time.Duration, what string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	for attempt := range MaxRetries {
		out, lastErr = fn(ctx)
		if lastErr == nil || !cms.IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable fetch error", "what", what, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	return out, lastErr
}
