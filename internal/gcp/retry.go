package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Upload retry policy.
const (
	UploadAttempts       = 4
	UploadInitialBackoff = 1 * time.Second
	UploadAttemptTimeout = 50 * time.Second
)

// Retry runs fn up to attempts times, doubling the wait after each failure.
// Each attempt gets its own timeout when attemptTimeout is positive.
func Retry(ctx context.Context, name string, attempts int, backoff, attemptTimeout time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := func() error {
			attemptCtx := ctx
			if attemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, attemptTimeout)
				defer cancel()
			}
			return fn(attemptCtx)
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		if i == attempts-1 {
			break
		}
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", name,
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", name, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", name, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", name, lastErr)
}
