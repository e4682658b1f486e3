// Package worker provides small helpers shared by background jobs: bounded waits,
// timeouts, panic recovery and detached goroutines.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
// The function receives a context that will be canceled after timeout.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

// Capture runs fn and converts a panic into an error.
func Capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return fn()
}

// Detach runs fn in a goroutine with a context that survives cancellation of
// parent but is bounded by timeout. Panics are recovered and logged.
func Detach(parent context.Context, timeout time.Duration, logger *zerolog.Logger, operation string, fn func(ctx context.Context) error) {
	ctx := context.WithoutCancel(parent)

	go func() {
		defer RecoverPanic(logger, operation)

		if err := RunWithTimeout(ctx, timeout, fn); err != nil {
			logger.Warn().Err(err).Str(logFieldOperation, operation).Msg("background task failed")
		}
	}()
}
