package oracle

import (
	"context"
	"fmt"
)

// runWithContext runs fn in its own goroutine and returns early with
// ErrTimeout once ctx is done. A single simplex call cannot be interrupted,
// so an abandoned fn runs until that call returns.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: engine panic: %v", ErrNumerical, rec)}
			}
		}()
		value, err := fn()
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
