package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by withTimeout when the deadline wins the race.
var ErrTimeout = errors.New("operation timed out")

// withTimeout runs op with a deadline of d. When the deadline passes first,
// op's context is cancelled and whatever op returns later is dropped.
// A panic inside op is returned as an error.
func withTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("panic: %v", p)
			}
			ch <- r
		}()
		r.v, r.err = op(ctx)
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}
