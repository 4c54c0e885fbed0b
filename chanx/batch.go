package chanx

import (
	"context"
	"errors"

	"github.com/baxromumarov/concurrent"
)

// SendBatch sends each value in values to dst, stopping at the first
// failure. It returns how many values were sent together with nil, the
// context error, or [concurrent.ErrDrained].
func SendBatch[T any](ctx context.Context, dst *concurrent.Channel[T], values []T) (int, error) {
	for i, v := range values {
		if err := dst.SendContext(ctx, v); err != nil {
			return i, err
		}
	}
	return len(values), nil
}

// RecvBatch receives up to n values from src. If src is drained before n
// values arrive, it returns the values received so far with a nil error.
// If ctx is canceled it returns the values so far and the context error.
//
// RecvBatch panics if n is not positive.
func RecvBatch[T any](ctx context.Context, src *concurrent.Channel[T], n int) ([]T, error) {
	if n <= 0 {
		panic("chanx: RecvBatch requires n > 0")
	}
	result := make([]T, 0, n)
	for range n {
		v, err := src.RecvContext(ctx)
		if errors.Is(err, concurrent.ErrDrained) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result = append(result, v)
	}
	return result, nil
}
