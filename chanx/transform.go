package chanx

import (
	"context"
	"errors"

	"github.com/baxromumarov/concurrent"
)

// Map receives every value from src, applies fn and sends the result to
// dst. Once src is drained and empty, dst is drained and Map returns nil.
// It returns the context error if ctx is canceled, or
// [concurrent.ErrDrained] if dst was drained first.
func Map[T, U any](ctx context.Context, src *concurrent.Channel[T], dst *concurrent.Channel[U], fn func(T) U) error {
	return pipe(ctx, src, dst, func(v T) (U, bool) { return fn(v), true })
}

// Filter passes values from src to dst only if fn returns true. It ends
// the same way as [Map].
func Filter[T any](ctx context.Context, src, dst *concurrent.Channel[T], fn func(T) bool) error {
	return pipe(ctx, src, dst, func(v T) (T, bool) { return v, fn(v) })
}

func pipe[T, U any](ctx context.Context, src *concurrent.Channel[T], dst *concurrent.Channel[U], fn func(T) (U, bool)) error {
	for {
		v, err := src.RecvContext(ctx)
		if errors.Is(err, concurrent.ErrDrained) {
			dst.Drain()
			return nil
		}
		if err != nil {
			return err
		}
		out, keep := fn(v)
		if !keep {
			continue
		}
		if err := dst.SendContext(ctx, out); err != nil {
			return err
		}
	}
}
