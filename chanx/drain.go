package chanx

import (
	"context"
	"errors"

	"github.com/baxromumarov/concurrent"
)

// Discard receives and drops values from src until it is drained and
// empty, and returns how many were dropped. Use it to unblock producers
// of a channel nobody reads anymore. On cancellation it returns the count
// so far and the context error.
func Discard[T any](ctx context.Context, src *concurrent.Channel[T]) (int, error) {
	n := 0
	for {
		if _, err := src.RecvContext(ctx); err != nil {
			if errors.Is(err, concurrent.ErrDrained) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}
