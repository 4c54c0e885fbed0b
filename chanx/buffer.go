package chanx

import (
	"context"
	"time"

	"github.com/baxromumarov/concurrent"
)

// Buffer collects values from src into slices of up to size elements.
// A batch is emitted when it reaches size elements or when timeout
// elapses since the first item in the current batch, whichever comes
// first. A partial batch is flushed when src is drained. The output
// channel is closed when src is drained and empty or ctx is canceled; a
// batch still being collected on cancellation is discarded.
//
// Buffer panics if size is not positive or timeout is not positive.
func Buffer[T any](
	ctx context.Context,
	src *concurrent.Channel[T],
	size int,
	timeout time.Duration,
) <-chan []T {
	if size <= 0 {
		panic("chanx: Buffer requires size > 0")
	}
	if timeout <= 0 {
		panic("chanx: Buffer requires timeout > 0")
	}

	out := make(chan []T)

	go func() {
		defer close(out)

		for {
			first, err := src.RecvContext(ctx)
			if err != nil {
				return
			}

			batch := fill(ctx, src, first, size, timeout)
			if ctx.Err() != nil {
				return
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// fill receives until the batch holds size elements, timeout elapses,
// src is drained or ctx is canceled.
func fill[T any](ctx context.Context, src *concurrent.Channel[T], first T, size int, timeout time.Duration) []T {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	batch := make([]T, 0, size)
	batch = append(batch, first)
	for len(batch) < size {
		v, err := src.RecvContext(ctx)
		if err != nil {
			break
		}
		batch = append(batch, v)
	}
	return batch
}
