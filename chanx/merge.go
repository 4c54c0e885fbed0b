package chanx

import (
	"context"
	"sync"

	"github.com/baxromumarov/concurrent"
)

// Merge forwards every value from srcs into dst (fan-in) and drains dst
// once all sources are drained and empty. Values of one source keep their
// order; the interleaving between sources is non-deterministic.
//
// The returned channel is closed when every forwarding goroutine has
// exited. On cancellation dst is left open.
//
// If dst is drained by someone else or ctx is canceled while a value is
// being forwarded, that value has already left its source and is lost;
// each source loses at most one value this way. The rest stay queued in
// their sources.
func Merge[T any](ctx context.Context, dst *concurrent.Channel[T], srcs ...*concurrent.Channel[T]) <-chan struct{} {
	done := make(chan struct{})

	var wg sync.WaitGroup
	for _, src := range srcs {
		wg.Go(func() {
			for {
				v, err := src.RecvContext(ctx)
				if err != nil {
					return
				}
				if err := dst.SendContext(ctx, v); err != nil {
					return
				}
			}
		})
	}

	go func() {
		wg.Wait()
		if ctx.Err() == nil {
			dst.Drain()
		}
		close(done)
	}()

	return done
}
