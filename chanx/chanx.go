package chanx

import (
	"context"

	"github.com/baxromumarov/concurrent"
)

// Feed sends every value received from in into dst, in order, and drains
// dst once in is closed. It returns nil when in was exhausted, the
// context error if ctx is canceled, or [concurrent.ErrDrained] if dst was
// drained by someone else first.
func Feed[T any](ctx context.Context, in <-chan T, dst *concurrent.Channel[T]) error {
	for {
		select {
		case v, ok := <-in:
			if !ok {
				dst.Drain()
				return nil
			}
			if err := dst.SendContext(ctx, v); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stream exposes src as a native receive channel. The returned channel is
// closed once src is drained and empty, or when ctx is canceled.
func Stream[T any](ctx context.Context, src *concurrent.Channel[T]) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, err := src.RecvContext(ctx)
			if err != nil {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Subscribe registers a new subscription on m and exposes it as a native
// receive channel. The subscription is closed, and so released from m,
// once it is drained and empty or ctx is canceled; the returned channel is
// closed at the same time.
func Subscribe[T any](ctx context.Context, m *concurrent.Multiplexer[T]) <-chan T {
	sub := m.Subscribe()
	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			v, err := sub.RecvContext(ctx)
			if err != nil {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
