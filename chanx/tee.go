package chanx

import (
	"context"
	"errors"

	"github.com/baxromumarov/concurrent"
)

// Pump broadcasts every value received from src through m until src is
// drained and empty, then drains m. It blocks until then and returns nil,
// or the context error if ctx is canceled first, leaving m open.
func Pump[T any](ctx context.Context, src *concurrent.Channel[T], m *concurrent.Multiplexer[T]) error {
	for {
		v, err := src.RecvContext(ctx)
		if errors.Is(err, concurrent.ErrDrained) {
			m.Drain()
			return nil
		}
		if err != nil {
			return err
		}
		m.Send(v)
	}
}
