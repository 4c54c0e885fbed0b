package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by [Pool.Submit] when the pool has been closed.
var ErrPoolClosed = errors.New("concurrent: pool is closed")

// Pool runs a fixed number of workers that all receive from one
// [Channel] and hand each element to the same function.
type Pool[T any] struct {
	src    *Channel[T]
	fn     func(context.Context, T) error
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	logger *zap.Logger

	errMu sync.Mutex
	errs  []error

	// Observability counters.
	completed atomic.Int64
	errored   atomic.Int64
	inFlight  atomic.Int64
	workers   int
}

// PoolStats provides a point-in-time snapshot of pool activity.
type PoolStats struct {
	Completed  int64 // elements processed (success + error)
	Errored    int64 // elements whose function returned non-nil error
	InFlight   int64 // elements currently being processed
	QueueDepth int   // elements waiting in the source channel
	Workers    int   // worker count (fixed at creation)
}

// PoolOption configures a [Pool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	logger          *zap.Logger
	onMetrics       func(PoolStats)
	metricsInterval time.Duration
}

// WithPoolLogger sets the logger for worker failures.
func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(c *poolConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPoolMetrics registers a periodic pool metrics callback that fires
// every interval. The callback receives a snapshot of current pool counters.
//
// Panics if interval <= 0 or fn is nil.
func WithPoolMetrics(interval time.Duration, fn func(PoolStats)) PoolOption {
	if interval <= 0 {
		panic("concurrent: WithPoolMetrics requires interval > 0")
	}
	if fn == nil {
		panic("concurrent: WithPoolMetrics requires non-nil callback")
	}
	return func(c *poolConfig) {
		c.onMetrics = fn
		c.metricsInterval = interval
	}
}

// NewPool starts n workers receiving from src. Each received element is
// passed to fn. Workers stop once src is drained and empty, or when ctx is
// cancelled.
// Panics if n <= 0 or src or fn is nil.
func NewPool[T any](
	ctx context.Context,
	src *Channel[T],
	n int,
	fn func(context.Context, T) error,
	opts ...PoolOption,
) *Pool[T] {
	if n <= 0 {
		panic("concurrent: NewPool requires n > 0")
	}
	if src == nil || fn == nil {
		panic("concurrent: NewPool requires a source channel and a function")
	}

	cfg := poolConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		src:     src,
		fn:      fn,
		ctx:     ctx,
		cancel:  cancel,
		logger:  cfg.logger,
		workers: n,
	}

	p.wg.Add(n)
	for range n {
		go p.worker()
	}

	if cfg.onMetrics != nil {
		go func() {
			ticker := time.NewTicker(cfg.metricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if p.closed.Load() {
						return
					}
					cfg.onMetrics(p.Stats())
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for p.ctx.Err() == nil {
		v, err := p.src.RecvContext(p.ctx)
		if err != nil {
			return
		}
		p.run(v)
	}
}

func (p *Pool[T]) run(v T) {
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
	}()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = newPanicError(r)
			}
		}()
		err = p.fn(p.ctx, v)
	}()
	if err != nil {
		p.errored.Add(1)
		p.logger.Warn("pool task failed", zap.Error(err))
		p.errMu.Lock()
		p.errs = append(p.errs, err)
		p.errMu.Unlock()
	}
}

// Submit sends v into the source channel, blocking while it is full.
// Returns [ErrPoolClosed] once the pool or its source is closed, or the
// error of ctx.
func (p *Pool[T]) Submit(ctx context.Context, v T) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := p.src.SendContext(ctx, v); err != nil {
		if errors.Is(err, ErrDrained) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// Stats returns a point-in-time snapshot of pool activity.
// Safe to call concurrently.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Completed:  p.completed.Load(),
		Errored:    p.errored.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: p.src.Len(),
		Workers:    p.workers,
	}
}

// Close drains the source channel, waits for the workers to process what
// is left in it, and returns the joined errors from all failed elements.
// Safe to call multiple times; subsequent calls return the same result.
func (p *Pool[T]) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.src.Drain()
	}
	p.wg.Wait()
	p.cancel()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}

// Stop cancels the workers without waiting for queued elements, then
// behaves like [Pool.Close].
func (p *Pool[T]) Stop() error {
	p.cancel()
	return p.Close()
}
