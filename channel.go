package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/deque"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// ErrDrained is returned by the context-aware operations once the channel
// has been drained: no further element can be sent, or none is left to
// receive.
var ErrDrained = errors.New("concurrent: channel drained")

type outcome int

const (
	delivered outcome = iota
	closed
	timedOut
	canceled
)

// Channel is a goroutine-safe FIFO queue with blocking, timed and
// non-blocking send and receive.
//
// A Channel is either unbounded or bounded by a capacity. Sending into a
// full bounded channel blocks until a receiver frees a slot, the deadline
// passes or the channel is drained. Receiving from an empty channel blocks
// until an element arrives, the deadline passes or the channel is drained.
//
// Drain closes the channel for sending. Elements already queued stay
// receivable; once they are gone every receive reports end-of-stream.
//
// Any number of goroutines may send and receive concurrently. Elements are
// received in the order they were enqueued.
type Channel[T any] struct {
	mu       sync.Mutex
	queue    *deque.Deque
	capacity int // 0 means unbounded

	open    atomic.Bool
	drained chan struct{} // closed by Drain

	// One-slot wakeup tokens. A token left behind without a waiter only
	// costs the next waiter one extra check of the queue.
	popable  chan struct{}
	pushable chan struct{}

	onEnqueue hook

	clock  clock.Clock
	logger *zap.Logger

	sent     atomic.Int64
	received atomic.Int64
	rejected atomic.Int64
}

// NewChannel creates an open channel. Without [WithCapacity] the channel
// is unbounded.
func NewChannel[T any](opts ...ChannelOption) *Channel[T] {
	cfg := defaultChannelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if cfg.name != "" {
		logger = logger.With(zap.String("channel", cfg.name))
	}

	c := &Channel[T]{
		queue:    deque.New(),
		capacity: cfg.capacity,
		drained:  make(chan struct{}),
		popable:  make(chan struct{}, 1),
		pushable: make(chan struct{}, 1),
		clock:    cfg.clock,
		logger:   logger,
	}
	c.open.Store(true)
	return c
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Send enqueues v, blocking while the channel is full. It returns false
// if the channel is or becomes drained before v could be enqueued.
func (c *Channel[T]) Send(v T) bool {
	return c.send(v, time.Time{}, nil) == delivered
}

// SendUntil is like [Channel.Send] but gives up once deadline has passed.
// A deadline that has already passed makes a single attempt.
func (c *Channel[T]) SendUntil(v T, deadline time.Time) bool {
	if deadline.IsZero() {
		return c.TrySend(v)
	}
	return c.send(v, deadline, nil) == delivered
}

// TrySend makes one non-blocking attempt to enqueue v.
func (c *Channel[T]) TrySend(v T) bool {
	return c.send(v, c.clock.Now(), nil) == delivered
}

// SendContext is like [Channel.Send] but unblocks when ctx is done.
// It returns [ErrDrained] if the channel is drained, or the context error.
func (c *Channel[T]) SendContext(ctx context.Context, v T) error {
	switch c.send(v, time.Time{}, ctx.Done()) {
	case delivered:
		return nil
	case closed:
		return ErrDrained
	default:
		return ctx.Err()
	}
}

// send enqueues v, waiting for room until deadline passes or done fires.
// A zero deadline waits without limit.
func (c *Channel[T]) send(v T, deadline time.Time, done <-chan struct{}) outcome {
	var (
		timer   clock.Timer
		expired <-chan time.Time
		fired   bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		c.mu.Lock()
		if !c.open.Load() {
			c.mu.Unlock()
			c.rejected.Add(1)
			return closed
		}

		if c.capacity == 0 || c.queue.Len() < c.capacity {
			c.queue.PushBack(v)
			c.sent.Add(1)
			notify(c.popable)
			if c.capacity > 0 && c.queue.Len() < c.capacity {
				// Room is left: let the next blocked sender in.
				notify(c.pushable)
			}
			c.mu.Unlock()

			c.onEnqueue.call()
			return delivered
		}
		c.mu.Unlock()

		if !deadline.IsZero() {
			now := c.clock.Now()
			if fired || !now.Before(deadline) {
				c.rejected.Add(1)
				return timedOut
			}
			if timer == nil {
				timer = c.clock.NewTimer(deadline.Sub(now))
				expired = timer.Chan()
			}
		}

		select {
		case <-c.pushable:
		case <-c.drained:
		case <-expired:
			fired = true
		case <-done:
			c.rejected.Add(1)
			return canceled
		}
	}
}

// Recv dequeues the front element, blocking while the channel is empty
// and open. It returns false once the channel is drained and empty.
func (c *Channel[T]) Recv() (T, bool) {
	v, res := c.recv(time.Time{}, nil, false)
	return v, res == delivered
}

// RecvUntil is like [Channel.Recv] but gives up once deadline has passed.
func (c *Channel[T]) RecvUntil(deadline time.Time) (T, bool) {
	if deadline.IsZero() {
		deadline = c.clock.Now()
	}
	v, res := c.recv(deadline, nil, false)
	return v, res == delivered
}

// TryRecv makes one non-blocking attempt to dequeue an element.
func (c *Channel[T]) TryRecv() (T, bool) {
	v, res := c.recv(c.clock.Now(), nil, false)
	return v, res == delivered
}

// RecvContext is like [Channel.Recv] but unblocks when ctx is done.
// It returns [ErrDrained] at end-of-stream, or the context error.
func (c *Channel[T]) RecvContext(ctx context.Context) (T, error) {
	v, res := c.recv(time.Time{}, ctx.Done(), false)
	switch res {
	case delivered:
		return v, nil
	case closed:
		return v, ErrDrained
	default:
		return v, ctx.Err()
	}
}

// Wait blocks until an element is available or the channel is drained,
// without consuming anything. It returns false at end-of-stream.
func (c *Channel[T]) Wait() bool {
	_, res := c.recv(time.Time{}, nil, true)
	return res == delivered
}

// WaitUntil is like [Channel.Wait] but gives up once deadline has passed.
// It reports whether an element is available.
func (c *Channel[T]) WaitUntil(deadline time.Time) bool {
	if deadline.IsZero() {
		deadline = c.clock.Now()
	}
	_, res := c.recv(deadline, nil, true)
	return res == delivered
}

// recv dequeues the front element, or with peek only waits for one to be
// available.
func (c *Channel[T]) recv(deadline time.Time, done <-chan struct{}, peek bool) (T, outcome) {
	var (
		zero    T
		timer   clock.Timer
		expired <-chan time.Time
		fired   bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		c.mu.Lock()
		if c.queue.Len() > 0 {
			if peek {
				// Hand the wakeup on to a consuming receiver.
				notify(c.popable)
				c.mu.Unlock()
				return zero, delivered
			}

			item, _ := c.queue.PopFront()
			c.received.Add(1)
			notify(c.pushable)
			if c.queue.Len() > 0 {
				notify(c.popable)
			}
			c.mu.Unlock()

			// A nil interface value comes back as the zero T.
			v, _ := item.(T)
			return v, delivered
		}
		if !c.open.Load() {
			c.mu.Unlock()
			return zero, closed
		}
		c.mu.Unlock()

		if !deadline.IsZero() {
			now := c.clock.Now()
			if fired || !now.Before(deadline) {
				return zero, timedOut
			}
			if timer == nil {
				timer = c.clock.NewTimer(deadline.Sub(now))
				expired = timer.Chan()
			}
		}

		select {
		case <-c.popable:
		case <-c.drained:
		case <-expired:
			fired = true
		case <-done:
			return zero, canceled
		}
	}
}

// SendAll enqueues items in one step and wakes one receiver. It returns
// false, enqueuing nothing, if the channel is drained.
//
// SendAll panics with a [*ContractError] if the channel is bounded or has
// an [Channel.OnEnqueue] hook.
func (c *Channel[T]) SendAll(items []T) bool {
	c.mu.Lock()
	if c.capacity > 0 {
		c.mu.Unlock()
		violate(c.logger, codes.Unimplemented, "SendAll", "bulk send into a bounded channel is not supported")
	}
	if c.onEnqueue.isSet() {
		c.mu.Unlock()
		violate(c.logger, codes.Unimplemented, "SendAll", "bulk send into a channel with an enqueue hook is not supported")
	}
	defer c.mu.Unlock()

	if !c.open.Load() {
		c.rejected.Add(int64(len(items)))
		return false
	}
	if len(items) == 0 {
		return true
	}

	for _, v := range items {
		c.queue.PushBack(v)
	}
	c.sent.Add(int64(len(items)))
	notify(c.popable)
	return true
}

// RecvAll removes and returns every queued element in order, without
// blocking. It returns nil if the channel is empty.
func (c *Channel[T]) RecvAll() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.queue.Len()
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for {
		item, ok := c.queue.PopFront()
		if !ok {
			break
		}
		v, _ := item.(T)
		out = append(out, v)
	}
	c.received.Add(int64(len(out)))

	// Each woken sender passes the token on while room is left.
	notify(c.pushable)
	return out
}

// Drain closes the channel for sending and wakes every blocked sender and
// receiver. Queued elements remain receivable. Drain is idempotent.
func (c *Channel[T]) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open.Load() {
		return
	}
	c.open.Store(false)
	close(c.drained)

	c.logger.Debug("channel drained", zap.Int("pending", c.queue.Len()))
}

// Drained returns a channel that is closed when [Channel.Drain] is called.
func (c *Channel[T]) Drained() <-chan struct{} {
	return c.drained
}

// IsOpen reports whether the channel still accepts elements. A closed
// channel may still hold elements.
func (c *Channel[T]) IsOpen() bool {
	return c.open.Load()
}

// IsDrained reports whether the channel is closed and empty: no element
// will ever be received from it again.
func (c *Channel[T]) IsDrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.open.Load() && c.queue.Len() == 0
}

// Len returns the number of queued elements.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.queue.Len()
}

// Empty reports whether no element is queued.
func (c *Channel[T]) Empty() bool {
	return c.Len() == 0
}

// Capacity returns the capacity limit and whether one is set.
func (c *Channel[T]) Capacity() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.capacity, c.capacity > 0
}

// SetCapacity replaces the capacity limit. Raising it wakes a blocked
// sender. Lowering it below the current length keeps the queued elements;
// sends block until receivers catch up.
//
// It panics with a [*ContractError] if n is not positive.
func (c *Channel[T]) SetCapacity(n int) {
	if n <= 0 {
		violate(c.logger, codes.InvalidArgument, "SetCapacity", "capacity must be positive")
	}
	c.resize(n)
}

// ClearCapacity removes the capacity limit and wakes a blocked sender.
func (c *Channel[T]) ClearCapacity() {
	c.resize(0)
}

func (c *Channel[T]) resize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.capacity
	if n == old {
		return
	}
	c.capacity = n

	if n == 0 || (old > 0 && n > old) {
		notify(c.pushable)
	}

	c.logger.Debug("channel capacity changed", zap.Int("old", old), zap.Int("new", n))
}

// OnEnqueue registers fn to run after every successful send, in the
// sending goroutine and outside the channel lock. fn must not call back
// into this channel.
//
// OnEnqueue panics with a [*ContractError] if a hook is already set.
func (c *Channel[T]) OnEnqueue(fn func()) {
	c.onEnqueue.set(c.logger, "OnEnqueue", fn)
}

// ChannelStats is a point-in-time snapshot of channel activity.
type ChannelStats struct {
	Len      int   // elements queued
	Capacity int   // capacity limit, 0 if unbounded
	Open     bool  // still accepting sends
	Sent     int64 // elements enqueued
	Received int64 // elements dequeued
	Rejected int64 // sends refused: drained, timed out or cancelled
}

// Stats returns a snapshot of the channel. Safe to call concurrently.
func (c *Channel[T]) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ChannelStats{
		Len:      c.queue.Len(),
		Capacity: c.capacity,
		Open:     c.open.Load(),
		Sent:     c.sent.Load(),
		Received: c.received.Load(),
		Rejected: c.rejected.Load(),
	}
}
