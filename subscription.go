package concurrent

import (
	"runtime"
	"sync/atomic"
	"weak"
)

// subscriber is the multiplexer's side of a subscription. It must never
// point back at the Subscription, or the cleanup below could not run.
//
// A channel created by Subscribe is owned by the entry (ch) and lives as
// long as its Subscription. A channel attached with SubscribeChannel is
// only referenced weakly (ref), so it stays subscribed for as long as
// anyone holds the channel itself.
type subscriber[T any] struct {
	ch       *Channel[T]
	ref      weak.Pointer[Channel[T]]
	released atomic.Bool
}

func ownedSubscriber[T any](c *Channel[T]) *subscriber[T] {
	return &subscriber[T]{ch: c}
}

func attachedSubscriber[T any](c *Channel[T]) *subscriber[T] {
	return &subscriber[T]{ref: weak.Make(c)}
}

// target returns the subscribed channel, or nil if it was attached and
// has been collected.
func (e *subscriber[T]) target() *Channel[T] {
	if e.ch != nil {
		return e.ch
	}
	return e.ref.Value()
}

// channel is like target but also returns nil once the subscription is
// released.
func (e *subscriber[T]) channel() *Channel[T] {
	if e.released.Load() {
		return nil
	}
	return e.target()
}

// Subscription is the receiving end handed out by [Multiplexer.Subscribe]
// and [Multiplexer.SubscribeChannel]. It embeds the subscribed [Channel],
// so values are read with Recv, RecvUntil, RecvAll and friends.
//
// For Subscribe, the multiplexer keeps delivering for as long as the
// Subscription is held: calling Close, or dropping every reference to the
// Subscription, releases it. For SubscribeChannel, liveness follows the
// attached channel instead, and the Subscription may be discarded; Close
// still releases it explicitly. Either way the multiplexer forgets a
// released subscription during its next Send or SendAll, not earlier.
type Subscription[T any] struct {
	*Channel[T]
	entry *subscriber[T]
}

func newSubscription[T any](e *subscriber[T], c *Channel[T]) *Subscription[T] {
	s := &Subscription[T]{
		Channel: c,
		entry:   e,
	}
	if e.ch != nil {
		runtime.AddCleanup(s, func(e *subscriber[T]) {
			e.released.Store(true)
		}, e)
	}
	return s
}

// Close releases the subscription. The channel is left as is, so values
// already queued can still be received. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.entry.released.Store(true)
}

// Released reports whether Close has been called.
func (s *Subscription[T]) Released() bool {
	return s.entry.released.Load()
}
