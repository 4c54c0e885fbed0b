package concurrent

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// Multiplexer broadcasts values to a changing set of subscribed channels.
//
// Every [Multiplexer.Send] delivers the value to each live subscriber, one
// channel at a time, while holding the multiplexer lock. Delivery is not
// transactional: a bounded subscriber that is full blocks the broadcast
// until it has room or is drained.
//
// Subscribers are never removed eagerly. A [Subscription] that was closed
// or dropped by its holder, or an attached channel nobody references
// anymore, is pruned during the next Send or SendAll.
type Multiplexer[T any] struct {
	mu   sync.Mutex
	subs []*subscriber[T]

	open     atomic.Bool
	onChange hook

	channelOpts []ChannelOption
	clone       func(any) any
	logger      *zap.Logger

	broadcasts atomic.Int64
	pruned     atomic.Int64
}

// NewMultiplexer creates an open multiplexer without subscribers.
func NewMultiplexer[T any](opts ...MultiplexerOption) *Multiplexer[T] {
	cfg := defaultMultiplexerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if cfg.name != "" {
		logger = logger.With(zap.String("multiplexer", cfg.name))
	}

	m := &Multiplexer[T]{
		channelOpts: cfg.channels,
		clone:       cfg.clone,
		logger:      logger,
	}
	m.open.Store(true)
	return m
}

// Subscribe creates a channel, adds it to the subscribers and returns it
// wrapped in a [Subscription]. If the multiplexer is already drained the
// channel is drained too, so the subscriber observes end-of-stream.
func (m *Multiplexer[T]) Subscribe() *Subscription[T] {
	c := NewChannel[T](m.channelOpts...)
	e := ownedSubscriber(c)
	m.attach(e, c)
	return newSubscription(e, c)
}

// SubscribeChannel adds an existing channel to the subscribers. The
// channel stays subscribed for as long as the caller keeps a reference to
// it, whether or not the returned [Subscription] is kept. Closing the
// Subscription releases it early.
//
// SubscribeChannel panics with a [*ContractError] if c is nil.
func (m *Multiplexer[T]) SubscribeChannel(c *Channel[T]) *Subscription[T] {
	if c == nil {
		violate(m.logger, codes.Internal, "SubscribeChannel", "channel must not be nil")
	}
	e := attachedSubscriber(c)
	m.attach(e, c)
	return newSubscription(e, c)
}

func (m *Multiplexer[T]) attach(e *subscriber[T], c *Channel[T]) {
	m.mu.Lock()
	m.subs = append(m.subs, e)
	if !m.open.Load() {
		c.Drain()
	}
	n := len(m.subs)
	m.mu.Unlock()

	m.logger.Debug("subscriber added", zap.Int("subscribers", n))
	m.onChange.call()
}

// Send delivers v to every live subscriber and returns how many accepted
// it. All subscribers but the last receive a clone of v if a clone
// function is configured. Released subscriptions are pruned afterwards.
func (m *Multiplexer[T]) Send(v T) int {
	return m.broadcast(func(c *Channel[T], last bool) bool {
		if last {
			return c.Send(v)
		}
		return c.Send(m.copyOf(v))
	})
}

// SendAll delivers items to every live subscriber through
// [Channel.SendAll], cloning like [Multiplexer.Send].
//
// A bounded or hooked subscriber makes SendAll panic with a
// [*ContractError].
func (m *Multiplexer[T]) SendAll(items []T) int {
	return m.broadcast(func(c *Channel[T], last bool) bool {
		if last || m.clone == nil {
			return c.SendAll(items)
		}
		cp := make([]T, len(items))
		for i, v := range items {
			cp[i] = m.copyOf(v)
		}
		return c.SendAll(cp)
	})
}

func (m *Multiplexer[T]) copyOf(v T) T {
	if m.clone == nil {
		return v
	}
	r := m.clone(v)
	if _, bad := r.(cloneMismatch); bad {
		var zero T
		violate(m.logger, codes.InvalidArgument, "Send", fmt.Sprintf("clone function does not accept %T", zero))
	}
	out, _ := r.(T)
	return out
}

func (m *Multiplexer[T]) broadcast(deliver func(c *Channel[T], last bool) bool) int {
	accepted, pruned, remaining := m.deliver(deliver)
	m.broadcasts.Add(1)

	if pruned > 0 {
		m.pruned.Add(int64(pruned))
		m.logger.Debug("subscribers pruned",
			zap.Int("pruned", pruned),
			zap.Int("subscribers", remaining),
		)
		m.onChange.call()
	}
	return accepted
}

// deliver runs one broadcast pass under the lock. Subscriptions released
// or collected before the pass are skipped and removed once the pass
// completes.
func (m *Multiplexer[T]) deliver(fn func(c *Channel[T], last bool) bool) (accepted, pruned, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make([]*subscriber[T], 0, len(m.subs))
	chans := make([]*Channel[T], 0, len(m.subs))
	for _, e := range m.subs {
		c := e.channel()
		if c == nil {
			pruned++
			continue
		}
		live = append(live, e)
		chans = append(chans, c)
	}

	for i, c := range chans {
		if fn(c, i == len(chans)-1) {
			accepted++
		}
	}

	if pruned > 0 {
		clear(m.subs)
		m.subs = live
	}
	return accepted, pruned, len(m.subs)
}

// Drain closes the multiplexer and drains every current subscriber.
// Channels subscribed afterwards start out drained. Drain is idempotent.
func (m *Multiplexer[T]) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasOpen := m.open.Swap(false)
	for _, e := range m.subs {
		if c := e.target(); c != nil {
			c.Drain()
		}
	}

	if wasOpen {
		m.logger.Debug("multiplexer drained", zap.Int("subscribers", len(m.subs)))
	}
}

// IsOpen reports whether the multiplexer has not been drained.
func (m *Multiplexer[T]) IsOpen() bool {
	return m.open.Load()
}

// HasSubscribers reports whether any subscriber is registered, including
// released ones that have not been pruned yet.
func (m *Multiplexer[T]) HasSubscribers() bool {
	return m.Subscribers() > 0
}

// Subscribers returns the number of registered subscribers, including
// released ones that have not been pruned yet.
func (m *Multiplexer[T]) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subs)
}

// OnSubscriptionChange registers fn to run whenever a subscriber is added
// or pruned, in the goroutine making the change and outside the
// multiplexer lock. fn must not call back into this multiplexer.
//
// OnSubscriptionChange panics with a [*ContractError] if a hook is
// already set.
func (m *Multiplexer[T]) OnSubscriptionChange(fn func()) {
	m.onChange.set(m.logger, "OnSubscriptionChange", fn)
}

// MultiplexerStats is a point-in-time snapshot of multiplexer activity.
type MultiplexerStats struct {
	Subscribers int   // registered subscribers, including unpruned released ones
	Open        bool  // not drained
	Broadcasts  int64 // Send and SendAll calls
	Pruned      int64 // subscribers removed after release
}

// Stats returns a snapshot of the multiplexer. Safe to call concurrently.
func (m *Multiplexer[T]) Stats() MultiplexerStats {
	return MultiplexerStats{
		Subscribers: m.Subscribers(),
		Open:        m.open.Load(),
		Broadcasts:  m.broadcasts.Load(),
		Pruned:      m.pruned.Load(),
	}
}
