package concurrent

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMultiplexerFanOut(t *testing.T) {
	m := NewMultiplexer[int]()
	h1 := m.Subscribe()
	h2 := m.Subscribe()

	assert.Equal(t, 2, m.Send(7))

	v, ok := h1.Recv()
	require.True(t, ok)
	assert.Equal(t, 7, v)
	v, ok = h2.Recv()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestMultiplexerFanOutOrder(t *testing.T) {
	m := NewMultiplexer[int]()
	subs := []*Subscription[int]{m.Subscribe(), m.Subscribe(), m.Subscribe()}

	for i := range 50 {
		m.Send(i)
	}
	m.SendAll([]int{50, 51})

	for _, s := range subs {
		got := s.RecvAll()
		require.Len(t, got, 52)
		for i, v := range got {
			require.Equal(t, i, v)
		}
	}
}

func TestMultiplexerLazyPruning(t *testing.T) {
	m := NewMultiplexer[int]()
	h1 := m.Subscribe()
	h2 := m.Subscribe()
	require.Equal(t, 2, m.Subscribers())

	h1.Close()
	assert.True(t, h1.Released())
	assert.Equal(t, 2, m.Subscribers(), "release alone must not prune")

	assert.Equal(t, 1, m.Send(8), "released subscriber is skipped")
	assert.Equal(t, 1, m.Subscribers(), "the next send prunes")
	assert.Equal(t, int64(1), m.Stats().Pruned)

	v, ok := h2.Recv()
	require.True(t, ok)
	assert.Equal(t, 8, v)
	assert.True(t, h1.Empty(), "pruned subscriber got nothing")

	h2.Close()
	assert.True(t, m.HasSubscribers())
	m.SendAll([]int{9})
	assert.False(t, m.HasSubscribers())
}

func TestMultiplexerPrunesDroppedSubscription(t *testing.T) {
	m := NewMultiplexer[int]()
	keep := m.Subscribe()

	func() {
		_ = m.Subscribe() // dropped right away
	}()
	require.Equal(t, 2, m.Subscribers())

	require.Eventually(t, func() bool {
		runtime.GC()
		m.Send(1)
		return m.Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, keep.Released())
	assert.False(t, keep.Empty())
	runtime.KeepAlive(keep)
}

func TestMultiplexerDrain(t *testing.T) {
	m := NewMultiplexer[int]()
	h := m.Subscribe()
	m.Send(1)

	m.Drain()
	m.Drain()
	assert.False(t, m.IsOpen())
	assert.False(t, h.IsOpen())

	v, ok := h.Recv()
	require.True(t, ok, "queued value survives the drain")
	assert.Equal(t, 1, v)
	_, ok = h.Recv()
	assert.False(t, ok)

	late := m.Subscribe()
	assert.True(t, late.IsDrained(), "subscriptions after drain start drained")
	_, ok = late.Recv()
	assert.False(t, ok)

	assert.Equal(t, 0, m.Send(2), "drained subscribers refuse values")
}

func TestMultiplexerSubscribeChannel(t *testing.T) {
	m := NewMultiplexer[string]()
	c := NewChannel[string]()
	sub := m.SubscribeChannel(c)
	assert.Same(t, c, sub.Channel)

	m.Send("x")
	v, ok := c.Recv()
	require.True(t, ok)
	assert.Equal(t, "x", v)

	m.Drain()
	other := NewChannel[string]()
	m.SubscribeChannel(other)
	assert.False(t, other.IsOpen(), "attached channel is drained after multiplexer drain")

	mustViolate(t, codes.Internal, func() {
		m.SubscribeChannel(nil)
	})
	runtime.KeepAlive(sub)
}

func TestMultiplexerAttachedChannelOutlivesSubscription(t *testing.T) {
	m := NewMultiplexer[int]()
	c := NewChannel[int]()
	func() {
		_ = m.SubscribeChannel(c) // subscription dropped, channel kept
	}()

	const n = 20
	for i := range n {
		runtime.GC()
		m.Send(i)
	}

	assert.Equal(t, 1, m.Subscribers())
	assert.Equal(t, n, c.Len(), "attached channel stays subscribed while it is held")
	runtime.KeepAlive(c)
}

func TestMultiplexerPrunesCollectedAttachedChannel(t *testing.T) {
	m := NewMultiplexer[int]()
	keep := NewChannel[int]()
	m.SubscribeChannel(keep)
	func() {
		m.SubscribeChannel(NewChannel[int]()) // nothing references the channel
	}()
	require.Equal(t, 2, m.Subscribers())

	require.Eventually(t, func() bool {
		runtime.GC()
		m.Send(1)
		return m.Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, keep.Empty())
	runtime.KeepAlive(keep)
}

func TestMultiplexerCloseAttachedSubscription(t *testing.T) {
	m := NewMultiplexer[int]()
	c := NewChannel[int]()
	sub := m.SubscribeChannel(c)

	sub.Close()
	assert.Equal(t, 1, m.Subscribers(), "pruning waits for the next send")
	assert.Equal(t, 0, m.Send(1))
	assert.Equal(t, 0, m.Subscribers())
	assert.True(t, c.Empty())
}

func TestMultiplexerSubscriptionChangeHook(t *testing.T) {
	m := NewMultiplexer[int]()
	var calls atomic.Int32
	m.OnSubscriptionChange(func() {
		calls.Add(1)
		// Called outside the lock.
		_ = m.Subscribers()
	})

	a := m.Subscribe()
	b := m.Subscribe()
	assert.Equal(t, int32(2), calls.Load())

	a.Close()
	assert.Equal(t, int32(2), calls.Load())
	m.Send(1)
	assert.Equal(t, int32(3), calls.Load(), "prune notifies")
	m.Send(2)
	assert.Equal(t, int32(3), calls.Load())

	mustViolate(t, codes.FailedPrecondition, func() {
		m.OnSubscriptionChange(func() {})
	})
	runtime.KeepAlive(b)
}

func TestMultiplexerClone(t *testing.T) {
	t.Run("custom clone", func(t *testing.T) {
		var clones atomic.Int32
		m := NewMultiplexer[[]int](WithClone(func(v []int) []int {
			clones.Add(1)
			return append([]int(nil), v...)
		}))
		subs := []*Subscription[[]int]{m.Subscribe(), m.Subscribe(), m.Subscribe()}

		orig := []int{1, 2, 3}
		m.Send(orig)
		assert.Equal(t, int32(2), clones.Load(), "all but the last subscriber get a clone")

		first, _ := subs[0].Recv()
		second, _ := subs[1].Recv()
		last, _ := subs[2].Recv()
		assert.Equal(t, orig, first)
		assert.Equal(t, orig, second)

		first[0] = 100
		assert.Equal(t, 1, orig[0], "clone is independent")
		last[0] = 42
		assert.Equal(t, 42, orig[0], "last subscriber receives the original")
	})

	t.Run("deep copy", func(t *testing.T) {
		type payload struct {
			Tags map[string]string
		}
		m := NewMultiplexer[*payload](WithDeepCopy())
		a := m.Subscribe()
		b := m.Subscribe()

		p := &payload{Tags: map[string]string{"k": "v"}}
		m.SendAll([]*payload{p})

		pa, _ := a.Recv()
		pb, _ := b.Recv()
		assert.Equal(t, p, pa)
		assert.NotSame(t, p, pa)
		assert.Same(t, p, pb)
	})

	t.Run("type mismatch", func(t *testing.T) {
		m := NewMultiplexer[int](WithClone(func(s string) string { return s }))
		a, b := m.Subscribe(), m.Subscribe()
		mustViolate(t, codes.InvalidArgument, func() {
			m.Send(1)
		})
		assert.Equal(t, 2, m.Subscribers(), "lock released after the panic")
		runtime.KeepAlive(a)
		runtime.KeepAlive(b)
	})
}

func TestMultiplexerSendAllBoundedSubscriber(t *testing.T) {
	m := NewMultiplexer[int](WithSubscriberOptions(WithCapacity(4)))
	s := m.Subscribe()

	n, bounded := s.Capacity()
	require.True(t, bounded)
	require.Equal(t, 4, n)

	mustViolate(t, codes.Unimplemented, func() {
		m.SendAll([]int{1, 2})
	})
	assert.Equal(t, 1, m.Send(1), "multiplexer still usable")
	runtime.KeepAlive(s)
}

func TestMultiplexerConcurrent(t *testing.T) {
	const values = 200
	m := NewMultiplexer[int]()

	var (
		wg       sync.WaitGroup
		received atomic.Int64
	)
	for range 5 {
		s := m.Subscribe()
		wg.Go(func() {
			want := 0
			for {
				v, ok := s.Recv()
				if !ok {
					return
				}
				if v != want {
					t.Errorf("got %d, want %d", v, want)
				}
				want++
				received.Add(1)
			}
		})
	}

	for i := range values {
		m.Send(i)
	}
	m.Drain()
	wg.Wait()

	assert.Equal(t, int64(5*values), received.Load())
	assert.Equal(t, int64(values), m.Stats().Broadcasts)
}
