// Package concurrent provides a blocking FIFO [Channel] and a fan-out
// [Multiplexer] for moving values between goroutines.
//
// A [Channel] is a queue with an optional capacity and a two-state
// lifecycle: open, then drained. Receivers block until an element is
// available, and senders block while a bounded channel is full:
//
//	c := concurrent.NewChannel[Job](concurrent.WithCapacity(64))
//	go func() {
//	    for {
//	        job, ok := c.Recv()
//	        if !ok {
//	            return // drained and empty
//	        }
//	        handle(job)
//	    }
//	}()
//	c.Send(job)
//	c.Drain()
//
// # Draining
//
// [Channel.Drain] is the only way to close a channel. After it every send
// fails, but receivers keep taking the remaining elements until the queue
// is empty, and only then report end-of-stream. Drain wakes every blocked
// sender and receiver. It cannot be undone.
//
// # Deadlines and Contexts
//
// Each blocking operation has a deadline form ([Channel.SendUntil],
// [Channel.RecvUntil], [Channel.WaitUntil]), a non-blocking form
// ([Channel.TrySend], [Channel.TryRecv]) and a context form
// ([Channel.SendContext], [Channel.RecvContext]). A zero deadline never
// blocks. Deadlines are measured by the clock given with [WithClock].
//
// # Bulk Operations
//
// [Channel.RecvAll] takes every queued element without blocking.
// [Channel.SendAll] appends a slice atomically and is only permitted on
// unbounded channels without an [Channel.OnEnqueue] hook.
//
// # Fan-out
//
// A [Multiplexer] copies each value to every live subscription. Call
// [Multiplexer.Subscribe] to obtain a [Subscription]; it stays registered
// until it is closed or garbage collected, and it is pruned lazily at the
// end of the next [Multiplexer.Send] or [Multiplexer.SendAll]:
//
//	m := concurrent.NewMultiplexer[Event](concurrent.WithDeepCopy())
//	sub := m.Subscribe()
//	defer sub.Close()
//	m.Send(ev)
//
// The last subscriber receives the original value and every other
// subscriber receives a copy produced by [WithClone] or [WithDeepCopy].
// Without either option values are shared.
//
// # Worker Pools
//
// [NewPool] starts a fixed number of workers that receive from one
// [Channel]. [Pool.Close] drains the channel and waits for the queued
// elements to be processed.
//
// # Contract Violations
//
// Misuse that cannot be reported through a return value, such as calling
// [Channel.SendAll] on a bounded channel or assigning a hook twice,
// panics with a [*ContractError] carrying a gRPC status code. The
// violation is logged through the configured [zap.Logger] first.
//
// # Observability
//
// [Channel.Stats], [Multiplexer.Stats] and [Pool.Stats] return
// point-in-time snapshots. Package metrics exports them as Prometheus
// collectors, and package chanx bridges Channels to native Go channels.
package concurrent
