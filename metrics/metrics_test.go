package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/baxromumarov/concurrent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestChannelCollector(t *testing.T) {
	c := concurrent.NewChannel[int](concurrent.WithCapacity(3))
	c.Send(1)
	c.Send(2)
	c.Recv()
	c.Drain()
	c.TrySend(3)

	col := NewChannelCollector("jobs", c)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))

	expected := `
# HELP concurrent_channel_length Elements currently queued in the channel.
# TYPE concurrent_channel_length gauge
concurrent_channel_length{channel="jobs"} 1
# HELP concurrent_channel_rejected_total Sends refused because the channel was drained, stayed full or the caller gave up.
# TYPE concurrent_channel_rejected_total counter
concurrent_channel_rejected_total{channel="jobs"} 1
# HELP concurrent_channel_sent_total Elements enqueued into the channel.
# TYPE concurrent_channel_sent_total counter
concurrent_channel_sent_total{channel="jobs"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"concurrent_channel_length",
		"concurrent_channel_rejected_total",
		"concurrent_channel_sent_total",
	)
	assert.NoError(t, err)

	assert.Equal(t, 6, testutil.CollectAndCount(col))
}

func TestMultiplexerCollector(t *testing.T) {
	m := concurrent.NewMultiplexer[string]()
	a := m.Subscribe()
	b := m.Subscribe()
	m.Send("x")
	b.Close()
	m.Send("y")

	col := NewMultiplexerCollector("events", m)
	assert.Equal(t, 4, testutil.CollectAndCount(col))
	assert.Equal(t, 4, testutil.CollectAndCount(col,
		"concurrent_multiplexer_subscribers",
		"concurrent_multiplexer_open",
		"concurrent_multiplexer_broadcasts_total",
		"concurrent_multiplexer_pruned_total",
	))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))
	expected := `
# HELP concurrent_multiplexer_pruned_total Released subscriptions removed during a broadcast.
# TYPE concurrent_multiplexer_pruned_total counter
concurrent_multiplexer_pruned_total{multiplexer="events"} 1
# HELP concurrent_multiplexer_subscribers Registered subscriptions, including released ones not yet pruned.
# TYPE concurrent_multiplexer_subscribers gauge
concurrent_multiplexer_subscribers{multiplexer="events"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"concurrent_multiplexer_pruned_total",
		"concurrent_multiplexer_subscribers",
	))
	a.Close()
}

func TestPoolCollector(t *testing.T) {
	src := concurrent.NewChannel[int]()
	p := concurrent.NewPool(context.Background(), src, 2, func(context.Context, int) error {
		return nil
	})
	src.SendAll([]int{1, 2, 3})
	require.NoError(t, p.Close())

	col := NewPoolCollector("workers", p)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))

	expected := `
# HELP concurrent_pool_completed_total Elements processed by the pool.
# TYPE concurrent_pool_completed_total counter
concurrent_pool_completed_total{pool="workers"} 3
# HELP concurrent_pool_workers Worker goroutines of the pool.
# TYPE concurrent_pool_workers gauge
concurrent_pool_workers{pool="workers"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"concurrent_pool_completed_total",
		"concurrent_pool_workers",
	))
}

func TestDuplicateNamesConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := concurrent.NewChannel[int]()
	require.NoError(t, reg.Register(NewChannelCollector("a", c)))
	require.NoError(t, reg.Register(NewChannelCollector("b", c)))
	assert.Error(t, reg.Register(NewChannelCollector("a", c)))
}
