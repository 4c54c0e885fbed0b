// Package metrics exports [concurrent.Channel], [concurrent.Multiplexer]
// and [concurrent.Pool] statistics as Prometheus metrics. Values are read
// from the Stats snapshot of each source at scrape time.
//
// Every collector carries its name as a constant label, so several
// collectors of the same kind can share one registry as long as their
// names differ.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/baxromumarov/concurrent"
)

const namespace = "concurrent"

// ChannelSource is implemented by [concurrent.Channel] and
// [concurrent.Subscription].
type ChannelSource interface {
	Stats() concurrent.ChannelStats
}

// MultiplexerSource is implemented by [concurrent.Multiplexer].
type MultiplexerSource interface {
	Stats() concurrent.MultiplexerStats
}

// PoolSource is implemented by [concurrent.Pool].
type PoolSource interface {
	Stats() concurrent.PoolStats
}

func desc(subsystem, name, help, label, value string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, name),
		help, nil, prometheus.Labels{label: value},
	)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ChannelCollector reports the statistics of one channel.
type ChannelCollector struct {
	src ChannelSource

	length, capacity, open   *prometheus.Desc
	sent, received, rejected *prometheus.Desc
}

// NewChannelCollector returns a collector labelling the metrics of src
// with channel=name.
func NewChannelCollector(name string, src ChannelSource) *ChannelCollector {
	const sub, label = "channel", "channel"
	return &ChannelCollector{
		src:      src,
		length:   desc(sub, "length", "Elements currently queued in the channel.", label, name),
		capacity: desc(sub, "capacity", "Capacity limit of the channel, 0 if unbounded.", label, name),
		open:     desc(sub, "open", "1 while the channel accepts sends, 0 once drained.", label, name),
		sent:     desc(sub, "sent_total", "Elements enqueued into the channel.", label, name),
		received: desc(sub, "received_total", "Elements dequeued from the channel.", label, name),
		rejected: desc(sub, "rejected_total", "Sends refused because the channel was drained, stayed full or the caller gave up.", label, name),
	}
}

// Describe implements [prometheus.Collector].
func (c *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.length
	ch <- c.capacity
	ch <- c.open
	ch <- c.sent
	ch <- c.received
	ch <- c.rejected
}

// Collect implements [prometheus.Collector].
func (c *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.length, prometheus.GaugeValue, float64(s.Len))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, boolGauge(s.Open))
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(s.Sent))
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.Received))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))
}

// MultiplexerCollector reports the statistics of one multiplexer.
type MultiplexerCollector struct {
	src MultiplexerSource

	subscribers, open, broadcasts, pruned *prometheus.Desc
}

// NewMultiplexerCollector returns a collector labelling the metrics of
// src with multiplexer=name.
func NewMultiplexerCollector(name string, src MultiplexerSource) *MultiplexerCollector {
	const sub, label = "multiplexer", "multiplexer"
	return &MultiplexerCollector{
		src:         src,
		subscribers: desc(sub, "subscribers", "Registered subscriptions, including released ones not yet pruned.", label, name),
		open:        desc(sub, "open", "1 while the multiplexer is open, 0 once drained.", label, name),
		broadcasts:  desc(sub, "broadcasts_total", "Send and SendAll calls.", label, name),
		pruned:      desc(sub, "pruned_total", "Released subscriptions removed during a broadcast.", label, name),
	}
}

// Describe implements [prometheus.Collector].
func (c *MultiplexerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscribers
	ch <- c.open
	ch <- c.broadcasts
	ch <- c.pruned
}

// Collect implements [prometheus.Collector].
func (c *MultiplexerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, boolGauge(s.Open))
	ch <- prometheus.MustNewConstMetric(c.broadcasts, prometheus.CounterValue, float64(s.Broadcasts))
	ch <- prometheus.MustNewConstMetric(c.pruned, prometheus.CounterValue, float64(s.Pruned))
}

// PoolCollector reports the statistics of one worker pool.
type PoolCollector struct {
	src PoolSource

	completed, errored, inFlight, queued, workers *prometheus.Desc
}

// NewPoolCollector returns a collector labelling the metrics of src with
// pool=name.
func NewPoolCollector(name string, src PoolSource) *PoolCollector {
	const sub, label = "pool", "pool"
	return &PoolCollector{
		src:       src,
		completed: desc(sub, "completed_total", "Elements processed by the pool.", label, name),
		errored:   desc(sub, "errored_total", "Elements whose processing failed.", label, name),
		inFlight:  desc(sub, "in_flight", "Elements currently being processed.", label, name),
		queued:    desc(sub, "queue_depth", "Elements waiting in the source channel.", label, name),
		workers:   desc(sub, "workers", "Worker goroutines of the pool.", label, name),
	}
}

// Describe implements [prometheus.Collector].
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.completed
	ch <- c.errored
	ch <- c.inFlight
	ch <- c.queued
	ch <- c.workers
}

// Collect implements [prometheus.Collector].
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(c.errored, prometheus.CounterValue, float64(s.Errored))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(s.Workers))
}
