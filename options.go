package concurrent

import (
	"github.com/juju/clock"
	"go.uber.org/zap"
)

type channelConfig struct {
	capacity int // 0 means unbounded
	clock    clock.Clock
	logger   *zap.Logger
	name     string
}

// ChannelOption configures a [Channel].
type ChannelOption func(*channelConfig)

func defaultChannelConfig() channelConfig {
	return channelConfig{
		clock:  clock.WallClock,
		logger: zap.NewNop(),
	}
}

// WithCapacity bounds the channel to n queued elements. Without it the
// channel is unbounded.
// It panics if n is not positive.
func WithCapacity(n int) ChannelOption {
	return func(c *channelConfig) {
		if n <= 0 {
			panic("concurrent: WithCapacity requires n > 0")
		}
		c.capacity = n
	}
}

// WithClock sets the clock used to time out SendUntil, RecvUntil and
// WaitUntil. The default is [clock.WallClock].
func WithClock(clk clock.Clock) ChannelOption {
	return func(c *channelConfig) {
		if clk == nil {
			panic("concurrent: WithClock requires a non-nil clock")
		}
		c.clock = clk
	}
}

// WithLogger sets the logger for channel lifecycle events and contract
// violations. A nil logger is ignored.
func WithLogger(l *zap.Logger) ChannelOption {
	return func(c *channelConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName labels the channel in log output.
func WithName(name string) ChannelOption {
	return func(c *channelConfig) {
		c.name = name
	}
}

type multiplexerConfig struct {
	clone    func(any) any
	logger   *zap.Logger
	name     string
	channels []ChannelOption
}

// MultiplexerOption configures a [Multiplexer].
type MultiplexerOption func(*multiplexerConfig)

func defaultMultiplexerConfig() multiplexerConfig {
	return multiplexerConfig{
		logger: zap.NewNop(),
	}
}

// WithMultiplexerLogger sets the logger for subscription changes and
// drain events. A nil logger is ignored.
func WithMultiplexerLogger(l *zap.Logger) MultiplexerOption {
	return func(c *multiplexerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMultiplexerName labels the multiplexer in log output.
func WithMultiplexerName(name string) MultiplexerOption {
	return func(c *multiplexerConfig) {
		c.name = name
	}
}

// WithSubscriberOptions sets the options applied to every channel created
// by [Multiplexer.Subscribe]. Channels attached through
// [Multiplexer.SubscribeChannel] keep their own configuration.
func WithSubscriberOptions(opts ...ChannelOption) MultiplexerOption {
	return func(c *multiplexerConfig) {
		c.channels = append(c.channels, opts...)
	}
}
