package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/concurrent"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := env.ParseAs[config]()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Subscribers)
	assert.Equal(t, 100*time.Millisecond, cfg.SendTimeout)
	assert.NoError(t, cfg.validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FANOUT_SUBSCRIBERS", "0")
	t.Setenv("FANOUT_SEND_TIMEOUT", "1s")

	cfg, err := env.ParseAs[config]()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SendTimeout)
	assert.EqualError(t, cfg.validate(), "FANOUT_SUBSCRIBERS must be positive")
}

func TestShare(t *testing.T) {
	total := 0
	for i := range 3 {
		total += share(10, 3, i)
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 4, share(10, 3, 0))
	assert.Equal(t, 3, share(10, 3, 2))
}

func TestProduceDropsWhenFull(t *testing.T) {
	dst := concurrent.NewChannel[message](concurrent.WithCapacity(2))
	var dropped atomic.Int64

	err := produce(context.Background(), dst, 0, 5, time.Millisecond, &dropped)
	require.NoError(t, err)
	assert.Equal(t, 2, dst.Len())
	assert.Equal(t, int64(3), dropped.Load())
}

func TestProduceIntoDrained(t *testing.T) {
	dst := concurrent.NewChannel[message]()
	dst.Drain()
	var dropped atomic.Int64

	err := produce(context.Background(), dst, 0, 1, time.Millisecond, &dropped)
	assert.ErrorIs(t, err, concurrent.ErrDrained)
}

func TestRun(t *testing.T) {
	t.Setenv("FANOUT_MESSAGES", "200")
	t.Setenv("FANOUT_SUBSCRIBERS", "3")
	t.Setenv("FANOUT_SEND_TIMEOUT", "1s")
	t.Setenv("FANOUT_LOG_LEVEL", "error")

	assert.NoError(t, run())
}
