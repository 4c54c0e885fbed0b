// Command fanout pushes generated messages through a bounded ingress
// channel into a multiplexer, and processes every subscriber's copy with
// its own worker pool. It is configured through FANOUT_* environment
// variables and optionally serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/concurrent"
	"github.com/baxromumarov/concurrent/chanx"
	"github.com/baxromumarov/concurrent/metrics"
)

type config struct {
	Subscribers int           `env:"FANOUT_SUBSCRIBERS" envDefault:"4"`
	Producers   int           `env:"FANOUT_PRODUCERS" envDefault:"2"`
	Messages    int           `env:"FANOUT_MESSAGES" envDefault:"10000"`
	Capacity    int           `env:"FANOUT_CAPACITY" envDefault:"128"`
	Workers     int           `env:"FANOUT_WORKERS" envDefault:"2"`
	SendTimeout time.Duration `env:"FANOUT_SEND_TIMEOUT" envDefault:"100ms"`
	MetricsAddr string        `env:"FANOUT_METRICS_ADDR"`
	LogLevel    string        `env:"FANOUT_LOG_LEVEL" envDefault:"info"`
	Development bool          `env:"FANOUT_DEVELOPMENT"`
}

func (c config) validate() error {
	switch {
	case c.Subscribers <= 0:
		return errors.New("FANOUT_SUBSCRIBERS must be positive")
	case c.Producers <= 0:
		return errors.New("FANOUT_PRODUCERS must be positive")
	case c.Messages < 0:
		return errors.New("FANOUT_MESSAGES must not be negative")
	case c.Capacity <= 0:
		return errors.New("FANOUT_CAPACITY must be positive")
	case c.Workers <= 0:
		return errors.New("FANOUT_WORKERS must be positive")
	case c.SendTimeout <= 0:
		return errors.New("FANOUT_SEND_TIMEOUT must be positive")
	}
	return nil
}

type message struct {
	Producer int
	Seq      int
	Payload  []byte
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fanout:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	ingress := concurrent.NewChannel[message](
		concurrent.WithCapacity(cfg.Capacity),
		concurrent.WithLogger(logger),
		concurrent.WithName("ingress"),
	)
	reg.MustRegister(metrics.NewChannelCollector("ingress", ingress))

	mux := concurrent.NewMultiplexer[message](
		concurrent.WithMultiplexerLogger(logger),
		concurrent.WithMultiplexerName("fanout"),
		concurrent.WithSubscriberOptions(concurrent.WithCapacity(cfg.Capacity)),
		concurrent.WithDeepCopy(),
	)
	mux.OnSubscriptionChange(func() {
		logger.Info("subscriptions changed", zap.Int("subscribers", mux.Subscribers()))
	})
	reg.MustRegister(metrics.NewMultiplexerCollector("fanout", mux))

	var processed atomic.Int64
	subs := make([]*concurrent.Subscription[message], cfg.Subscribers)
	pools := make([]*concurrent.Pool[message], cfg.Subscribers)
	for i := range subs {
		name := "subscriber-" + strconv.Itoa(i)
		subs[i] = mux.Subscribe()
		pools[i] = concurrent.NewPool(ctx, subs[i].Channel, cfg.Workers,
			func(_ context.Context, m message) error {
				if len(m.Payload) == 0 {
					return fmt.Errorf("message %d/%d has no payload", m.Producer, m.Seq)
				}
				processed.Add(1)
				return nil
			},
			concurrent.WithPoolLogger(logger.With(zap.String("pool", name))),
		)
		reg.MustRegister(metrics.NewChannelCollector(name, subs[i]))
		reg.MustRegister(metrics.NewPoolCollector(name, pools[i]))
	}

	// A broadcast blocked on a full subscriber holds the multiplexer lock,
	// so shutdown drains the subscriber channels themselves.
	stopDrain := context.AfterFunc(ctx, func() {
		for _, s := range subs {
			s.Drain()
		}
	})
	defer stopDrain()

	srv := serveMetrics(cfg.MetricsAddr, reg, logger)

	pumped := make(chan error, 1)
	go func() {
		pumped <- chanx.Pump(ctx, ingress, mux)
	}()

	start := time.Now()
	var dropped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for p := range cfg.Producers {
		g.Go(func() error {
			return produce(gctx, ingress, p, share(cfg.Messages, cfg.Producers, p), cfg.SendTimeout, &dropped)
		})
	}
	produceErr := g.Wait()
	ingress.Drain()

	pumpErr := <-pumped
	mux.Drain()

	var poolErrs []error
	for i, p := range pools {
		if err := p.Close(); err != nil {
			poolErrs = append(poolErrs, fmt.Errorf("subscriber %d: %w", i, err))
		}
		subs[i].Close()
	}

	logger.Info("fanout finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("sent", ingress.Stats().Sent),
		zap.Int64("dropped", dropped.Load()),
		zap.Int64("processed", processed.Load()),
		zap.Int64("broadcasts", mux.Stats().Broadcasts),
	)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}

	if errors.Is(pumpErr, context.Canceled) {
		pumpErr = nil
	}
	return errors.Join(produceErr, pumpErr, errors.Join(poolErrs...))
}

// produce sends n messages into dst. A message that cannot be enqueued
// within timeout is dropped and counted.
func produce(
	ctx context.Context,
	dst *concurrent.Channel[message],
	producer, n int,
	timeout time.Duration,
	dropped *atomic.Int64,
) error {
	for seq := range n {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m := message{Producer: producer, Seq: seq, Payload: []byte(strconv.Itoa(seq))}
		if dst.SendUntil(m, time.Now().Add(timeout)) {
			continue
		}
		if !dst.IsOpen() {
			return concurrent.ErrDrained
		}
		dropped.Add(1)
	}
	return nil
}

// share splits total into parts and returns the size of part i.
func share(total, parts, i int) int {
	n := total / parts
	if i < total%parts {
		n++
	}
	return n
}

func newLogger(cfg config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
