package demo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// Counter strategies.
const (
	StrategyUnsynchronized = "unsynchronized"
	StrategyPessimistic    = "pessimistic"
	StrategyOptimistic     = "optimistic"
)

// CounterConfig sizes a counter run: Workers goroutines each add Iterations.
type CounterConfig struct {
	Workers    int
	Iterations int
}

// DefaultCounterConfig is one worker doing 10000 increments.
func DefaultCounterConfig() CounterConfig {
	return CounterConfig{Workers: 1, Iterations: 10_000}
}

func (c CounterConfig) withDefaults() CounterConfig {
	d := DefaultCounterConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	return c
}

// CounterResult is the outcome of one counter run.
type CounterResult struct {
	Strategy   string        `json:"strategy" yaml:"strategy"`
	Workers    int           `json:"workers" yaml:"workers"`
	Iterations int           `json:"iterations" yaml:"iterations"`
	Expected   int64         `json:"expected" yaml:"expected"`
	Final      int64         `json:"final" yaml:"final"`
	Lost       int64         `json:"lost" yaml:"lost"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
}

func (r *CounterResult) log(log logger.Logger) {
	log.Info("counter run finished",
		"strategy", r.Strategy,
		"workers", r.Workers,
		"iterations", r.Iterations,
		"final", r.Final,
		"lost", r.Lost,
		"elapsed", r.Elapsed,
	)
}

// CounterUnsynchronized increments with plain get and put. Concurrent
// workers overwrite each other, so Final may fall short of Expected.
func CounterUnsynchronized(ctx context.Context, m Map, cfg CounterConfig) (*CounterResult, error) {
	return runCounter(ctx, m, cfg, StrategyUnsynchronized, func(ctx context.Context) error {
		n, err := getCounter(ctx, m)
		if err != nil {
			return err
		}
		return putCounter(ctx, m, n+1)
	})
}

// CounterPessimistic increments under the key lock.
func CounterPessimistic(ctx context.Context, m Map, cfg CounterConfig) (*CounterResult, error) {
	return runCounter(ctx, m, cfg, StrategyPessimistic, func(ctx context.Context) error {
		return m.WithLock(ctx, CounterKey, func(ctx context.Context) error {
			n, err := getCounter(ctx, m)
			if err != nil {
				return err
			}
			return putCounter(ctx, m, n+1)
		})
	})
}

// CounterOptimistic increments with compare-and-swap, retrying on conflict.
func CounterOptimistic(ctx context.Context, m Map, cfg CounterConfig) (*CounterResult, error) {
	return runCounter(ctx, m, cfg, StrategyOptimistic, func(ctx context.Context) error {
		_, err := m.Update(ctx, CounterKey, func(old []byte) ([]byte, error) {
			n, err := parseCounter(old)
			if err != nil {
				return nil, err
			}
			return strconv.AppendInt(nil, n+1, 10), nil
		})
		return err
	})
}

// runCounter resets the counter to zero, then runs increment
// Workers*Iterations times across Workers goroutines.
func runCounter(ctx context.Context, m Map, cfg CounterConfig, strategy string, increment func(context.Context) error) (*CounterResult, error) {
	cfg = cfg.withDefaults()
	if err := putCounter(ctx, m, 0); err != nil {
		return nil, fmt.Errorf("reset counter: %w", err)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			for i := 0; i < cfg.Iterations; i++ {
				if err := increment(gctx); err != nil {
					return fmt.Errorf("%s increment: %w", strategy, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	final, err := getCounter(ctx, m)
	if err != nil {
		return nil, err
	}
	expected := int64(cfg.Workers) * int64(cfg.Iterations)
	return &CounterResult{
		Strategy:   strategy,
		Workers:    cfg.Workers,
		Iterations: cfg.Iterations,
		Expected:   expected,
		Final:      final,
		Lost:       expected - final,
		Elapsed:    elapsed,
	}, nil
}

func getCounter(ctx context.Context, m Map) (int64, error) {
	v, err := m.Get(ctx, CounterKey)
	if err != nil {
		return 0, err
	}
	return parseCounter(v)
}

func putCounter(ctx context.Context, m Map, n int64) error {
	return m.Put(ctx, CounterKey, strconv.AppendInt(nil, n, 10))
}

func parseCounter(v []byte) (int64, error) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter value %q: %w", v, err)
	}
	return n, nil
}
