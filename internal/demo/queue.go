package demo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// ProducerConsumerConfig sizes a producer/consumer run.
type ProducerConsumerConfig struct {
	// Items are produced as 1..Items.
	Items int
	// Interval is the pause after each put. 0 produces as fast as the queue
	// accepts.
	Interval  time.Duration
	Consumers int
}

// DefaultProducerConsumerConfig is 100 items, one every 100ms, two consumers.
func DefaultProducerConsumerConfig() ProducerConsumerConfig {
	return ProducerConsumerConfig{Items: 100, Interval: 100 * time.Millisecond, Consumers: 2}
}

// ProducerConsumerResult holds what each consumer received, in the order it
// received it.
type ProducerConsumerResult struct {
	Produced int           `json:"produced" yaml:"produced"`
	Received [][]int       `json:"received" yaml:"received"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
}

// ProducerConsumer runs one producer and cfg.Consumers consumers over q.
// Consumers stop once all items have been received, or when ctx ends.
func ProducerConsumer(ctx context.Context, q Queue, cfg ProducerConsumerConfig, log logger.Logger) (*ProducerConsumerResult, error) {
	d := DefaultProducerConsumerConfig()
	if cfg.Items <= 0 {
		cfg.Items = d.Items
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = d.Consumers
	}
	if log == nil {
		log = logger.NewNop()
	}

	res := &ProducerConsumerResult{Received: make([][]int, cfg.Consumers)}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	consumeCtx, stopConsumers := context.WithCancel(gctx)
	defer stopConsumers()

	g.Go(func() error {
		for i := 1; i <= cfg.Items; i++ {
			if err := q.Put(gctx, []byte(strconv.Itoa(i))); err != nil {
				return fmt.Errorf("produce %d: %w", i, err)
			}
			res.Produced = i
			log.Debug("produced", "item", i)
			if cfg.Interval > 0 && i < cfg.Items {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(cfg.Interval):
				}
			}
		}
		return nil
	})

	var received atomic.Int64
	for c := 0; c < cfg.Consumers; c++ {
		name := "consumer-" + strconv.Itoa(c+1)
		g.Go(func() error {
			for {
				item, err := q.Take(consumeCtx)
				if err != nil {
					if errors.Is(err, context.Canceled) && gctx.Err() == nil {
						// All items were seen.
						return nil
					}
					return fmt.Errorf("%s: %w", name, err)
				}
				n, err := strconv.Atoi(string(item))
				if err != nil {
					return fmt.Errorf("%s: item %q: %w", name, item, err)
				}
				res.Received[c] = append(res.Received[c], n)
				log.Debug("consumed", "consumer", name, "item", n)
				if received.Add(1) == int64(cfg.Items) {
					stopConsumers()
				}
			}
		})
	}

	err := g.Wait()
	res.Elapsed = time.Since(start)
	return res, err
}
