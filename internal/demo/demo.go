package demo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// Object names used by the walkthrough.
const (
	PopulateMapName = "distributed-map"
	CounterMapName  = "counter-map"
	CounterKey      = "key"
	QueueName       = "bounded-queue"
)

// Map is the map surface the routines need.
type Map interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// WithLock runs fn while holding the lock on key and releases it on
	// every exit path.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	// Update is an optimistic read-modify-write built on compare-and-swap.
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) ([]byte, error)
}

// Queue is the queue surface the routines need.
type Queue interface {
	Put(ctx context.Context, item []byte) error
	Take(ctx context.Context) ([]byte, error)
}

// Targets are the grid objects RunAll works on.
type Targets struct {
	Populate Map
	Counter  Map
	Queue    Queue
}

// Config sizes every routine of RunAll.
type Config struct {
	PopulateCount    int
	Counter          CounterConfig
	ProducerConsumer ProducerConsumerConfig
}

// DefaultConfig matches the walkthrough's original sizes.
func DefaultConfig() Config {
	return Config{
		PopulateCount:    1000,
		Counter:          DefaultCounterConfig(),
		ProducerConsumer: DefaultProducerConsumerConfig(),
	}
}

// Report collects the results of RunAll.
type Report struct {
	Populated        int                     `json:"populated" yaml:"populated"`
	Counters         []*CounterResult        `json:"counters" yaml:"counters"`
	ProducerConsumer *ProducerConsumerResult `json:"producer_consumer" yaml:"producer_consumer"`
}

// PopulateMap stores "Value-i" under key i for i in [0, n).
func PopulateMap(ctx context.Context, m Map, n int) error {
	for i := 0; i < n; i++ {
		key := strconv.Itoa(i)
		if err := m.Put(ctx, key, []byte("Value-"+key)); err != nil {
			return fmt.Errorf("populate key %d: %w", i, err)
		}
	}
	return nil
}

// RunAll runs the walkthrough in order: populate, the three counter
// strategies, then producer/consumer. It stops at the first error and
// returns what completed so far.
func RunAll(ctx context.Context, t Targets, cfg Config, log logger.Logger) (*Report, error) {
	if log == nil {
		log = logger.NewNop()
	}
	report := &Report{}

	start := time.Now()
	if err := PopulateMap(ctx, t.Populate, cfg.PopulateCount); err != nil {
		return report, err
	}
	report.Populated = cfg.PopulateCount
	log.Info("distributed map initialized", "entries", cfg.PopulateCount, "elapsed", time.Since(start))

	for _, run := range []func(context.Context, Map, CounterConfig) (*CounterResult, error){
		CounterUnsynchronized,
		CounterPessimistic,
		CounterOptimistic,
	} {
		res, err := run(ctx, t.Counter, cfg.Counter)
		if err != nil {
			return report, err
		}
		report.Counters = append(report.Counters, res)
		res.log(log)
	}

	pc, err := ProducerConsumer(ctx, t.Queue, cfg.ProducerConsumer, log)
	report.ProducerConsumer = pc
	if err != nil {
		return report, err
	}
	log.Info("bounded queue drained",
		"produced", pc.Produced,
		"consumers", len(pc.Received),
		"elapsed", pc.Elapsed,
	)
	return report, nil
}
