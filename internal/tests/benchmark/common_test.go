package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/server/respserver"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

// EntryCounts defines map sizes for full runs. Swap it in for
// SmallEntryCounts when profiling large maps.
var EntryCounts = []int{10000, 100000, 500000, 1000000}

// SmallEntryCounts for quick benchmarks.
var SmallEntryCounts = []int{1000, 10000, 100000}

func newGrid(b *testing.B) *grid.Grid {
	b.Helper()
	g, err := grid.New(grid.Config{DefaultQueueCapacity: 1024})
	if err != nil {
		b.Fatalf("grid.New failed: %v", err)
	}
	b.Cleanup(g.Close)
	return g
}

// prefillMap stores "Value-i" under keys 0..count-1 and returns the keys.
func prefillMap(m *grid.KeyedMap, count int) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
		m.Put(keys[i], []byte("Value-"+keys[i]))
	}
	return keys
}

// startServer serves g over RESP on a loopback port.
func startServer(b *testing.B, g *grid.Grid) string {
	b.Helper()
	sessions := service.NewSessionService(g, &service.SessionServiceConfig{
		ClusterName:  "dev",
		TTL:          time.Minute,
		ReapSchedule: "@every 10s",
	}, logger.NewNop())
	cfg := respserver.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := respserver.New(cfg, respserver.Deps{Grid: g, Sessions: sessions, Logger: logger.NewNop()})
	if err := srv.Start(context.Background()); err != nil {
		b.Fatalf("Start failed: %v", err)
	}
	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().String()
}

func dialClient(b *testing.B, addr string) *gridclient.Client {
	b.Helper()
	cfg := gridclient.DefaultConfig()
	cfg.Addr = addr
	cfg.PoolSize = 4 * runtime.GOMAXPROCS(0)
	cfg.CASAttempts = 0
	c, err := gridclient.Dial(context.Background(), cfg)
	if err != nil {
		b.Fatalf("Dial failed: %v", err)
	}
	b.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithEntryCounts runs a benchmark function with various map sizes.
func runWithEntryCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("entries_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
