package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
)

// GridSource provides grid statistics at scrape time.
type GridSource interface {
	Stats() grid.Stats
}

// SessionSource provides the number of live sessions.
type SessionSource interface {
	Count() int
}

// GridCollector reads grid and session state on every scrape instead of
// tracking it in gauges.
type GridCollector struct {
	grid     GridSource
	sessions SessionSource

	maps          *prometheus.Desc
	queues        *prometheus.Desc
	locksHeld     *prometheus.Desc
	queueDepth    *prometheus.Desc
	queueCapacity *prometheus.Desc
	queueBlocked  *prometheus.Desc
	sessionsLive  *prometheus.Desc
}

// NewGridCollector creates a collector. sessions may be nil.
func NewGridCollector(g GridSource, sessions SessionSource) *GridCollector {
	return &GridCollector{
		grid:     g,
		sessions: sessions,
		maps: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "maps"),
			"Named maps in the grid.", nil, nil),
		queues: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "queues"),
			"Named queues in the grid.", nil, nil),
		locksHeld: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "locks_held"),
			"Keys currently locked across all maps.", nil, nil),
		queueDepth: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Items buffered in a queue.", []string{"queue"}, nil),
		queueCapacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "queue_capacity"),
			"Capacity of a queue.", []string{"queue"}, nil),
		queueBlocked: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "queue_blocked"),
			"Callers blocked on a queue.", []string{"queue", "op"}, nil),
		sessionsLive: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "sessions_active"),
			"Live client sessions.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *GridCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maps
	ch <- c.queues
	ch <- c.locksHeld
	ch <- c.queueDepth
	ch <- c.queueCapacity
	ch <- c.queueBlocked
	ch <- c.sessionsLive
}

// Collect implements prometheus.Collector.
func (c *GridCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.grid.Stats()
	ch <- prometheus.MustNewConstMetric(c.maps, prometheus.GaugeValue, float64(st.Maps))
	ch <- prometheus.MustNewConstMetric(c.queues, prometheus.GaugeValue, float64(len(st.Queues)))
	ch <- prometheus.MustNewConstMetric(c.locksHeld, prometheus.GaugeValue, float64(st.LocksHeld))
	for _, q := range st.Queues {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(q.Depth), q.Name)
		ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(q.Capacity), q.Name)
		ch <- prometheus.MustNewConstMetric(c.queueBlocked, prometheus.GaugeValue, float64(q.Takers), q.Name, "take")
		ch <- prometheus.MustNewConstMetric(c.queueBlocked, prometheus.GaugeValue, float64(q.Putters), q.Name, "put")
	}
	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.sessionsLive, prometheus.GaugeValue, float64(c.sessions.Count()))
	}
}
