package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridmesh"

// Command results used as the "result" label.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	LockWait          prometheus.Histogram
	ConnectionsActive prometheus.Gauge
	RateLimited       prometheus.Counter
}

// NewRegistry creates a registry with the command metrics and the Go runtime
// and process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "RESP commands processed, by command and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent serving a command, including time blocked.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"command"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time between a lock request and its grant.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open RESP connections.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Commands rejected by the per-client rate limiter.",
		}),
	}
	r.reg.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.LockWait,
		r.ConnectionsActive,
		r.RateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// MustRegister adds further collectors, such as a GridCollector.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.reg.MustRegister(cs...)
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveCommand records one served command.
func (r *Registry) ObserveCommand(command, result string, elapsed time.Duration) {
	r.CommandsTotal.WithLabelValues(command, result).Inc()
	r.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Handler returns the /metrics handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
