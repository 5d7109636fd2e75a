// Package metric provides Prometheus metrics for GridMesh.
//
//   - prometheus.go: registry, command counters and latency histograms
//   - collector.go: scrape-time collector over grid and session state
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
