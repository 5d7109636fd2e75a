// Package httpserver serves the operational HTTP endpoints of gridmesh-server:
//
//	GET /health   process is up
//	GET /ready    grid is accepting work
//	GET /status   grid and session statistics (JSON)
//	GET /metrics  Prometheus exposition
//
// Grid data is only reachable over RESP.
package httpserver
