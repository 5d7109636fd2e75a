// Package main provides the entry point for gridmesh-server.
//
// The server hosts the grid (named keyed maps and bounded queues) and
// exposes it over:
//
//   - RESP on server.resp.addr, plus an optional TLS listener
//   - HTTP on server.http.addr for /health, /ready, /status and /metrics
//
// Usage:
//
//	gridmesh-server [flags]
//	gridmesh-server -config /path/to/config.yaml
//	echo -n secret | gridmesh-server -hash-password
//
// Configuration is read from defaults, then the YAML file, then GRIDMESH_*
// environment variables. Changing log.level in the file takes effect
// without a restart.
package main
