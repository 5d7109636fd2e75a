// Package main provides the entry point for gridmesh-cli.
//
// gridmesh-cli talks to a gridmesh-server over RESP. It reads and writes
// keyed maps, holds key locks, moves items through bounded queues and runs
// the walkthrough routines (populate, the three counter strategies and
// producer/consumer).
//
// Usage:
//
//	gridmesh-cli ping
//	gridmesh-cli map put distributed-map 1 Value-1
//	gridmesh-cli map lock --hold 5s counter-map key
//	gridmesh-cli queue take --timeout 10s bounded-queue
//	gridmesh-cli -o json demo pessimistic --workers 4
//
// Defaults come from ~/.gridmesh/cli.yaml and GRIDMESH_CLI_* variables.
// Ctrl-C cancels the running command; held locks are released on the way
// out.
package main
