// Package command defines the gridmesh-cli commands.
//
//   - root.go: the app, global flags and settings
//   - ping.go: connectivity check
//   - map.go: keyed map operations and locks
//   - queue.go: bounded queue put and take
//   - demo.go: the walkthrough routines against a live grid
//
// Every command dials the grid, runs, renders its result in the selected
// output format and closes the client.
package command
