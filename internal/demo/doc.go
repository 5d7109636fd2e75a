// Package demo contains the grid walkthrough: populating a map, a shared
// counter incremented under three concurrency strategies, and a bounded
// queue shared by one producer and several consumers.
//
// The routines only see the Map and Queue interfaces, which both
// pkg/gridclient and the in-process grid satisfy.
package demo
