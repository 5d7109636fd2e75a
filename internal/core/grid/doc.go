// Package grid implements the shared data structures served by GridMesh.
//
// A Grid owns two kinds of named objects, both created on first use:
//
//   - KeyedMap: key/value map with an exclusive FIFO lock per key and a
//     compare-and-swap that is linearizable with get/put on the same key.
//     Locks on different keys never contend beyond a shard lookup.
//   - BoundedQueue: fixed-capacity FIFO. Put blocks while full, Take while
//     empty; blocked callers are served in arrival order and every item is
//     delivered to exactly one consumer.
//
// Blocking calls take a context and also return when the grid is closed, so
// a caller can always get out of a wait.
package grid
