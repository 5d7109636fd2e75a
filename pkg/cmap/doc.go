// Package cmap provides a sharded concurrent map keyed by string.
//
// Keys are distributed over a power-of-two number of shards with murmur3,
// each shard guarded by its own RWMutex, so lookups on unrelated keys do not
// contend. The grid uses it as the index of named maps and queues, of map
// entries, and of client sessions.
//
// Usage:
//
//	m := cmap.NewWithShards[*entry](32)
//	e := m.GetOrCreate("key", newEntry)
//	m.Range(func(key string, e *entry) bool { return true })
package cmap
