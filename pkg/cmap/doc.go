// Package cmap provides a concurrent map used for in-process document and
// topic storage.
//
// This package implements a sharded concurrent map with the following
// features:
//
//   - Sharding: configurable power-of-2 shard count for parallelism
//   - Fine-grained locking: per-shard RWMutex for minimal contention
//   - Optimistic locking: version-based compare-and-swap for values
//     carrying a revision counter
//   - Iteration: safe iteration while holding read locks shard by shard
//
// Usage:
//
//	m := cmap.New[string, *Document]()
//	m.Set("doc-1", doc)
//	val, ok := m.Get("doc-1")
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
package cmap
