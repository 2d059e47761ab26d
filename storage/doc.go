// Package storage defines the document store contract consumed by the
// database core.
//
// A DocumentStore holds schemaless JSON-like documents with optimistic
// concurrency control: every document carries a revision counter, and
// writes must present the revision they read. Stores are addressed by
// location strings of the form "<database>/<store>", e.g. "shop/_admin"
// or "shop/books-2", and are produced by an Adapter.
//
// Implementations:
//
//   - storage/memory: in-process store on sharded concurrent maps
//   - storage/badgerstore: persistent store on Badger (LSM)
//   - storage/encrypted: field-encrypting wrapper around any store
//
// Implementation requirements:
//
//   - Thread-safe: concurrent reads/writes must be safe
//   - Isolated: locations never observe each other's data
//   - Conflict-exact: Put/Remove fail with ErrConflict on any revision
//     mismatch, never by silently overwriting
package storage
