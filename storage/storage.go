// Package storage defines the document store contract consumed by the
// database core.
package storage

import (
	"context"
	"errors"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("storage: document not found")

	// ErrConflict is returned when a write presents a stale revision,
	// or creates a document that already exists.
	ErrConflict = errors.New("storage: revision conflict")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("storage: store is closed")

	// ErrInvalidDocument is returned for writes without a document ID.
	ErrInvalidDocument = errors.New("storage: invalid document")
)

// AllDocsOptions controls AllDocs enumeration.
type AllDocsOptions struct {
	// IncludeDocs attaches the full document to each row.
	IncludeDocs bool

	// Prefix restricts enumeration to IDs with this prefix.
	Prefix string

	// Limit caps the number of rows returned; 0 means no limit.
	Limit int
}

// Row is a single AllDocs result.
type Row struct {
	ID  string
	Rev uint64

	// Doc is nil unless AllDocsOptions.IncludeDocs was set.
	Doc *Document
}

// DocumentStore is a single named store of documents.
type DocumentStore interface {
	// Get retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, id string) (*Document, error)

	// Put writes a document. A zero revision creates; a non-zero
	// revision replaces iff it matches the stored revision. Returns
	// the stored document carrying the new revision, or ErrConflict.
	Put(ctx context.Context, doc *Document) (*Document, error)

	// Remove deletes a document iff rev matches the stored revision.
	// Returns ErrNotFound for missing documents and ErrConflict for
	// revision mismatches.
	Remove(ctx context.Context, id string, rev uint64) error

	// AllDocs enumerates documents ordered by ID ascending.
	AllDocs(ctx context.Context, opts AllDocsOptions) ([]Row, error)

	// Find returns documents matching the query selector.
	Find(ctx context.Context, q Query) ([]*Document, error)

	// Count returns the number of documents in the store.
	Count(ctx context.Context) (int, error)

	// Destroy erases all data held by this store and closes it.
	Destroy(ctx context.Context) error

	// Close releases the store handle without touching its data.
	Close() error
}

// Adapter produces document stores for named locations.
//
// An adapter owns the physical medium (process memory, a Badger
// directory); the database core owns which locations exist.
type Adapter interface {
	// Name identifies the adapter kind, e.g. "memory" or "badger".
	Name() string

	// OpenStore opens (creating if needed) the store at location.
	OpenStore(ctx context.Context, location string) (DocumentStore, error)

	// RemoveStore erases all data at location without opening it.
	// Removing a missing location is not an error.
	RemoveStore(ctx context.Context, location string) error
}
