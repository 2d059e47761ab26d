// Package memory provides in-process document storage.
//
// It implements the storage contracts using concurrent-safe data
// structures with sharded locking. Stores opened from the same
// Adapter share state by location, so several database handles backed
// by one adapter observe each other's writes. Data lives only as long
// as the adapter value itself.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hoanglam10499/rxdb/pkg/cmap"
	"github.com/hoanglam10499/rxdb/storage"
)

// Adapter hands out in-memory document stores keyed by location.
type Adapter struct {
	namespaces *cmap.Map[string, *namespace]
}

// namespace is the shared backing state for one location. Every Store
// opened at that location points at the same namespace.
type namespace struct {
	docs      *cmap.Map[string, *storage.Document]
	destroyed atomic.Bool
}

// New creates a new in-memory adapter.
func New() *Adapter {
	return &Adapter{
		namespaces: cmap.New[string, *namespace](),
	}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "memory" }

// OpenStore opens the document store at the given location, creating
// its backing state on first open.
func (a *Adapter) OpenStore(_ context.Context, location string) (storage.DocumentStore, error) {
	ns, _ := a.namespaces.GetOrSet(location, &namespace{
		docs: cmap.New[string, *storage.Document](),
	})
	return &Store{adapter: a, location: location, ns: ns}, nil
}

// RemoveStore wipes the backing state at the given location. A missing
// location is not an error.
func (a *Adapter) RemoveStore(_ context.Context, location string) error {
	ns, ok := a.namespaces.Pop(location)
	if !ok {
		return nil
	}
	ns.destroyed.Store(true)
	ns.docs.Clear()
	return nil
}

// Store is one handle onto an in-memory namespace.
type Store struct {
	adapter  *Adapter
	location string
	ns       *namespace
	closed   atomic.Bool
}

func (s *Store) guard() error {
	if s.closed.Load() || s.ns.destroyed.Load() {
		return storage.ErrClosed
	}
	return nil
}

// Get retrieves a document by ID.
func (s *Store) Get(_ context.Context, id string) (*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	doc, ok := s.ns.docs.Get(id)
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Return a clone to prevent external modification.
	return doc.Clone(), nil
}

// Put writes a document with optimistic locking. A zero revision
// creates, a non-zero revision replaces iff it matches the stored one.
func (s *Store) Put(_ context.Context, doc *storage.Document) (*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if doc == nil || doc.ID == "" {
		return nil, storage.ErrInvalidDocument
	}

	// Store a clone so later caller mutations don't leak in.
	clone := doc.Clone()

	if doc.Rev == 0 {
		clone.Rev = 1
		if !s.ns.docs.SetIfAbsent(doc.ID, clone) {
			return nil, storage.ErrConflict
		}
		return clone.Clone(), nil
	}

	if !cmap.CompareAndSwap(s.ns.docs, doc.ID, doc.Rev, clone) {
		if !s.ns.docs.Has(doc.ID) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.ErrConflict
	}
	return clone.Clone(), nil
}

// Remove deletes a document iff rev matches the stored revision.
func (s *Store) Remove(_ context.Context, id string, rev uint64) error {
	if err := s.guard(); err != nil {
		return err
	}

	if !cmap.CompareAndDelete(s.ns.docs, id, rev) {
		if !s.ns.docs.Has(id) {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// AllDocs enumerates documents ordered by ID ascending.
func (s *Store) AllDocs(_ context.Context, opts storage.AllDocsOptions) ([]storage.Row, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var rows []storage.Row
	s.ns.docs.Range(func(id string, doc *storage.Document) bool {
		if opts.Prefix != "" && !strings.HasPrefix(id, opts.Prefix) {
			return true
		}
		row := storage.Row{ID: id, Rev: doc.Rev}
		if opts.IncludeDocs {
			row.Doc = doc.Clone()
		}
		rows = append(rows, row)
		return true
	})

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

// Find returns documents matching the query selector, ordered by ID.
func (s *Store) Find(_ context.Context, q storage.Query) ([]*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var docs []*storage.Document
	s.ns.docs.Range(func(_ string, doc *storage.Document) bool {
		if q.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
		return true
	})

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	return s.ns.docs.Count(), nil
}

// Destroy wipes the namespace for every handle pointing at it and
// removes it from the adapter.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.closed.Store(true)
	return s.adapter.RemoveStore(ctx, s.location)
}

// Close detaches this handle. The namespace and its documents survive
// for other handles and later reopens.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
