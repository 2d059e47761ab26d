package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"

	"github.com/hoanglam10499/rxdb/storage"
)

// Store is a prefix-scoped view onto the adapter's shared keyspace.
type Store struct {
	adapter *Adapter
	prefix  []byte
	closed  atomic.Bool
}

func (s *Store) guard() error {
	if s.closed.Load() || s.adapter.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

// docKey builds the full key for a document ID. Always a fresh buffer
// so concurrent callers never share backing arrays.
func (s *Store) docKey(id string) []byte {
	key := make([]byte, 0, len(s.prefix)+len(id))
	key = append(key, s.prefix...)
	key = append(key, id...)
	return key
}

func decodeDocument(raw []byte) (*storage.Document, error) {
	var doc storage.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("badgerstore: decode document: %w", err)
	}
	return &doc, nil
}

// Get retrieves a document by ID.
func (s *Store) Get(_ context.Context, id string) (*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var doc *storage.Document
	err := s.adapter.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.docKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(raw []byte) error {
			doc, err = decodeDocument(raw)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put writes a document with optimistic locking. The revision check
// and the write share one transaction; when two writers race, Badger's
// conflict detection fails the loser's commit and it surfaces as
// ErrConflict.
func (s *Store) Put(_ context.Context, doc *storage.Document) (*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if doc == nil || doc.ID == "" {
		return nil, storage.ErrInvalidDocument
	}

	stored := doc.Clone()
	key := s.docKey(doc.ID)

	err := s.adapter.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if doc.Rev != 0 {
				return storage.ErrNotFound
			}
			stored.Rev = 1
		case err != nil:
			return err
		default:
			if doc.Rev == 0 {
				return storage.ErrConflict
			}
			var currentRev uint64
			verr := item.Value(func(raw []byte) error {
				current, derr := decodeDocument(raw)
				if derr != nil {
					return derr
				}
				currentRev = current.Rev
				return nil
			})
			if verr != nil {
				return verr
			}
			if currentRev != doc.Rev {
				return storage.ErrConflict
			}
			stored.Rev = doc.Rev + 1
		}

		raw, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("badgerstore: encode document: %w", err)
		}
		return txn.Set(key, raw)
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return nil, storage.ErrConflict
		}
		return nil, err
	}
	return stored, nil
}

// Remove deletes a document iff rev matches the stored revision.
func (s *Store) Remove(_ context.Context, id string, rev uint64) error {
	if err := s.guard(); err != nil {
		return err
	}

	key := s.docKey(id)
	err := s.adapter.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var currentRev uint64
		verr := item.Value(func(raw []byte) error {
			current, derr := decodeDocument(raw)
			if derr != nil {
				return derr
			}
			currentRev = current.Rev
			return nil
		})
		if verr != nil {
			return verr
		}
		if currentRev != rev {
			return storage.ErrConflict
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrConflict
	}
	return err
}

// AllDocs enumerates documents ordered by ID ascending. Badger
// iterates keys in byte order, which matches ID order under the fixed
// location prefix.
func (s *Store) AllDocs(_ context.Context, opts storage.AllDocsOptions) ([]storage.Row, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	scanPrefix := s.prefix
	if opts.Prefix != "" {
		scanPrefix = s.docKey(opts.Prefix)
	}

	var rows []storage.Row
	err := s.adapter.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = scanPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if opts.Limit > 0 && len(rows) >= opts.Limit {
				break
			}
			item := it.Item()
			row := storage.Row{ID: string(item.Key()[len(s.prefix):])}

			err := item.Value(func(raw []byte) error {
				doc, derr := decodeDocument(raw)
				if derr != nil {
					return derr
				}
				row.Rev = doc.Rev
				if opts.IncludeDocs {
					row.Doc = doc
				}
				return nil
			})
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Find returns documents matching the query selector, ordered by ID.
func (s *Store) Find(_ context.Context, q storage.Query) ([]*storage.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var docs []*storage.Document
	err := s.adapter.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = s.prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if q.Limit > 0 && len(docs) >= q.Limit {
				break
			}
			err := it.Item().Value(func(raw []byte) error {
				doc, derr := decodeDocument(raw)
				if derr != nil {
					return derr
				}
				if q.Matches(doc) {
					docs = append(docs, doc)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	count := 0
	err := s.adapter.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = s.prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Destroy erases every document under this store's location.
func (s *Store) Destroy(_ context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.closed.Store(true)
	if err := s.adapter.db.DropPrefix(s.prefix); err != nil {
		return fmt.Errorf("badgerstore: drop prefix: %w", err)
	}
	return nil
}

// Close detaches this handle. The data stays in the adapter's DB.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
