// Package encrypted wraps a document store with field-level encryption.
//
// Fields marked encrypted in the collection schema are sealed with an
// AEAD cipher before they reach the inner store and opened again on
// the way out. The additional data binds each ciphertext to its
// location, document ID and field name, so envelopes cannot be moved
// between documents without detection. The primary key and all other
// fields stay in the clear.
package encrypted

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hoanglam10499/rxdb/pkg/crypto/adaptive"
	"github.com/hoanglam10499/rxdb/storage"
)

// envelopePrefix marks an encrypted field value at rest.
const envelopePrefix = "rxenc1:"

// ErrSelectorOnEncryptedField is returned when a query selector
// touches an encrypted field. Ciphertext cannot be matched.
var ErrSelectorOnEncryptedField = errors.New("encrypted: selector on encrypted field")

// Store seals configured fields before delegating to an inner store.
type Store struct {
	inner    storage.DocumentStore
	cipher   adaptive.Cipher
	location string
	fields   map[string]struct{}
}

// Wrap builds an encrypting store around inner. fields lists the
// top-level field names to seal; location scopes the additional data.
func Wrap(inner storage.DocumentStore, cipher adaptive.Cipher, location string, fields []string) (*Store, error) {
	if inner == nil {
		return nil, fmt.Errorf("encrypted: inner store is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("encrypted: cipher is required")
	}

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &Store{inner: inner, cipher: cipher, location: location, fields: set}, nil
}

// additionalData binds a ciphertext to its exact slot.
func (s *Store) additionalData(id, field string) []byte {
	return []byte(s.location + "/" + id + "/" + field)
}

// seal encrypts the configured fields of doc in place on a clone.
func (s *Store) seal(doc *storage.Document) (*storage.Document, error) {
	if len(s.fields) == 0 || doc == nil || len(doc.Data) == 0 {
		return doc, nil
	}

	sealed := doc.Clone()
	for field := range s.fields {
		value, ok := sealed.Data[field]
		if !ok {
			continue
		}
		plain, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encrypted: encode field %q: %w", field, err)
		}
		box, err := s.cipher.Encrypt(plain, s.additionalData(doc.ID, field))
		if err != nil {
			return nil, fmt.Errorf("encrypted: seal field %q: %w", field, err)
		}
		sealed.Data[field] = envelopePrefix + base64.RawStdEncoding.EncodeToString(box)
	}
	return sealed, nil
}

// open decrypts the configured fields of doc in place.
func (s *Store) open(doc *storage.Document) (*storage.Document, error) {
	if len(s.fields) == 0 || doc == nil || len(doc.Data) == 0 {
		return doc, nil
	}

	for field := range s.fields {
		value, ok := doc.Data[field]
		if !ok {
			continue
		}
		envelope, ok := value.(string)
		if !ok || !strings.HasPrefix(envelope, envelopePrefix) {
			return nil, fmt.Errorf("encrypted: field %q of %q is not an envelope", field, doc.ID)
		}
		box, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(envelope, envelopePrefix))
		if err != nil {
			return nil, fmt.Errorf("encrypted: decode field %q of %q: %w", field, doc.ID, err)
		}
		plain, err := s.cipher.Decrypt(box, s.additionalData(doc.ID, field))
		if err != nil {
			return nil, fmt.Errorf("encrypted: open field %q of %q: %w", field, doc.ID, err)
		}
		var restored any
		if err := json.Unmarshal(plain, &restored); err != nil {
			return nil, fmt.Errorf("encrypted: restore field %q of %q: %w", field, doc.ID, err)
		}
		doc.Data[field] = restored
	}
	return doc, nil
}

// Get retrieves and decrypts a document.
func (s *Store) Get(ctx context.Context, id string) (*storage.Document, error) {
	doc, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(doc)
}

// Put encrypts the configured fields and writes the document. The
// returned document carries the new revision with plaintext data.
func (s *Store) Put(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	sealed, err := s.seal(doc)
	if err != nil {
		return nil, err
	}
	stored, err := s.inner.Put(ctx, sealed)
	if err != nil {
		return nil, err
	}

	// Hand back plaintext rather than the stored envelopes.
	result := doc.Clone()
	result.Rev = stored.Rev
	return result, nil
}

// Remove deletes a document iff rev matches the stored revision.
func (s *Store) Remove(ctx context.Context, id string, rev uint64) error {
	return s.inner.Remove(ctx, id, rev)
}

// AllDocs enumerates documents, decrypting loaded bodies.
func (s *Store) AllDocs(ctx context.Context, opts storage.AllDocsOptions) ([]storage.Row, error) {
	rows, err := s.inner.AllDocs(ctx, opts)
	if err != nil {
		return nil, err
	}
	if !opts.IncludeDocs {
		return rows, nil
	}
	for i := range rows {
		if rows[i].Doc == nil {
			continue
		}
		if _, err := s.open(rows[i].Doc); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Find runs a selector query. Selectors on encrypted fields are
// rejected because the inner store only sees ciphertext.
func (s *Store) Find(ctx context.Context, q storage.Query) ([]*storage.Document, error) {
	for field := range q.Selector {
		if _, ok := s.fields[field]; ok {
			return nil, fmt.Errorf("%w: %q", ErrSelectorOnEncryptedField, field)
		}
	}

	docs, err := s.inner.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if _, err := s.open(doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

// Destroy erases all data in the inner store.
func (s *Store) Destroy(ctx context.Context) error {
	return s.inner.Destroy(ctx)
}

// Close closes the inner store.
func (s *Store) Close() error {
	return s.inner.Close()
}
