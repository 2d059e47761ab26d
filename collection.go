package rxdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hoanglam10499/rxdb/pkg/crypto/adaptive"
	"github.com/hoanglam10499/rxdb/pkg/ident"
	"github.com/hoanglam10499/rxdb/schema"
	"github.com/hoanglam10499/rxdb/storage"
	"github.com/hoanglam10499/rxdb/storage/encrypted"
)

// MigrationStrategy transforms a document from the previous schema
// version to the one it is registered for. Strategies are carried on
// the collection for future migration tooling; nothing runs them yet.
type MigrationStrategy func(ctx context.Context, doc *storage.Document) (*storage.Document, error)

// CollectionConfig describes a collection to open.
type CollectionConfig struct {
	// Name of the collection. Lowercase identifiers; names starting
	// with "_" and names shadowing database members are rejected.
	Name string

	// Schema is required and gates what the store may already hold.
	Schema *schema.Schema

	// Settings are opaque adapter hints, persisted nowhere.
	Settings map[string]any

	// MigrationStrategies maps each schema version above zero to the
	// strategy that lifts documents from the version below it.
	MigrationStrategies map[int]MigrationStrategy
}

// reservedCollectionNames shadow members of the database handle and
// cannot be collection names.
var reservedCollectionNames = map[string]struct{}{
	"adapter":     {},
	"changes":     {},
	"collections": {},
	"destroy":     {},
	"emit":        {},
	"name":        {},
	"password":    {},
	"remove":      {},
	"token":       {},
}

// collectionKey renders the versioned store key, e.g. "books-2".
func collectionKey(name string, version int) string {
	return fmt.Sprintf("%s-%d", name, version)
}

// Collection is one open, schema-validated collection.
type Collection struct {
	name     string
	db       *Database
	schema   *schema.Schema
	compiled *schema.Compiled
	store    storage.DocumentStore

	settings   map[string]any
	migrations map[int]MigrationStrategy

	destroyed atomic.Bool
}

// Name returns the collection name, without the version suffix.
func (c *Collection) Name() string { return c.name }

// Version returns the schema version this collection was opened at.
func (c *Collection) Version() int { return c.compiled.Version }

// SchemaHash returns the canonical hash of the active schema.
func (c *Collection) SchemaHash() string { return c.compiled.Hash }

// Schema returns the schema the collection was opened with.
func (c *Collection) Schema() *schema.Schema { return c.schema }

// Store exposes the underlying document store. On encrypted
// collections this is the encrypting wrapper, so documents pass
// through it in clear text.
func (c *Collection) Store() storage.DocumentStore { return c.store }

// Database returns the owning handle.
func (c *Collection) Database() *Database { return c.db }

// MigrationStrategy returns the registered strategy for version, if any.
func (c *Collection) MigrationStrategy(version int) (MigrationStrategy, bool) {
	m, ok := c.migrations[version]
	return m, ok
}

// Insert creates a document and emits an insert event.
func (c *Collection) Insert(ctx context.Context, id string, data map[string]any) (*storage.Document, error) {
	if c.destroyed.Load() {
		return nil, ErrDestroyed.WithField("collection", c.name)
	}
	stored, err := c.store.Put(ctx, storage.NewDocument(id, data))
	if err != nil {
		return nil, err
	}
	c.emitDocEvent(OpInsert, stored)
	return stored, nil
}

// Upsert creates the document or replaces the current revision,
// retrying a bounded number of times when writers race.
func (c *Collection) Upsert(ctx context.Context, id string, data map[string]any) (*storage.Document, error) {
	if c.destroyed.Load() {
		return nil, ErrDestroyed.WithField("collection", c.name)
	}
	for attempt := 0; attempt < 3; attempt++ {
		doc := storage.NewDocument(id, data)
		op := OpInsert
		if current, err := c.store.Get(ctx, id); err == nil {
			doc.Rev = current.Rev
			op = OpUpdate
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		stored, err := c.store.Put(ctx, doc)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.emitDocEvent(op, stored)
		return stored, nil
	}
	return nil, storage.ErrConflict
}

// FindByID retrieves one document.
func (c *Collection) FindByID(ctx context.Context, id string) (*storage.Document, error) {
	return c.store.Get(ctx, id)
}

// Find returns documents matching selector.
func (c *Collection) Find(ctx context.Context, selector map[string]any) ([]*storage.Document, error) {
	return c.store.Find(ctx, storage.Query{Selector: selector})
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Remove deletes a document by ID, retrying when writers race, and
// emits a remove event. Removing a missing document is an error.
func (c *Collection) Remove(ctx context.Context, id string) error {
	if c.destroyed.Load() {
		return ErrDestroyed.WithField("collection", c.name)
	}
	for attempt := 0; attempt < 3; attempt++ {
		current, err := c.store.Get(ctx, id)
		if err != nil {
			return err
		}
		err = c.store.Remove(ctx, id, current.Rev)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
		c.emitDocEvent(OpRemove, current)
		return nil
	}
	return storage.ErrConflict
}

// Changes returns the database change feed filtered to this
// collection, plus a cancel func.
func (c *Collection) Changes() (<-chan ChangeEvent, func()) {
	src, cancel := c.db.bus.Subscribe()
	out := make(chan ChangeEvent, c.db.bus.buffer)
	go func() {
		defer close(out)
		for ev := range src {
			if ev.Collection != c.name {
				continue
			}
			select {
			case out <- ev:
			default:
				c.db.bus.dropped.Add(1)
			}
		}
	}()
	return out, cancel
}

// Destroy closes the collection on this handle and removes it from
// the open set. The stored documents survive; RemoveCollection
// erases them.
func (c *Collection) Destroy() error {
	if err := c.close(); err != nil {
		return err
	}
	c.db.collections.Delete(c.name)
	return nil
}

func (c *Collection) close() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	return c.store.Close()
}

func (c *Collection) emitDocEvent(op string, doc *storage.Document) {
	c.db.Emit(ChangeEvent{
		Collection: c.name,
		Operation:  op,
		DocumentID: doc.ID,
	})
}

// CreateCollection validates, opens and registers a collection on
// this handle. The work after name validation runs on the locked
// queue, so concurrent creations and a racing destroy serialize.
//
// The per-version store may outlive the schema that created it; the
// persisted descriptor remembers the schema hash, and redefining a
// version with a different schema is only allowed while the store
// holds no documents.
func (db *Database) CreateCollection(ctx context.Context, cfg CollectionConfig) (*Collection, error) {
	if db.destroyed.Load() {
		return nil, ErrDestroyed.WithField("database", db.name)
	}
	if err := db.validateCollectionName(cfg.Name); err != nil {
		return nil, err
	}
	if cfg.Schema == nil {
		return nil, ErrMissingSchema.WithField("collection", cfg.Name)
	}

	return runLocked(ctx, db.queue, func(ctx context.Context) (*Collection, error) {
		return db.createCollectionLocked(ctx, cfg)
	})
}

func (db *Database) validateCollectionName(name string) error {
	if name == "" {
		return ErrReservedName.WithField("reason", "collection name is empty")
	}
	if strings.HasPrefix(name, "_") {
		return ErrReservedName.WithField("collection", name)
	}
	if _, ok := reservedCollectionNames[strings.ToLower(name)]; ok {
		return ErrNameCollision.WithField("collection", name)
	}
	if db.collections.Has(name) {
		return ErrAlreadyOpen.WithField("collection", name)
	}
	return nil
}

func (db *Database) createCollectionLocked(ctx context.Context, cfg CollectionConfig) (*Collection, error) {
	// Re-check under the lock: a racing creation may have won the
	// queue slot ahead of us.
	if db.collections.Has(cfg.Name) {
		return nil, ErrAlreadyOpen.WithField("collection", cfg.Name)
	}

	compiled, err := db.compiler.Compile(cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", cfg.Name, err)
	}
	if len(compiled.EncryptedPaths) > 0 && db.password == "" {
		return nil, ErrEncryptionRequiresPassword.WithFields(map[string]any{
			"collection": cfg.Name,
			"fields":     strings.Join(compiled.EncryptedPaths, ","),
		})
	}

	key := collectionKey(cfg.Name, compiled.Version)

	descriptor, err := db.descriptorStore.Get(ctx, key)
	switch {
	case err == nil:
		storedHash, _ := descriptor.Data["schema_hash"].(string)
		if storedHash != compiled.Hash {
			count, cerr := db.countStoredDocuments(ctx, key)
			if cerr != nil {
				return nil, fmt.Errorf("probe store %q: %w", key, cerr)
			}
			if count > 0 {
				return nil, ErrSchemaMismatch.WithFields(map[string]any{
					"collection":  cfg.Name,
					"version":     compiled.Version,
					"stored_hash": storedHash,
					"schema_hash": compiled.Hash,
					"documents":   count,
				})
			}
			// Empty store: the redefined schema wins. Lost update
			// races mean a sibling redefined it the same way.
			descriptor.Data["schema_hash"] = compiled.Hash
			descriptor.Data["normalized"] = string(compiled.Normalized)
			if werr := db.descriptorWrite(ctx, descriptor); werr != nil {
				return nil, werr
			}
		}
	case errors.Is(err, storage.ErrNotFound):
		descriptor = nil
	default:
		return nil, fmt.Errorf("read descriptor %q: %w", key, err)
	}

	store, err := db.openCollectionStore(ctx, key, compiled)
	if err != nil {
		return nil, err
	}

	if descriptor == nil {
		if werr := db.descriptorWrite(ctx, storage.NewDocument(key, map[string]any{
			"name":        cfg.Name,
			"version":     compiled.Version,
			"schema_hash": compiled.Hash,
			"normalized":  string(compiled.Normalized),
		})); werr != nil {
			store.Close()
			return nil, werr
		}
	}

	col := &Collection{
		name:       cfg.Name,
		db:         db,
		schema:     cfg.Schema,
		compiled:   compiled,
		store:      store,
		settings:   cfg.Settings,
		migrations: cfg.MigrationStrategies,
	}
	db.collections.Set(cfg.Name, col)

	db.Emit(ChangeEvent{
		Collection: cfg.Name,
		Operation:  OpCollectionCreate,
		Payload: map[string]any{
			"version":     compiled.Version,
			"schema_hash": compiled.Hash,
		},
		Intern: true,
	})
	db.logger.Info("collection created",
		"collection", cfg.Name, "version", compiled.Version)
	return col, nil
}

// countStoredDocuments opens the per-version store just long enough
// to count it.
func (db *Database) countStoredDocuments(ctx context.Context, key string) (int, error) {
	store, err := db.adapter.OpenStore(ctx, db.location(key))
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.Count(ctx)
}

// openCollectionStore opens the per-version store, wrapped in the
// encrypting layer when the schema marks fields encrypted. The field
// key derives from the password salted with the storage token, so
// every handle on this database derives the same key.
func (db *Database) openCollectionStore(ctx context.Context, key string, compiled *schema.Compiled) (storage.DocumentStore, error) {
	location := db.location(key)
	store, err := db.adapter.OpenStore(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", location, err)
	}
	if len(compiled.EncryptedPaths) == 0 {
		return store, nil
	}

	cipher, err := adaptiveCipher(db.password, db.storageToken)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("derive collection cipher: %w", err)
	}
	wrapped, err := encrypted.Wrap(store, cipher, location, compiled.EncryptedPaths)
	if err != nil {
		store.Close()
		return nil, err
	}
	return wrapped, nil
}

// descriptorWrite persists a collection descriptor with the same
// tolerance as the administrative bootstrap writes: lost races are
// fine, other failures obey StrictAdminWrites.
func (db *Database) descriptorWrite(ctx context.Context, doc *storage.Document) error {
	_, err := db.descriptorStore.Put(ctx, doc)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConflict):
		db.logger.Debug("descriptor write lost race", "doc", doc.ID)
		return nil
	case db.strictAdminWrites:
		return fmt.Errorf("write descriptor %q: %w", doc.ID, err)
	default:
		db.logger.Warn("descriptor write failed", "doc", doc.ID, "error", err)
		return nil
	}
}

// GetCollection returns the already-open collection by bare name. No
// validation or store access happens on this path.
func (db *Database) GetCollection(name string) (*Collection, bool) {
	return db.collections.Get(name)
}

// MustCollection is GetCollection for collections known to be open;
// it panics otherwise.
func (db *Database) MustCollection(name string) *Collection {
	col, ok := db.collections.Get(name)
	if !ok {
		panic(fmt.Sprintf("rxdb: collection %q is not open", name))
	}
	return col
}

// Collections returns the names of the open collections, sorted.
func (db *Database) Collections() []string {
	names := db.collections.Keys()
	sort.Strings(names)
	return names
}

// RemoveCollection erases a collection: the live object if open, and
// the descriptor plus the physical store of every schema version the
// database ever persisted for that name. Removing a collection that
// never existed is a no-op.
func (db *Database) RemoveCollection(ctx context.Context, name string) error {
	if db.destroyed.Load() {
		return ErrDestroyed.WithField("database", db.name)
	}
	return db.queue.Run(ctx, func(ctx context.Context) error {
		return db.removeCollectionLocked(ctx, name)
	})
}

func (db *Database) removeCollectionLocked(ctx context.Context, name string) error {
	var errs []error

	if col, ok := db.collections.Pop(name); ok {
		if err := col.close(); err != nil {
			errs = append(errs, err)
		}
	}

	descriptors, err := db.descriptorStore.Find(ctx, storage.Query{
		Selector: map[string]any{"name": name},
	})
	if err != nil {
		return fmt.Errorf("list descriptors for %q: %w", name, err)
	}

	for _, desc := range descriptors {
		if rerr := db.descriptorStore.Remove(ctx, desc.ID, desc.Rev); rerr != nil && !errors.Is(rerr, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete descriptor %q: %w", desc.ID, rerr))
		}
		if rerr := db.adapter.RemoveStore(ctx, db.location(desc.ID)); rerr != nil {
			errs = append(errs, fmt.Errorf("remove store %q: %w", desc.ID, rerr))
		}
	}

	if len(descriptors) > 0 {
		db.logger.Info("collection removed",
			"collection", name, "versions", len(descriptors))
	}
	return errors.Join(errs...)
}

// adaptiveCipher builds the field cipher for password-protected
// collections.
func adaptiveCipher(password, storageToken string) (adaptive.Cipher, error) {
	key := ident.DeriveKey(password, []byte(storageToken), 32)
	return adaptive.New(key)
}
