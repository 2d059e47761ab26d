package rxdb

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hoanglam10499/rxdb/cluster"
	"github.com/hoanglam10499/rxdb/pkg/cmap"
	"github.com/hoanglam10499/rxdb/schema"
	"github.com/hoanglam10499/rxdb/storage"
)

// Internal store locations, relative to the database name.
const (
	adminStoreName      = "_admin"
	descriptorStoreName = "_collections"
)

// Database is one handle on a named database. Several handles may
// share the same underlying storage, in the same process or not; the
// storage token ties them together and the coordinator keeps their
// subscribers in sync.
type Database struct {
	name              string
	adapter           storage.Adapter
	password          string
	multiInstance     bool
	strictAdminWrites bool

	// token identifies this handle; storageToken identifies the
	// storage every handle on this data shares.
	token        string
	storageToken string

	logger   *slog.Logger
	registry *InstanceRegistry
	compiler schema.Compiler

	queue    *execQueue
	bus      *bus
	coord    *coordinator
	election cluster.LeaderElection

	adminStore      storage.DocumentStore
	descriptorStore storage.DocumentStore

	collections *cmap.Map[string, *Collection]

	destroyed   atomic.Bool
	destroyedCh chan struct{}
}

// Name returns the database name.
func (db *Database) Name() string { return db.name }

// Token returns this handle's instance token. It differs between two
// handles on the same data.
func (db *Database) Token() string { return db.token }

// StorageToken returns the token shared by every handle on this
// database's storage.
func (db *Database) StorageToken() string { return db.storageToken }

// AdapterName returns the storage adapter kind.
func (db *Database) AdapterName() string { return db.adapter.Name() }

// MultiInstance reports whether the handle participates in
// cross-instance coordination.
func (db *Database) MultiInstance() bool { return db.multiInstance }

// Destroyed reports whether Destroy has run.
func (db *Database) Destroyed() bool { return db.destroyed.Load() }

// IsLeader reports whether this handle currently holds leadership.
// Single-instance handles always do.
func (db *Database) IsLeader() bool {
	return db.election.IsLeader()
}

// WaitForLeadership blocks until this handle becomes the leader or
// ctx expires. With multi-instance off it returns immediately. When
// the handle is destroyed while waiting, the wait ends with
// ErrDestroyed, never with a leadership grant.
func (db *Database) WaitForLeadership(ctx context.Context) error {
	if db.destroyed.Load() {
		return ErrDestroyed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-db.destroyedCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	err := db.election.WaitForLeadership(waitCtx)
	if err != nil && db.destroyed.Load() {
		return ErrDestroyed
	}
	return err
}

// Changes returns a feed of every change event this handle observes,
// local and remote, plus a cancel func.
func (db *Database) Changes() (<-chan ChangeEvent, func()) {
	return db.bus.Subscribe()
}

// Emit publishes a change event through this handle. The origin is
// forced to the handle's token so the forwarding rule stays sound.
func (db *Database) Emit(ev ChangeEvent) {
	if db.destroyed.Load() {
		return
	}
	if ev.ID == "" {
		ev.ID = newEventID()
	}
	ev.Origin = db.token
	db.bus.Emit(ev)
}

// location renders the adapter location for a store of this database.
func (db *Database) location(store string) string {
	return db.name + "/" + store
}

// Destroy closes the handle: it drains pending locked operations,
// detaches from the transport and the election, closes every open
// collection and the internal stores, and unregisters the instance.
// The data survives; Remove erases it. Destroy is idempotent and
// returns the combined teardown errors.
func (db *Database) Destroy(ctx context.Context) error {
	if !db.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	close(db.destroyedCh)

	var errs []error

	// Let in-flight collection operations finish before tearing
	// their dependencies down.
	if err := db.queue.Barrier(ctx); err != nil {
		errs = append(errs, err)
	}
	db.queue.Close()

	if db.coord != nil {
		if err := db.coord.destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.election.Destroy(); err != nil {
		errs = append(errs, err)
	}

	db.bus.Close()

	db.collections.Range(func(name string, col *Collection) bool {
		if err := col.close(); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	db.collections.Clear()

	if err := db.adminStore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := db.descriptorStore.Close(); err != nil {
		errs = append(errs, err)
	}

	db.registry.HandleDestroyed()
	db.registry.Unregister(db.name, db.adapter.Name())

	db.logger.Info("database destroyed")
	return errors.Join(errs...)
}

// Remove destroys the handle and then erases the database from the
// adapter: every collection store of every version, the collection
// descriptors and the administrative store.
func (db *Database) Remove(ctx context.Context) error {
	// Snapshot the descriptor keys through a fresh handle; the
	// handle's own store is gone once Destroy ran.
	locations, listErr := collectionLocations(ctx, db.adapter, db.name)

	var errs []error
	if err := db.Destroy(ctx); err != nil {
		errs = append(errs, err)
	}
	if listErr != nil {
		errs = append(errs, listErr)
	}
	if err := removePhysical(ctx, db.adapter, db.name, locations); err != nil {
		errs = append(errs, err)
	}
	db.logger.Info("database removed")
	return errors.Join(errs...)
}

// collectionLocations lists the per-version collection store keys
// recorded in the descriptor store of database name.
func collectionLocations(ctx context.Context, adapter storage.Adapter, name string) ([]string, error) {
	store, err := adapter.OpenStore(ctx, name+"/"+descriptorStoreName)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rows, err := store.AllDocs(ctx, storage.AllDocsOptions{})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.ID)
	}
	return keys, nil
}

// removePhysical erases the stores of database name: the listed
// collection keys plus the two internal stores.
func removePhysical(ctx context.Context, adapter storage.Adapter, name string, collectionKeys []string) error {
	var errs []error
	for _, key := range collectionKeys {
		if err := adapter.RemoveStore(ctx, name+"/"+key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := adapter.RemoveStore(ctx, name+"/"+descriptorStoreName); err != nil {
		errs = append(errs, err)
	}
	if err := adapter.RemoveStore(ctx, name+"/"+adminStoreName); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
