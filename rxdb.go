// Package rxdb is an embedded, reactive, schema-aware document
// database. A Database handle multiplexes named collections over a
// pluggable storage adapter, validates every collection against a
// versioned schema, and fans document changes out to subscribers as
// change events.
//
// Several handles may share one database, inside a process or across
// processes. A storage token persisted alongside the data ties the
// handles together; with multi-instance enabled, change events cross
// a cluster transport exactly once and the handles elect a leader.
package rxdb

import (
	"context"
	"errors"
	"sync"

	"github.com/hoanglam10499/rxdb/cluster"
	"github.com/hoanglam10499/rxdb/cluster/inproc"
	"github.com/hoanglam10499/rxdb/pkg/cmap"
	"github.com/hoanglam10499/rxdb/pkg/ident"
	"github.com/hoanglam10499/rxdb/storage"
)

// Process-wide hubs for default multi-instance wiring, keyed by
// storage token so only handles on the same data meet. Hubs live for
// the process lifetime.
var (
	hubMu sync.Mutex
	hubs  = make(map[string]*inproc.Hub)
)

func sharedHub(storageToken string) *inproc.Hub {
	hubMu.Lock()
	defer hubMu.Unlock()
	hub, ok := hubs[storageToken]
	if !ok {
		hub = inproc.NewHub()
		hubs[storageToken] = hub
	}
	return hub
}

// Open creates a database handle.
//
// Opening blocks until the handle's identity is established: the
// password is verified against the stored hash and the shared storage
// token is read or created. Two handles racing to create the token
// converge on one value; the loser adopts the winner's.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := cfg.Registry.Register(cfg.Name, cfg.Adapter.Name(), cfg.AllowDuplicate); err != nil {
		return nil, err
	}

	db := &Database{
		name:              cfg.Name,
		adapter:           cfg.Adapter,
		password:          cfg.Password,
		multiInstance:     cfg.MultiInstance,
		strictAdminWrites: cfg.StrictAdminWrites,
		token:             ident.MustUID("rxh-"),
		logger:            cfg.Logger.With("db", cfg.Name),
		registry:          cfg.Registry,
		compiler:          cfg.Compiler,
		collections:       cmap.New[string, *Collection](),
		destroyedCh:       make(chan struct{}),
	}

	var err error
	if db.adminStore, err = cfg.Adapter.OpenStore(ctx, db.location(adminStoreName)); err != nil {
		cfg.Registry.Unregister(cfg.Name, cfg.Adapter.Name())
		return nil, err
	}
	if db.descriptorStore, err = cfg.Adapter.OpenStore(ctx, db.location(descriptorStoreName)); err != nil {
		db.adminStore.Close()
		cfg.Registry.Unregister(cfg.Name, cfg.Adapter.Name())
		return nil, err
	}

	if err = db.bootstrapIdentity(ctx); err != nil {
		db.adminStore.Close()
		db.descriptorStore.Close()
		cfg.Registry.Unregister(cfg.Name, cfg.Adapter.Name())
		return nil, err
	}

	db.bus = newBus(db.logger, db.token, cfg.EventBuffer)
	db.queue = newExecQueue(db.logger)

	if err = db.wireCluster(cfg); err != nil {
		db.queue.Close()
		db.bus.Close()
		db.adminStore.Close()
		db.descriptorStore.Close()
		cfg.Registry.Unregister(cfg.Name, cfg.Adapter.Name())
		return nil, err
	}

	cfg.Registry.HandleCreated()
	db.logger.Info("database opened",
		"adapter", cfg.Adapter.Name(),
		"multi_instance", cfg.MultiInstance,
		"token", db.token)
	return db, nil
}

// wireCluster attaches the election and, for multi-instance handles,
// the coordinator. Unset pieces default to the process-local hub of
// this database's storage token; cross-process deployments inject
// both an Election and a Transport.
func (db *Database) wireCluster(cfg Config) error {
	if !cfg.MultiInstance {
		db.election = cluster.StaticElection{Leader: true}
		if cfg.Election != nil {
			db.election = cfg.Election
		}
		return nil
	}

	election := cfg.Election
	transport := cfg.Transport
	if election == nil {
		election = sharedHub(db.storageToken).Election()
	}
	if transport == nil {
		transport = sharedHub(db.storageToken).Transport()
	}

	coord, err := newCoordinator(db.logger, db.bus, transport, db.token, cfg.PublishRate, cfg.PublishBurst)
	if err != nil {
		election.Destroy()
		return err
	}
	db.election = election
	db.coord = coord
	return nil
}

// RemoveDatabase erases a database that is not open: every collection
// store recorded in its descriptors, the descriptor store and the
// administrative store. Removing a database that never existed is a
// no-op on adapters that treat missing locations as absent.
func RemoveDatabase(ctx context.Context, name string, adapter storage.Adapter) error {
	if name == "" || adapter == nil {
		return ErrInvalidAdapterConfiguration.WithField("reason", "name and adapter are required")
	}
	locations, err := collectionLocations(ctx, adapter, name)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if rerr := removePhysical(ctx, adapter, name, locations); rerr != nil {
		errs = append(errs, rerr)
	}
	return errors.Join(errs...)
}
